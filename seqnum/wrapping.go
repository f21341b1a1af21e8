// Package seqnum implements TCP's 32-bit wrapping sequence numbers and the
// arithmetic needed to convert between them and the 64-bit absolute stream
// offsets the rest of the engine reasons about.
package seqnum

// WrappingInt32 is a sequence number that wraps modulo 2^32, relative to an
// Initial Sequence Number (ISN) chosen per stream direction.
type WrappingInt32 uint32

// Wrap converts a 64-bit absolute sequence number into a WrappingInt32,
// relative to isn: wrap(abs, isn) = isn + (abs mod 2^32).
func Wrap(absoluteSeqno uint64, isn WrappingInt32) WrappingInt32 {
	return isn + WrappingInt32(uint32(absoluteSeqno))
}

// Unwrap returns the 64-bit absolute sequence number that is closest to
// checkpoint and whose low 32 bits, relative to isn, equal seqno. This is
// the inverse of Wrap, disambiguated by a checkpoint because seqno alone is
// ambiguous across any stream longer than 2^32 bytes.
func Unwrap(seqno WrappingInt32, isn WrappingInt32, checkpoint uint64) uint64 {
	const span = uint64(1) << 32

	offset := uint64(uint32(seqno - isn))

	if checkpoint < offset {
		return offset
	}

	// candidate is the offset shifted up by however many whole spans fit
	// below checkpoint; it's the largest absolute value <= checkpoint (or
	// equal to offset) whose low 32 bits equal offset.
	candidate := offset + ((checkpoint-offset)/span)*span

	// The true answer is either this candidate or one span above it,
	// whichever lands closer to checkpoint.
	if next := candidate + span; next-checkpoint < checkpoint-candidate {
		return next
	}
	return candidate
}
