package tcp

import (
	"math"

	"github.com/mel2oo/go-tcpstack/bytestream"
	"github.com/mel2oo/go-tcpstack/optionals"
	"github.com/mel2oo/go-tcpstack/reassembly"
	"github.com/mel2oo/go-tcpstack/seqnum"
	"github.com/mel2oo/go-tcpstack/wire"
)

// Receiver unwraps incoming sequence numbers, drives a StreamReassembler,
// and advertises an acknowledgement number and window.
type Receiver struct {
	isn   optionals.Optional[seqnum.WrappingInt32]
	reasm *reassembly.StreamReassembler
}

// NewReceiver creates a Receiver whose reassembler (and its output stream)
// has the given capacity.
func NewReceiver(capacity int) *Receiver {
	return &Receiver{
		reasm: reassembly.New(capacity),
	}
}

// Stream returns the byte stream that reassembled, in-order bytes are
// written to.
func (r *Receiver) Stream() *bytestream.ByteStream {
	return r.reasm.Output()
}

// SegmentReceived processes an inbound segment, learning the ISN from the
// first SYN and feeding the segment's payload to the reassembler.
func (r *Receiver) SegmentReceived(seg wire.TCPSegment) {
	isn, haveISN := r.isn.Get()
	if !haveISN {
		if !seg.Header.SYN {
			return
		}
		isn = seg.Header.SeqNo
		r.isn = optionals.Some(isn)
	}

	seqno := seg.Header.SeqNo
	if seg.Header.SYN {
		seqno++
	}

	checkpoint := uint64(r.reasm.Output().BytesWritten())
	absSeqno := seqnum.Unwrap(seqno, isn, checkpoint)
	streamIndex := int64(absSeqno) - 1

	r.reasm.PushSubstring(seg.Payload, streamIndex, seg.Header.FIN)
}

// Ackno returns the receiver's current acknowledgement number, or false if
// no ISN has been learned yet.
func (r *Receiver) Ackno() (seqnum.WrappingInt32, bool) {
	isn, ok := r.isn.Get()
	if !ok {
		return 0, false
	}

	abs := uint64(r.reasm.Output().BytesWritten()) + 1
	if r.reasm.Output().InputEnded() {
		abs++
	}
	return seqnum.Wrap(abs, isn), true
}

// WindowSize returns the receiver's advertised window: how much more the
// reassembler's output stream can still hold, capped at the largest value the
// 16-bit header field carries.
func (r *Receiver) WindowSize() uint16 {
	remaining := r.reasm.Output().RemainingCapacity()
	if remaining > math.MaxUint16 {
		remaining = math.MaxUint16
	}
	return uint16(remaining)
}

// UnassembledBytes returns the number of bytes buffered by the reassembler
// that have not yet been written to the output stream.
func (r *Receiver) UnassembledBytes() int {
	return r.reasm.UnassembledBytes()
}
