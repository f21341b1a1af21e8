// Package reassembly implements the stream reassembler: it accepts
// out-of-order, overlapping, indexed byte ranges and emits the longest
// contiguous prefix it can assemble to a bytestream.ByteStream.
package reassembly

import (
	"github.com/mel2oo/go-tcpstack/bytestream"
	"github.com/mel2oo/go-tcpstack/memview"
)

// Fragment is a buffered, out-of-order range of the stream: the bytes
// starting at the absolute index start, not yet writable because the prefix
// before it hasn't arrived.
type Fragment struct {
	start int64
	data  memview.MemView
}

// Start returns the fragment's absolute starting index.
func (f Fragment) Start() int64 { return f.start }

// Len returns the number of bytes held by the fragment.
func (f Fragment) Len() int64 { return f.data.Len() }

// StreamReassembler merges out-of-order substrings into its output stream in
// order. It owns an output ByteStream of the same capacity, and buffers
// fragments that arrive ahead of the writable frontier until the gap before
// them closes.
type StreamReassembler struct {
	output   *bytestream.ByteStream
	capacity int

	// fragments is sorted by start index and, after every mutation, contains
	// no two fragments with overlapping or adjacent ranges.
	fragments []Fragment

	unassembledBytes int

	eofSet   bool
	eofIndex int64
}

// New creates a StreamReassembler with the given window capacity, owning a
// new output ByteStream of the same capacity.
func New(capacity int) *StreamReassembler {
	return &StreamReassembler{
		output:   bytestream.New(capacity),
		capacity: capacity,
	}
}

// Output returns the ByteStream that assembled bytes are written to.
func (r *StreamReassembler) Output() *bytestream.ByteStream {
	return r.output
}

// UnassembledBytes returns the total number of bytes currently held in
// buffered, not-yet-writable fragments.
func (r *StreamReassembler) UnassembledBytes() int {
	return r.unassembledBytes
}

// Empty reports whether there are no buffered fragments awaiting assembly.
func (r *StreamReassembler) Empty() bool {
	return r.unassembledBytes == 0
}

// PushSubstring accepts a byte range starting at the absolute index index
// (with eof indicating this range ends the stream), merging it into the
// output stream if it (or a previously buffered fragment) completes the
// writable prefix.
func (r *StreamReassembler) PushSubstring(data []byte, index int64, eof bool) {
	bytesRead := int64(r.output.BytesRead())
	windowEnd := bytesRead + int64(r.capacity)

	// Fully outside the acceptance window: discard without even recording
	// the EOF flag.
	if index >= windowEnd {
		return
	}

	// Truncate so no byte exceeds the acceptance window.
	if index+int64(len(data)) > windowEnd {
		data = data[:windowEnd-index]
	}

	if eof {
		r.eofIndex = index + int64(len(data)) - 1
		r.eofSet = true
	}

	firstUnassembled := int64(r.output.BytesWritten())

	switch {
	case len(data) == 0:
		// Nothing to write; EOF, if any, is handled by the check below.

	case index <= firstUnassembled && index+int64(len(data))-1 >= firstUnassembled:
		// data intersects (or directly extends) the writable frontier.
		r.output.Write(data[firstUnassembled-index:])
		firstUnassembled = int64(r.output.BytesWritten())

		// Drain any buffered fragments now covered by the new frontier.
		for len(r.fragments) > 0 && r.fragments[0].start <= firstUnassembled {
			frag := r.fragments[0]
			r.fragments = r.fragments[1:]
			r.unassembledBytes -= int(frag.data.Len())

			fragEnd := frag.start + frag.data.Len() - 1
			if fragEnd >= firstUnassembled {
				tail := frag.data.SubView(firstUnassembled-frag.start, frag.data.Len())
				r.output.Write(tail.ToSlice())
				firstUnassembled = int64(r.output.BytesWritten())
			}
		}

	case index > firstUnassembled:
		// Gap ahead of the frontier: buffer it.
		newBytes := r.newByteCount(data, index)
		r.unassembledBytes += newBytes
		r.insertFragment(Fragment{start: index, data: memview.New(append([]byte(nil), data...))})
		r.mergeFragments()

	default:
		// index <= firstUnassembled but the range is fully already-written;
		// nothing to do.
	}

	if r.eofSet && int64(r.output.BytesWritten()) > r.eofIndex {
		r.output.EndInput()
	}
}

// newByteCount returns how many bytes of data, starting at index, are not
// already covered by an existing buffered fragment.
func (r *StreamReassembler) newByteCount(data []byte, index int64) int {
	n := int64(len(data))
	end := index + n

	for _, frag := range r.fragments {
		fragEnd := frag.start + frag.data.Len()
		overlapStart := maxI64(index, frag.start)
		overlapEnd := minI64(end, fragEnd)
		if overlapEnd > overlapStart {
			n -= overlapEnd - overlapStart
		}
	}
	if n < 0 {
		n = 0
	}
	return int(n)
}

// insertFragment inserts f into r.fragments, keeping the slice sorted by
// start index.
func (r *StreamReassembler) insertFragment(f Fragment) {
	i := 0
	for i < len(r.fragments) && r.fragments[i].start <= f.start {
		i++
	}
	r.fragments = append(r.fragments, Fragment{})
	copy(r.fragments[i+1:], r.fragments[i:])
	r.fragments[i] = f
}

// mergeFragments performs a single left-to-right pass over the sorted
// fragment list, coalescing overlapping or adjacent fragments into maximal
// non-overlapping ranges.
func (r *StreamReassembler) mergeFragments() {
	if len(r.fragments) == 0 {
		return
	}

	merged := make([]Fragment, 0, len(r.fragments))
	cur := r.fragments[0]
	nextByteIndex := cur.start + cur.data.Len()

	for _, next := range r.fragments[1:] {
		switch {
		case next.start <= nextByteIndex && next.start+next.data.Len()-1 >= nextByteIndex:
			// Overlaps or is adjacent to cur, and extends past it: append
			// the non-overlapping tail.
			tail := next.data.SubView(nextByteIndex-next.start, next.data.Len())
			cur.data.Append(tail)
			nextByteIndex = cur.start + cur.data.Len()

		case next.start > nextByteIndex:
			// Gap: cur is finished, next starts a new run.
			merged = append(merged, cur)
			cur = next
			nextByteIndex = cur.start + cur.data.Len()

		default:
			// next is fully contained within cur already; drop it.
		}
	}
	merged = append(merged, cur)
	r.fragments = merged
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
