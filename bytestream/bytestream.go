// Package bytestream implements a bounded, single-producer/single-consumer
// FIFO of bytes with an end-of-input flag, the byte storage shared by both
// halves of each direction of a TCP connection.
package bytestream

import (
	"github.com/mel2oo/go-tcpstack/mempool"
	"github.com/mel2oo/go-tcpstack/memview"
)

// maxChunkSize_bytes bounds how large a single pool chunk is allowed to get,
// so that a stream with a large capacity doesn't allocate one giant backing
// array up front.
const maxChunkSize_bytes = 4096

// ByteStream is a bounded FIFO of bytes with a writer side (Write, EndInput)
// and a reader side (Read, PeekOutput, PopOutput). It never blocks: writes
// beyond remaining capacity are silently truncated, and reads beyond the
// buffered contents return whatever is available.
//
// Not safe for concurrent use; callers of the engine only ever touch it from
// the single event-processing goroutine.
type ByteStream struct {
	capacity int

	buf  mempool.Buffer
	pool mempool.BufferPool

	bytesWritten int
	bytesRead    int

	inputEnded bool
	erred      bool
}

// New creates a ByteStream that holds at most capacity bytes at a time.
func New(capacity int) *ByteStream {
	if capacity <= 0 {
		panic("bytestream.New: capacity must be positive")
	}

	// Chunk size is capped at maxChunkSize_bytes and the chunk count rounded
	// up to cover capacity, plus one spare chunk: a partly read head chunk
	// stays allocated until it is fully consumed, so capacity buffered bytes
	// can straddle one more chunk than capacity alone needs. The pool is
	// therefore larger than capacity, and Write enforces the exact bound via
	// RemainingCapacity.
	chunkSize := capacity
	if chunkSize > maxChunkSize_bytes {
		chunkSize = maxChunkSize_bytes
	}
	numChunks := (capacity+chunkSize-1)/chunkSize + 1

	pool, err := mempool.MakeBufferPool(int64(numChunks*chunkSize), int64(chunkSize))
	if err != nil {
		// capacity > 0 and chunkSize is derived from it, so this pool
		// configuration is always valid.
		panic(err)
	}

	return &ByteStream{
		capacity: capacity,
		buf:      pool.NewBuffer(),
		pool:     pool,
	}
}

// Write copies as much of data as fits in the remaining capacity into the
// tail of the stream and returns the number of bytes accepted. Never blocks
// and never errors.
func (bs *ByteStream) Write(data []byte) int {
	n := bs.RemainingCapacity()
	if n > len(data) {
		n = len(data)
	}
	if n == 0 {
		return 0
	}

	written, err := bs.buf.Write(data[:n])
	if err != nil {
		// The pool holds capacity bytes at any read offset, so this can't
		// happen in practice;
		// fall back to however much the buffer actually accepted.
		n = written
	}

	bs.bytesWritten += n
	return n
}

// PeekOutput returns up to min(len, BufferSize()) bytes from the head of the
// stream without removing them.
func (bs *ByteStream) PeekOutput(len int) []byte {
	avail := bs.buf.Bytes()
	if int64(len) > avail.Len() {
		len = int(avail.Len())
	}
	return avail.SubView(0, int64(len)).ToSlice()
}

// PopOutput drops up to min(len, BufferSize()) bytes from the head of the
// stream.
func (bs *ByteStream) PopOutput(n int) {
	if n > bs.BufferSize() {
		n = bs.BufferSize()
	}
	if n == 0 {
		return
	}
	bs.buf.Consume(n)
	bs.bytesRead += n
}

// Read is PeekOutput followed by PopOutput of the returned length.
func (bs *ByteStream) Read(len int) []byte {
	data := bs.PeekOutput(len)
	bs.PopOutput(len)
	return data
}

// View returns a zero-copy view of the buffered, unread contents.
func (bs *ByteStream) View() memview.MemView {
	return bs.buf.Bytes()
}

// EndInput marks that no more bytes will ever be written. Once set, this
// stays set.
func (bs *ByteStream) EndInput() {
	bs.inputEnded = true
}

// InputEnded reports whether EndInput has been called.
func (bs *ByteStream) InputEnded() bool {
	return bs.inputEnded
}

// EOF reports whether input has ended and every written byte has been read.
func (bs *ByteStream) EOF() bool {
	return bs.inputEnded && bs.BufferEmpty()
}

// BufferSize returns the number of bytes currently buffered (written but not
// yet read).
func (bs *ByteStream) BufferSize() int {
	return bs.buf.Len()
}

// BufferEmpty reports whether BufferSize is zero.
func (bs *ByteStream) BufferEmpty() bool {
	return bs.BufferSize() == 0
}

// BytesWritten returns the total number of bytes ever written.
func (bs *ByteStream) BytesWritten() int {
	return bs.bytesWritten
}

// BytesRead returns the total number of bytes ever read.
func (bs *ByteStream) BytesRead() int {
	return bs.bytesRead
}

// RemainingCapacity returns how many more bytes can be written before the
// stream is full.
func (bs *ByteStream) RemainingCapacity() int {
	return bs.capacity - bs.BufferSize()
}

// Capacity returns the stream's fixed capacity.
func (bs *ByteStream) Capacity() int {
	return bs.capacity
}

// SetError marks the stream as having encountered an unrecoverable error,
// typically because the connection it belongs to received or sent a RST.
func (bs *ByteStream) SetError() {
	bs.erred = true
}

// Error reports whether SetError has been called.
func (bs *ByteStream) Error() bool {
	return bs.erred
}
