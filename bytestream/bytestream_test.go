package bytestream

import (
	"testing"
)

func TestBasic(t *testing.T) {
	bs := New(15)

	if n := bs.Write([]byte("abcdef")); n != 6 {
		t.Fatalf("Write(\"abcdef\") = %d, want 6", n)
	}

	if got := string(bs.PeekOutput(3)); got != "abc" {
		t.Fatalf("PeekOutput(3) = %q, want %q", got, "abc")
	}
	bs.PopOutput(3)

	if n := bs.Write([]byte("ghijklmnop")); n != 10 {
		t.Fatalf("Write(\"ghijklmnop\") = %d, want 10", n)
	}

	if got, want := bs.BufferSize(), 13; got != want {
		t.Fatalf("BufferSize() = %d, want %d", got, want)
	}
	if got, want := bs.RemainingCapacity(), 2; got != want {
		t.Fatalf("RemainingCapacity() = %d, want %d", got, want)
	}

	if got, want := string(bs.Read(13)), "defghijklmnop"; got != want {
		t.Fatalf("Read(13) = %q, want %q", got, want)
	}
}

func TestWriteBeyondCapacityIsTruncated(t *testing.T) {
	bs := New(4)

	if n := bs.Write([]byte("abcdef")); n != 4 {
		t.Fatalf("Write(\"abcdef\") = %d, want 4", n)
	}
	if got := string(bs.PeekOutput(10)); got != "abcd" {
		t.Fatalf("PeekOutput(10) = %q, want %q", got, "abcd")
	}
}

func TestEOF(t *testing.T) {
	bs := New(4)
	bs.Write([]byte("ab"))

	if bs.EOF() {
		t.Fatal("EOF() = true before EndInput")
	}

	bs.EndInput()
	if !bs.InputEnded() {
		t.Fatal("InputEnded() = false after EndInput")
	}
	if bs.EOF() {
		t.Fatal("EOF() = true while bytes remain buffered")
	}

	bs.Read(2)
	if !bs.EOF() {
		t.Fatal("EOF() = false once input ended and buffer drained")
	}
}

func TestBufferEmptyAndCounters(t *testing.T) {
	bs := New(8)
	if !bs.BufferEmpty() {
		t.Fatal("expected new stream to be empty")
	}

	bs.Write([]byte("hello"))
	if bs.BufferEmpty() {
		t.Fatal("expected non-empty stream after write")
	}
	if got, want := bs.BytesWritten(), 5; got != want {
		t.Fatalf("BytesWritten() = %d, want %d", got, want)
	}

	bs.Read(5)
	if got, want := bs.BytesRead(), 5; got != want {
		t.Fatalf("BytesRead() = %d, want %d", got, want)
	}
	if !bs.BufferEmpty() {
		t.Fatal("expected stream to be empty after full read")
	}
}

func TestSetError(t *testing.T) {
	bs := New(4)
	if bs.Error() {
		t.Fatal("new stream should not be in error state")
	}
	bs.SetError()
	if !bs.Error() {
		t.Fatal("expected error state after SetError")
	}
}

// Exercises a capacity larger than the internal chunk size, so writes and
// reads span multiple pool chunks.
func TestLargeCapacitySpansChunks(t *testing.T) {
	bs := New(10000)

	payload := make([]byte, 9000)
	for i := range payload {
		payload[i] = byte(i)
	}

	if n := bs.Write(payload); n != len(payload) {
		t.Fatalf("Write(payload) = %d, want %d", n, len(payload))
	}

	got := bs.Read(9000)
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], payload[i])
		}
	}
}
