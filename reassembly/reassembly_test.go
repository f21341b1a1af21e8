package reassembly

import (
	"testing"
)

func TestOutOfOrder(t *testing.T) {
	r := New(8)
	r.PushSubstring([]byte("ef"), 4, false)
	r.PushSubstring([]byte("cd"), 2, false)
	r.PushSubstring([]byte("ab"), 0, false)

	got := string(r.Output().Read(6))
	if want := "abcdef"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if r.UnassembledBytes() != 0 {
		t.Fatalf("UnassembledBytes() = %d, want 0", r.UnassembledBytes())
	}
	if !r.Empty() {
		t.Fatal("Empty() = false, want true")
	}
}

func TestOverlapMerge(t *testing.T) {
	r := New(8)
	r.PushSubstring([]byte("abcd"), 0, false)
	r.PushSubstring([]byte("cdef"), 2, true)

	got := string(r.Output().Read(6))
	if want := "abcdef"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if !r.Output().InputEnded() {
		t.Fatal("expected InputEnded() after EOF byte written")
	}
}

func TestWindowBeyondCapacityTruncates(t *testing.T) {
	r := New(2)
	r.PushSubstring([]byte("abc"), 0, false)

	got := string(r.Output().Read(3))
	if want := "ab"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestEOFOnEmptyRange(t *testing.T) {
	r := New(8)
	r.PushSubstring([]byte("ab"), 0, false)
	r.PushSubstring(nil, 2, true)

	if !r.Output().InputEnded() {
		t.Fatal("expected InputEnded() once prior bytes already written")
	}
}

// EOF arriving ahead of the writable frontier (as an empty range) must still
// take effect once the gap before it is filled in by a later push.
func TestEOFAheadOfFrontier(t *testing.T) {
	r := New(8)
	r.PushSubstring(nil, 2, true)
	if r.Output().InputEnded() {
		t.Fatal("InputEnded() should not fire before the gap is filled")
	}

	r.PushSubstring([]byte("ab"), 0, false)
	if !r.Output().InputEnded() {
		t.Fatal("expected InputEnded() once the gap closed past the EOF index")
	}
}

func TestDuplicatePushIsIdempotent(t *testing.T) {
	r := New(8)
	r.PushSubstring([]byte("ab"), 0, false)
	r.PushSubstring([]byte("ab"), 0, false)
	r.PushSubstring([]byte("ab"), 0, false)

	got := string(r.Output().Read(2))
	if want := "ab"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if r.Output().BufferSize() != 0 {
		t.Fatalf("expected no leftover buffered bytes, got %d", r.Output().BufferSize())
	}
}

func TestDuplicateUnassembledPushIsIdempotent(t *testing.T) {
	r := New(8)
	r.PushSubstring([]byte("cd"), 2, false)
	if got := r.UnassembledBytes(); got != 2 {
		t.Fatalf("UnassembledBytes() = %d, want 2", got)
	}

	r.PushSubstring([]byte("cd"), 2, false)
	if got := r.UnassembledBytes(); got != 2 {
		t.Fatalf("UnassembledBytes() after duplicate push = %d, want 2", got)
	}
}

func TestPartialOverlapOfUnassembledFragment(t *testing.T) {
	r := New(10)
	r.PushSubstring([]byte("cd"), 2, false) // buffered, unassembled.
	r.PushSubstring([]byte("bcde"), 1, false)
	if got := r.UnassembledBytes(); got != 4 {
		t.Fatalf("UnassembledBytes() = %d, want 4", got)
	}

	r.PushSubstring([]byte("a"), 0, false)
	got := string(r.Output().Read(5))
	if want := "abcde"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if !r.Empty() {
		t.Fatal("expected reassembler to be empty after full assembly")
	}
}

func TestNonOverlappingFragmentsRemainSeparate(t *testing.T) {
	r := New(10)
	r.PushSubstring([]byte("c"), 2, false)
	r.PushSubstring([]byte("e"), 4, false)
	if got := r.UnassembledBytes(); got != 2 {
		t.Fatalf("UnassembledBytes() = %d, want 2", got)
	}

	r.PushSubstring([]byte("abc"), 0, false)
	got := string(r.Output().Read(3))
	if want := "abc"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if r.UnassembledBytes() != 1 {
		t.Fatalf("UnassembledBytes() = %d, want 1 (the still-unreachable \"e\")", r.UnassembledBytes())
	}
}
