package tcp

import (
	"testing"

	"github.com/mel2oo/go-tcpstack/seqnum"
	"github.com/mel2oo/go-tcpstack/wire"
)

func TestReceiverDropsSegmentsBeforeSYN(t *testing.T) {
	r := NewReceiver(1000)

	r.SegmentReceived(wire.TCPSegment{
		Header:  wire.TCPHeader{SeqNo: 5},
		Payload: []byte("hi"),
	})

	if _, ok := r.Ackno(); ok {
		t.Fatal("Ackno should be unset until a SYN has been seen")
	}
	if r.Stream().BytesWritten() != 0 {
		t.Fatal("data before a SYN must not reach the output stream")
	}
}

func TestReceiverLearnsISNFromSYN(t *testing.T) {
	r := NewReceiver(1000)
	isn := seqnum.WrappingInt32(12345)

	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn, SYN: true}})

	ackno, ok := r.Ackno()
	if !ok {
		t.Fatal("expected Ackno to be set after SYN")
	}
	if ackno != isn+1 {
		t.Fatalf("Ackno() = %v, want %v", ackno, isn+1)
	}
}

func TestReceiverInOrderData(t *testing.T) {
	r := NewReceiver(1000)
	isn := seqnum.WrappingInt32(0)

	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn, SYN: true}})
	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn + 1}, Payload: []byte("hello")})

	ackno, _ := r.Ackno()
	if ackno != isn+6 {
		t.Fatalf("Ackno() = %v, want %v", ackno, isn+6)
	}

	got := r.Stream().Read(5)
	if string(got) != "hello" {
		t.Fatalf("Stream content = %q, want %q", got, "hello")
	}
}

func TestReceiverOutOfOrderThenFill(t *testing.T) {
	r := NewReceiver(1000)
	isn := seqnum.WrappingInt32(0)

	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn, SYN: true}})
	// "world" arrives first, at stream index 5.
	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn + 6}, Payload: []byte("world")})

	if ackno, _ := r.Ackno(); ackno != isn+1 {
		t.Fatalf("Ackno() should not advance past the gap, got %v", ackno)
	}
	if r.UnassembledBytes() != 5 {
		t.Fatalf("UnassembledBytes() = %d, want 5", r.UnassembledBytes())
	}

	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn + 1}, Payload: []byte("hello")})

	ackno, _ := r.Ackno()
	if ackno != isn+11 {
		t.Fatalf("Ackno() = %v, want %v", ackno, isn+11)
	}

	got := r.Stream().Read(10)
	if string(got) != "helloworld" {
		t.Fatalf("Stream content = %q, want %q", got, "helloworld")
	}
}

func TestReceiverFINAdvancesAckno(t *testing.T) {
	r := NewReceiver(1000)
	isn := seqnum.WrappingInt32(0)

	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn, SYN: true}})
	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn + 1}, Payload: []byte("hi"), FIN: true})

	ackno, _ := r.Ackno()
	// +1 for SYN, +2 for "hi", +1 for FIN.
	if ackno != isn+4 {
		t.Fatalf("Ackno() = %v, want %v", ackno, isn+4)
	}
	if !r.Stream().InputEnded() {
		t.Fatal("expected the output stream to be ended after FIN")
	}
}

func TestReceiverWindowSizeShrinksAsBufferFills(t *testing.T) {
	r := NewReceiver(10)
	isn := seqnum.WrappingInt32(0)

	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn, SYN: true}})
	if r.WindowSize() != 10 {
		t.Fatalf("WindowSize() = %d, want 10", r.WindowSize())
	}

	r.SegmentReceived(wire.TCPSegment{Header: wire.TCPHeader{SeqNo: isn + 1}, Payload: []byte("abcd")})
	if r.WindowSize() != 6 {
		t.Fatalf("WindowSize() = %d, want 6", r.WindowSize())
	}
}
