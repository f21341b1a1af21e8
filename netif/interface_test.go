package netif

import (
	"net"
	"testing"

	"github.com/mel2oo/go-tcpstack/wire"
)

func mac(s string) net.HardwareAddr {
	m, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

// TestARPResolution exercises spec scenario 7: an interface sending to an
// unresolved next hop broadcasts an ARP request and queues the datagram; a
// second send while the request is in flight is queued without a new
// request; once the reply arrives, one IPv4 frame per queued datagram is
// emitted to the learned MAC, and a subsequent send within the cache TTL
// skips ARP entirely.
func TestARPResolution(t *testing.T) {
	selfMAC := mac("02:00:00:00:00:01")
	selfIP := net.ParseIP("10.0.0.1").To4()
	peerMAC := mac("02:00:00:00:00:05")
	peerIP := net.ParseIP("10.0.0.5").To4()

	iface := New("eth0", selfMAC, selfIP)

	dgram := wire.InternetDatagram{TTL: 64, SrcIP: selfIP, DstIP: peerIP, Payload: []byte("hello")}
	iface.SendDatagram(dgram, peerIP)

	frames := iface.DrainFramesOut()
	if len(frames) != 1 {
		t.Fatalf("expected 1 ARP request frame, got %d", len(frames))
	}
	reqFrame, err := wire.ParseEthernetFrame(frames[0])
	if err != nil {
		t.Fatalf("ParseEthernetFrame: %v", err)
	}
	if reqFrame.Kind != wire.FrameARP || reqFrame.ARP.Operation != wire.ARPRequest {
		t.Fatalf("expected an ARP request frame, got %+v", reqFrame)
	}
	if !macEqual(reqFrame.DstMAC, wire.BroadcastMAC) {
		t.Fatal("expected the ARP request to be broadcast")
	}

	// A second send to the same unresolved IP must not re-broadcast.
	iface.SendDatagram(dgram, peerIP)
	if len(iface.DrainFramesOut()) != 0 {
		t.Fatal("expected no additional ARP request while one is in flight")
	}

	reply := wire.NewARPReply(peerMAC, peerIP, selfMAC, selfIP)
	replyFrame, err := wire.BuildARPFrame(peerMAC, selfMAC, reply)
	if err != nil {
		t.Fatalf("BuildARPFrame: %v", err)
	}

	_, ok := iface.RecvFrame(replyFrame)
	if ok {
		t.Fatal("an ARP frame should never yield a datagram")
	}

	frames = iface.DrainFramesOut()
	if len(frames) != 2 {
		t.Fatalf("expected 2 flushed IPv4 frames (one per queued send), got %d", len(frames))
	}
	for _, f := range frames {
		parsed, err := wire.ParseEthernetFrame(f)
		if err != nil {
			t.Fatalf("ParseEthernetFrame: %v", err)
		}
		if parsed.Kind != wire.FrameIPv4 {
			t.Fatalf("expected a flushed IPv4 frame, got kind %v", parsed.Kind)
		}
		if !macEqual(parsed.DstMAC, peerMAC) {
			t.Fatalf("flushed frame destined to %v, want %v", parsed.DstMAC, peerMAC)
		}
	}

	// Now that the mapping is cached, sending again emits directly.
	iface.SendDatagram(dgram, peerIP)
	frames = iface.DrainFramesOut()
	if len(frames) != 1 {
		t.Fatalf("expected 1 direct IPv4 frame, got %d", len(frames))
	}
	parsed, err := wire.ParseEthernetFrame(frames[0])
	if err != nil {
		t.Fatalf("ParseEthernetFrame: %v", err)
	}
	if parsed.Kind != wire.FrameIPv4 || !macEqual(parsed.DstMAC, peerMAC) {
		t.Fatalf("expected a direct IPv4 frame to %v, got %+v", peerMAC, parsed)
	}
}

func TestARPCacheExpires(t *testing.T) {
	selfMAC := mac("02:00:00:00:00:01")
	selfIP := net.ParseIP("10.0.0.1").To4()
	peerMAC := mac("02:00:00:00:00:05")
	peerIP := net.ParseIP("10.0.0.5").To4()

	iface := New("eth0", selfMAC, selfIP)

	reply := wire.NewARPReply(peerMAC, peerIP, selfMAC, selfIP)
	replyFrame, _ := wire.BuildARPFrame(peerMAC, selfMAC, reply)
	iface.RecvFrame(replyFrame)

	if _, ok := iface.arpCache[wire.IPv4Numeric(peerIP)]; !ok {
		t.Fatal("expected the mapping to be cached")
	}

	iface.Tick(ARPCacheTTLMillis)

	if _, ok := iface.arpCache[wire.IPv4Numeric(peerIP)]; ok {
		t.Fatal("expected the mapping to expire after its TTL elapses")
	}
}

// TestARPCacheExpiresAcrossPartialTicks exercises the path a single
// Tick(ARPCacheTTLMillis) call misses: the FIFO expiry snapshot must stay in
// lockstep with the live cache entry across more than one partial tick, or
// the second tick sees a stale snapshot and never expires the entry.
func TestARPCacheExpiresAcrossPartialTicks(t *testing.T) {
	selfMAC := mac("02:00:00:00:00:01")
	selfIP := net.ParseIP("10.0.0.1").To4()
	peerMAC := mac("02:00:00:00:00:05")
	peerIP := net.ParseIP("10.0.0.5").To4()

	iface := New("eth0", selfMAC, selfIP)

	reply := wire.NewARPReply(peerMAC, peerIP, selfMAC, selfIP)
	replyFrame, _ := wire.BuildARPFrame(peerMAC, selfMAC, reply)
	iface.RecvFrame(replyFrame)

	half := ARPCacheTTLMillis / 2
	iface.Tick(half)
	iface.Tick(half)

	if _, ok := iface.arpCache[wire.IPv4Numeric(peerIP)]; ok {
		t.Fatal("expected the mapping to expire after two partial ticks covering its TTL")
	}
}

func TestRecvFrameIgnoresUnaddressedFrames(t *testing.T) {
	selfMAC := mac("02:00:00:00:00:01")
	selfIP := net.ParseIP("10.0.0.1").To4()
	otherMAC := mac("02:00:00:00:00:99")

	iface := New("eth0", selfMAC, selfIP)

	dgram := wire.InternetDatagram{TTL: 64, SrcIP: net.ParseIP("10.0.0.2"), DstIP: selfIP, Payload: []byte("x")}
	frame, err := wire.BuildIPv4Frame(otherMAC, mac("02:00:00:00:00:77"), dgram)
	if err != nil {
		t.Fatalf("BuildIPv4Frame: %v", err)
	}

	if _, ok := iface.RecvFrame(frame); ok {
		t.Fatal("expected a frame addressed to a different MAC to be dropped")
	}
}

func TestRecvFrameIPv4(t *testing.T) {
	selfMAC := mac("02:00:00:00:00:01")
	selfIP := net.ParseIP("10.0.0.1").To4()
	peerMAC := mac("02:00:00:00:00:05")

	iface := New("eth0", selfMAC, selfIP)

	dgram := wire.InternetDatagram{TTL: 64, SrcIP: net.ParseIP("10.0.0.5"), DstIP: selfIP, Payload: []byte("payload")}
	frame, err := wire.BuildIPv4Frame(peerMAC, selfMAC, dgram)
	if err != nil {
		t.Fatalf("BuildIPv4Frame: %v", err)
	}

	got, ok := iface.RecvFrame(frame)
	if !ok {
		t.Fatal("expected RecvFrame to yield a datagram")
	}
	if string(got.Payload) != "payload" {
		t.Fatalf("Payload = %q, want %q", got.Payload, "payload")
	}
}
