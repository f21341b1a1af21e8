package wire

import (
	"net"
	"testing"

	"github.com/google/gopacket/layers"

	"github.com/mel2oo/go-tcpstack/seqnum"
)

func TestLengthInSequenceSpace(t *testing.T) {
	tests := []struct {
		name string
		seg  TCPSegment
		want int
	}{
		{"bare syn", TCPSegment{Header: TCPHeader{SYN: true}}, 1},
		{"bare fin", TCPSegment{Header: TCPHeader{FIN: true}}, 1},
		{"syn and fin, no payload", TCPSegment{Header: TCPHeader{SYN: true, FIN: true}}, 2},
		{"payload only", TCPSegment{Payload: []byte("hello")}, 5},
		{"payload with fin", TCPSegment{Header: TCPHeader{FIN: true}, Payload: []byte("hello")}, 6},
		{"ack only, no payload", TCPSegment{Header: TCPHeader{ACK: true}}, 0},
	}

	for _, test := range tests {
		if got := test.seg.LengthInSequenceSpace(); got != test.want {
			t.Errorf("%s: LengthInSequenceSpace() = %d, want %d", test.name, got, test.want)
		}
	}
}

func TestToLayerFromLayerRoundTrip(t *testing.T) {
	seg := TCPSegment{
		Header: TCPHeader{
			SrcPort: 1234,
			DstPort: 5678,
			SeqNo:   seqnum.WrappingInt32(100),
			AckNo:   seqnum.WrappingInt32(200),
			SYN:     true,
			ACK:     true,
			Win:     4096,
		},
	}

	layer := seg.ToLayer()
	got := FromLayer(layer)
	got.Payload = nil // FromLayer reads payload off the layer, not relevant here

	if got.Header != seg.Header {
		t.Errorf("round trip changed header: got %+v, want %+v", got.Header, seg.Header)
	}
}

func TestSerializeParseSegmentRoundTrip(t *testing.T) {
	ipLayer := &layers.IPv4{
		Version:  4,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}

	seg := TCPSegment{
		Header: TCPHeader{
			SrcPort: 1111,
			DstPort: 2222,
			SeqNo:   seqnum.WrappingInt32(42),
			AckNo:   seqnum.WrappingInt32(7),
			ACK:     true,
		},
		Payload: []byte("hello, world"),
	}

	data, err := seg.Serialize(ipLayer)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	got, err := ParseTCPSegment(data, ipLayer)
	if err != nil {
		t.Fatalf("ParseTCPSegment() error: %v", err)
	}

	if got.Header.SeqNo != seg.Header.SeqNo || got.Header.AckNo != seg.Header.AckNo {
		t.Errorf("seq/ack mismatch: got %+v, want %+v", got.Header, seg.Header)
	}
	if string(got.Payload) != string(seg.Payload) {
		t.Errorf("payload mismatch: got %q, want %q", got.Payload, seg.Payload)
	}
}

func TestDatagramSerializeParseRoundTrip(t *testing.T) {
	dgram := InternetDatagram{
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(192, 168, 1, 1),
		DstIP:    net.IPv4(192, 168, 1, 2),
		Payload:  []byte("payload bytes"),
	}

	data, err := dgram.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	got, err := ParseInternetDatagram(data)
	if err != nil {
		t.Fatalf("ParseInternetDatagram() error: %v", err)
	}

	if got.TTL != dgram.TTL {
		t.Errorf("TTL = %d, want %d", got.TTL, dgram.TTL)
	}
	if !got.SrcIP.Equal(dgram.SrcIP) || !got.DstIP.Equal(dgram.DstIP) {
		t.Errorf("addresses mismatch: got src=%v dst=%v, want src=%v dst=%v", got.SrcIP, got.DstIP, dgram.SrcIP, dgram.DstIP)
	}
}

func TestIPv4Numeric(t *testing.T) {
	ip := net.IPv4(10, 0, 0, 1)
	want := uint32(10)<<24 | uint32(0)<<16 | uint32(0)<<8 | uint32(1)
	if got := IPv4Numeric(ip); got != want {
		t.Errorf("IPv4Numeric(%v) = %d, want %d", ip, got, want)
	}
}

func TestARPRequestReplySerializeParseRoundTrip(t *testing.T) {
	senderMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	senderIP := net.IPv4(10, 0, 0, 1)
	targetIP := net.IPv4(10, 0, 0, 2)

	req := NewARPRequest(senderMAC, senderIP, targetIP)
	data, err := req.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	got, err := ParseARPMessage(data)
	if err != nil {
		t.Fatalf("ParseARPMessage() error: %v", err)
	}
	if got.Operation != ARPRequest {
		t.Errorf("Operation = %d, want ARPRequest", got.Operation)
	}
	if got.SenderMAC.String() != senderMAC.String() {
		t.Errorf("SenderMAC = %v, want %v", got.SenderMAC, senderMAC)
	}
	if !got.SenderIP.Equal(senderIP) || !got.TargetIP.Equal(targetIP) {
		t.Errorf("addresses mismatch: got sender=%v target=%v, want sender=%v target=%v", got.SenderIP, got.TargetIP, senderIP, targetIP)
	}

	reply := NewARPReply(net.HardwareAddr{0x02, 0, 0, 0, 0, 2}, targetIP, senderMAC, senderIP)
	replyData, err := reply.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	gotReply, err := ParseARPMessage(replyData)
	if err != nil {
		t.Fatalf("ParseARPMessage() error: %v", err)
	}
	if gotReply.Operation != ARPReply {
		t.Errorf("Operation = %d, want ARPReply", gotReply.Operation)
	}
}
