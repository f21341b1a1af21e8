// Package wire adapts between this engine's domain types (TCPSegment,
// InternetDatagram, Ethernet/ARP frames) and their wire encodings, delegating
// all header parsing and serialization to gopacket/layers.
package wire

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/mel2oo/go-tcpstack/seqnum"
)

// TCPHeader holds the fields of a TCP segment header that the protocol
// engine reasons about directly; everything else (options, checksum) is the
// codec's concern.
type TCPHeader struct {
	SrcPort, DstPort layers.TCPPort
	SeqNo, AckNo     seqnum.WrappingInt32
	SYN, ACK, FIN, RST bool
	Win              uint16
}

// TCPSegment is a TCP header plus payload.
type TCPSegment struct {
	Header  TCPHeader
	Payload []byte
}

// LengthInSequenceSpace is the number of sequence numbers this segment
// occupies: the payload, plus one each for SYN and FIN.
func (s TCPSegment) LengthInSequenceSpace() int {
	n := len(s.Payload)
	if s.Header.SYN {
		n++
	}
	if s.Header.FIN {
		n++
	}
	return n
}

// ToLayer converts the segment into a gopacket layers.TCP ready for
// serialization. The caller is responsible for calling SetNetworkLayerForChecksum
// before serializing, since TCP checksums are computed over a pseudo-header.
func (s TCPSegment) ToLayer() *layers.TCP {
	return &layers.TCP{
		SrcPort: s.Header.SrcPort,
		DstPort: s.Header.DstPort,
		Seq:     uint32(s.Header.SeqNo),
		Ack:     uint32(s.Header.AckNo),
		SYN:     s.Header.SYN,
		ACK:     s.Header.ACK,
		FIN:     s.Header.FIN,
		RST:     s.Header.RST,
		Window:  s.Header.Win,
	}
}

// FromLayer builds a TCPSegment from a parsed layers.TCP and its payload.
func FromLayer(tcp *layers.TCP) TCPSegment {
	return TCPSegment{
		Header: TCPHeader{
			SrcPort: tcp.SrcPort,
			DstPort: tcp.DstPort,
			SeqNo:   seqnum.WrappingInt32(tcp.Seq),
			AckNo:   seqnum.WrappingInt32(tcp.Ack),
			SYN:     tcp.SYN,
			ACK:     tcp.ACK,
			FIN:     tcp.FIN,
			RST:     tcp.RST,
			Win:     tcp.Window,
		},
		Payload: append([]byte(nil), tcp.Payload...),
	}
}

// ParseTCPSegment parses a TCP segment out of raw bytes, given the IPv4
// layer it rides on (needed for the checksum's pseudo-header).
func ParseTCPSegment(data []byte, ip *layers.IPv4) (TCPSegment, error) {
	tcp := &layers.TCP{}
	if err := tcp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return TCPSegment{}, errors.Wrap(err, "wire: parse TCP segment")
	}
	if ip != nil {
		tcp.SetNetworkLayerForChecksum(ip)
	}
	return FromLayer(tcp), nil
}

// Serialize encodes the segment as TCP header + payload bytes. If ip is
// non-nil, the checksum is computed over its pseudo-header.
func (s TCPSegment) Serialize(ip *layers.IPv4) ([]byte, error) {
	tcp := s.ToLayer()
	if ip != nil {
		tcp.SetNetworkLayerForChecksum(ip)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, tcp, gopacket.Payload(s.Payload)); err != nil {
		return nil, errors.Wrap(err, "wire: serialize TCP segment")
	}
	return buf.Bytes(), nil
}
