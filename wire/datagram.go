package wire

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// InternetDatagram is an IPv4 datagram: the header fields the router and
// network interface act on, plus an opaque payload (typically a serialized
// TCPSegment).
type InternetDatagram struct {
	TTL       uint8
	Protocol  layers.IPProtocol
	SrcIP     net.IP
	DstIP     net.IP
	Payload   []byte
}

// ParseInternetDatagram parses an IPv4 datagram from raw bytes.
func ParseInternetDatagram(data []byte) (InternetDatagram, error) {
	ip := &layers.IPv4{}
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return InternetDatagram{}, errors.Wrap(err, "wire: parse IPv4 datagram")
	}
	return InternetDatagram{
		TTL:      ip.TTL,
		Protocol: ip.Protocol,
		SrcIP:    ip.SrcIP,
		DstIP:    ip.DstIP,
		Payload:  append([]byte(nil), ip.Payload...),
	}, nil
}

// Layer returns the gopacket layers.IPv4 equivalent of this datagram's
// header, useful as the pseudo-header input for a carried TCP segment's
// checksum.
func (d InternetDatagram) Layer() *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      d.TTL,
		Protocol: d.Protocol,
		SrcIP:    d.SrcIP,
		DstIP:    d.DstIP,
	}
}

// Serialize encodes the datagram's IPv4 header and payload as raw bytes.
func (d InternetDatagram) Serialize() ([]byte, error) {
	ip := d.Layer()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload(d.Payload)); err != nil {
		return nil, errors.Wrap(err, "wire: serialize IPv4 datagram")
	}
	return buf.Bytes(), nil
}
