package wire

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// ARP operation codes.
const (
	ARPRequest = layers.ARPRequest
	ARPReply   = layers.ARPReply
)

// ARPMessage is an ARP request or reply for IPv4-over-Ethernet.
type ARPMessage struct {
	Operation uint16

	SenderMAC net.HardwareAddr
	SenderIP  net.IP

	TargetMAC net.HardwareAddr
	TargetIP  net.IP
}

// NewARPRequest builds a broadcast ARP request asking who has targetIP.
func NewARPRequest(senderMAC net.HardwareAddr, senderIP net.IP, targetIP net.IP) ARPMessage {
	return ARPMessage{
		Operation: ARPRequest,
		SenderMAC: senderMAC,
		SenderIP:  senderIP,
		TargetMAC: net.HardwareAddr{0, 0, 0, 0, 0, 0},
		TargetIP:  targetIP,
	}
}

// NewARPReply builds a unicast ARP reply from senderMAC/senderIP to the
// requester identified by targetMAC/targetIP.
func NewARPReply(senderMAC net.HardwareAddr, senderIP net.IP, targetMAC net.HardwareAddr, targetIP net.IP) ARPMessage {
	return ARPMessage{
		Operation: ARPReply,
		SenderMAC: senderMAC,
		SenderIP:  senderIP,
		TargetMAC: targetMAC,
		TargetIP:  targetIP,
	}
}

// IPv4Numeric returns ip encoded as a big-endian uint32, the form the
// network interface's ARP cache is keyed by.
func IPv4Numeric(ip net.IP) uint32 {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(ip4)
}

// Serialize encodes the ARP message as raw bytes.
func (m ARPMessage) Serialize() ([]byte, error) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         m.Operation,
		SourceHwAddress:   []byte(m.SenderMAC),
		SourceProtAddress: []byte(m.SenderIP.To4()),
		DstHwAddress:      []byte(m.TargetMAC),
		DstProtAddress:    []byte(m.TargetIP.To4()),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, arp); err != nil {
		return nil, errors.Wrap(err, "wire: serialize ARP message")
	}
	return buf.Bytes(), nil
}

// ParseARPMessage parses an ARP message from raw bytes.
func ParseARPMessage(data []byte) (ARPMessage, error) {
	arp := &layers.ARP{}
	if err := arp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return ARPMessage{}, errors.Wrap(err, "wire: parse ARP message")
	}

	return ARPMessage{
		Operation: arp.Operation,
		SenderMAC: net.HardwareAddr(append([]byte(nil), arp.SourceHwAddress...)),
		SenderIP:  net.IP(append([]byte(nil), arp.SourceProtAddress...)),
		TargetMAC: net.HardwareAddr(append([]byte(nil), arp.DstHwAddress...)),
		TargetIP:  net.IP(append([]byte(nil), arp.DstProtAddress...)),
	}, nil
}
