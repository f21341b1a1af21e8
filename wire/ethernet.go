package wire

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// BroadcastMAC is the all-ones Ethernet broadcast address.
var BroadcastMAC = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// FrameKind identifies what a parsed Ethernet frame's payload decodes to.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameIPv4
	FrameARP
)

// EthernetFrame is a parsed Ethernet II frame together with its decoded
// payload.
type EthernetFrame struct {
	SrcMAC, DstMAC net.HardwareAddr
	Kind           FrameKind
	Datagram       InternetDatagram
	ARP            ARPMessage
}

// BuildIPv4Frame serializes dgram as the payload of an Ethernet II frame
// addressed from src to dst.
func BuildIPv4Frame(src, dst net.HardwareAddr, dgram InternetDatagram) ([]byte, error) {
	payload, err := dgram.Serialize()
	if err != nil {
		return nil, err
	}

	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeIPv4,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		return nil, errors.Wrap(err, "wire: serialize IPv4 frame")
	}
	return buf.Bytes(), nil
}

// BuildARPFrame serializes an ARP message as the payload of an Ethernet II
// frame addressed from src to dst.
func BuildARPFrame(src, dst net.HardwareAddr, msg ARPMessage) ([]byte, error) {
	arpPayload, err := msg.Serialize()
	if err != nil {
		return nil, err
	}

	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeARP,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(arpPayload)); err != nil {
		return nil, errors.Wrap(err, "wire: serialize ARP frame")
	}
	return buf.Bytes(), nil
}

// ParseEthernetFrame parses an Ethernet II frame and, if its type is
// recognized (IPv4 or ARP), decodes the payload too. An unrecognized
// EtherType or a payload that fails to parse yields FrameUnknown, not an
// error: the caller (NetworkInterface) drops those silently.
func ParseEthernetFrame(data []byte) (EthernetFrame, error) {
	eth := &layers.Ethernet{}
	if err := eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return EthernetFrame{}, errors.Wrap(err, "wire: parse Ethernet frame")
	}

	frame := EthernetFrame{
		SrcMAC: eth.SrcMAC,
		DstMAC: eth.DstMAC,
	}

	switch eth.EthernetType {
	case layers.EthernetTypeIPv4:
		dgram, err := ParseInternetDatagram(eth.Payload)
		if err != nil {
			frame.Kind = FrameUnknown
			return frame, nil
		}
		frame.Kind = FrameIPv4
		frame.Datagram = dgram

	case layers.EthernetTypeARP:
		msg, err := ParseARPMessage(eth.Payload)
		if err != nil {
			frame.Kind = FrameUnknown
			return frame, nil
		}
		frame.Kind = FrameARP
		frame.ARP = msg

	default:
		frame.Kind = FrameUnknown
	}

	return frame, nil
}
