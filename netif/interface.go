// Package netif implements the link layer: translating between an IPv4
// datagram plus next-hop address and an Ethernet frame, resolving
// unknown next hops via ARP, and queueing datagrams until resolution
// completes.
package netif

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/mel2oo/go-tcpstack/sets"
	"github.com/mel2oo/go-tcpstack/wire"
)

const (
	// ARPCacheTTLMillis is how long a learned IP-to-Ethernet mapping stays
	// valid before it must be re-resolved.
	ARPCacheTTLMillis int64 = 30_000

	// ARPRequestCooldownMillis is the minimum time between ARP requests for
	// the same next-hop IP, to avoid flooding the network while a request
	// is outstanding.
	ARPRequestCooldownMillis int64 = 5_000
)

type cacheEntry struct {
	mac net.HardwareAddr
	ttl int64
}

// cacheExpiry is a FIFO entry recording the TTL a cache entry had when it
// was (re-)learned; on Tick, only entries whose snapshotted ttl still
// matches the live entry's ttl represent the current, unrefreshed mapping.
type cacheExpiry struct {
	ip  uint32
	ttl int64
}

type cooldown struct {
	ip  uint32
	ttl int64
}

// Interface is one Ethernet-attached, IPv4-addressed network endpoint: it
// owns an ARP cache, a set of datagrams pending ARP resolution, and an
// outbound frame queue drained by the host.
type Interface struct {
	Name string

	ethernetAddr net.HardwareAddr
	ip           net.IP

	arpCache      map[uint32]cacheEntry
	cacheExpiries []cacheExpiry

	pending map[uint32][]wire.InternetDatagram

	inFlightARP sets.Set[uint32]
	cooldowns   []cooldown

	framesOut [][]byte
}

// New creates an Interface with the given name (for logging), Ethernet
// address, and IPv4 address.
func New(name string, ethernetAddr net.HardwareAddr, ip net.IP) *Interface {
	return &Interface{
		Name:         name,
		ethernetAddr: ethernetAddr,
		ip:           ip,
		arpCache:     make(map[uint32]cacheEntry),
		pending:      make(map[uint32][]wire.InternetDatagram),
		inFlightARP:  sets.NewSet[uint32](),
	}
}

// EthernetAddress returns the interface's own Ethernet address.
func (n *Interface) EthernetAddress() net.HardwareAddr {
	return n.ethernetAddr
}

// IPAddress returns the interface's own IPv4 address.
func (n *Interface) IPAddress() net.IP {
	return n.ip
}

// DrainFramesOut returns and clears the queue of raw Ethernet frames ready
// for transmission.
func (n *Interface) DrainFramesOut() [][]byte {
	out := n.framesOut
	n.framesOut = nil
	return out
}

func (n *Interface) enqueueFrame(src, dst net.HardwareAddr, dgram wire.InternetDatagram) {
	frame, err := wire.BuildIPv4Frame(src, dst, dgram)
	if err != nil {
		logrus.WithError(err).WithField("interface", n.Name).Warn("failed to build IPv4 frame")
		return
	}
	n.framesOut = append(n.framesOut, frame)
}

func (n *Interface) enqueueARPRequest(targetIP net.IP) {
	msg := wire.NewARPRequest(n.ethernetAddr, n.ip, targetIP)
	frame, err := wire.BuildARPFrame(n.ethernetAddr, wire.BroadcastMAC, msg)
	if err != nil {
		logrus.WithError(err).WithField("interface", n.Name).Warn("failed to build ARP request")
		return
	}
	n.framesOut = append(n.framesOut, frame)
}

func (n *Interface) enqueueARPReply(targetMAC net.HardwareAddr, targetIP net.IP) {
	msg := wire.NewARPReply(n.ethernetAddr, n.ip, targetMAC, targetIP)
	frame, err := wire.BuildARPFrame(n.ethernetAddr, targetMAC, msg)
	if err != nil {
		logrus.WithError(err).WithField("interface", n.Name).Warn("failed to build ARP reply")
		return
	}
	n.framesOut = append(n.framesOut, frame)
}

// SendDatagram addresses dgram to nextHop: if nextHop's Ethernet address is
// already known, emits an IPv4 frame directly; otherwise queues the
// datagram and, unless an ARP request for nextHop is already in flight
// (within its cooldown), broadcasts a new one.
func (n *Interface) SendDatagram(dgram wire.InternetDatagram, nextHop net.IP) {
	nextHopNum := wire.IPv4Numeric(nextHop)

	if entry, ok := n.arpCache[nextHopNum]; ok {
		n.enqueueFrame(n.ethernetAddr, entry.mac, dgram)
		return
	}

	if n.inFlightARP.Contains(nextHopNum) {
		n.pending[nextHopNum] = append(n.pending[nextHopNum], dgram)
		return
	}

	n.enqueueARPRequest(nextHop)
	n.inFlightARP.Insert(nextHopNum)
	n.cooldowns = append(n.cooldowns, cooldown{ip: nextHopNum, ttl: ARPRequestCooldownMillis})
	n.pending[nextHopNum] = append(n.pending[nextHopNum], dgram)
}

// RecvFrame processes a raw inbound Ethernet frame: frames not addressed to
// this interface (unicast or broadcast) are dropped. An IPv4 frame yields
// the parsed datagram. An ARP frame updates the cache, answers requests
// addressed to this interface, and flushes any datagrams that had been
// queued for the now-resolved sender.
func (n *Interface) RecvFrame(data []byte) (wire.InternetDatagram, bool) {
	frame, err := wire.ParseEthernetFrame(data)
	if err != nil {
		logrus.WithError(err).WithField("interface", n.Name).Debug("dropping unparseable frame")
		return wire.InternetDatagram{}, false
	}

	if !macEqual(frame.DstMAC, wire.BroadcastMAC) && !macEqual(frame.DstMAC, n.ethernetAddr) {
		return wire.InternetDatagram{}, false
	}

	switch frame.Kind {
	case wire.FrameIPv4:
		return frame.Datagram, true

	case wire.FrameARP:
		n.handleARP(frame)
		return wire.InternetDatagram{}, false

	default:
		return wire.InternetDatagram{}, false
	}
}

func (n *Interface) handleARP(frame wire.EthernetFrame) {
	msg := frame.ARP

	if macEqual(frame.DstMAC, wire.BroadcastMAC) && wire.IPv4Numeric(msg.TargetIP) != wire.IPv4Numeric(n.ip) {
		return
	}

	senderIP := wire.IPv4Numeric(msg.SenderIP)
	n.arpCache[senderIP] = cacheEntry{mac: msg.SenderMAC, ttl: ARPCacheTTLMillis}
	n.cacheExpiries = append(n.cacheExpiries, cacheExpiry{ip: senderIP, ttl: ARPCacheTTLMillis})
	logrus.WithFields(logrus.Fields{
		"interface": n.Name,
		"ip":        msg.SenderIP.String(),
		"mac":       msg.SenderMAC.String(),
	}).Debug("learned ARP mapping")

	if msg.Operation == wire.ARPRequest {
		n.enqueueARPReply(msg.SenderMAC, msg.SenderIP)
	}

	queued := n.pending[senderIP]
	delete(n.pending, senderIP)
	n.inFlightARP.Delete(senderIP)
	for _, dgram := range queued {
		n.SendDatagram(dgram, msg.SenderIP)
	}
}

// Tick expires ARP cache entries and request cooldowns that have aged out.
func (n *Interface) Tick(ms int64) {
	for len(n.cacheExpiries) > 0 {
		front := n.cacheExpiries[0]
		live, ok := n.arpCache[front.ip]
		if !ok || live.ttl != front.ttl {
			// Superseded by a later refresh; this FIFO entry is stale.
			n.cacheExpiries = n.cacheExpiries[1:]
			continue
		}
		if live.ttl > ms {
			live.ttl -= ms
			n.arpCache[front.ip] = live
			n.cacheExpiries[0].ttl = live.ttl
			break
		}
		delete(n.arpCache, front.ip)
		n.cacheExpiries = n.cacheExpiries[1:]
	}

	for len(n.cooldowns) > 0 {
		front := n.cooldowns[0]
		if front.ttl > ms {
			n.cooldowns[0].ttl -= ms
			break
		}
		n.inFlightARP.Delete(front.ip)
		n.cooldowns = n.cooldowns[1:]
	}
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
