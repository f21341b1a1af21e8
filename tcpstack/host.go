// Package tcpstack wires a router, a set of named network interfaces, and a
// table of TCP connections into one single-threaded engine: frames arrive
// through QueueFrame, time advances through Tick, and everything downstream
// — reassembly, retransmission, ARP resolution, routing — runs
// synchronously on the caller's goroutine.
package tcpstack

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mel2oo/go-tcpstack/events"
	"github.com/mel2oo/go-tcpstack/gid"
	"github.com/mel2oo/go-tcpstack/netif"
	"github.com/mel2oo/go-tcpstack/router"
	"github.com/mel2oo/go-tcpstack/tcp"
	"github.com/mel2oo/go-tcpstack/wire"
)

// connKey identifies a TCP connection by its four-tuple. Ports and IPs are
// stored as comparable values so connKey can key a map directly.
type connKey struct {
	localIP, remoteIP string
	localPort, remotePort layers.TCPPort
}

type connEntry struct {
	id         gid.ConnectionID
	conn       *tcp.Connection
	iface      string
	localIP    net.IP
	remoteIP   net.IP
	localPort  layers.TCPPort
	remotePort layers.TCPPort
	initiator  events.ConnectionInitiator
	reported   bool // whether a ConnectionEvent has already been emitted for this connection's end
}

// Host owns the link-layer interfaces, the router forwarding datagrams
// between them, and every TCP connection either originated locally or
// accepted on a listening port.
type Host struct {
	router     *router.Router
	interfaces map[string]*netif.Interface

	pendingFrames map[string][][]byte

	connections map[connKey]*connEntry
	byID        map[gid.ConnectionID]*connEntry

	// listeners maps a (interface name, port) to the config new passive
	// connections on that port are built with.
	listeners map[string]tcp.Config

	events []events.ConnectionEvent
}

// NewHost creates a Host with no interfaces; use AddInterface to attach one.
func NewHost() *Host {
	return &Host{
		router:        router.New(),
		interfaces:    make(map[string]*netif.Interface),
		pendingFrames: make(map[string][][]byte),
		connections:   make(map[connKey]*connEntry),
		byID:          make(map[gid.ConnectionID]*connEntry),
		listeners:     make(map[string]tcp.Config),
	}
}

// AddInterface attaches a named interface to the host and registers it with
// the router, returning the router's index for it.
func (h *Host) AddInterface(name string, iface *netif.Interface) int {
	h.interfaces[name] = iface
	return h.router.AddInterface(iface)
}

// AddRoute adds a forwarding route to the host's router.
func (h *Host) AddRoute(prefix uint32, prefixLength uint8, nextHop net.IP, interfaceIndex int) {
	h.router.AddRoute(prefix, prefixLength, nextHop, interfaceIndex)
}

// Listen marks a (interface, port) pair as accepting new inbound
// connections, built with cfg.
func (h *Host) Listen(ifaceName string, port layers.TCPPort, cfg tcp.Config) {
	h.listeners[listenKey(ifaceName, port)] = cfg
}

func listenKey(ifaceName string, port layers.TCPPort) string {
	return fmt.Sprintf("%s:%d", ifaceName, uint16(port))
}

// Dial actively opens a connection from ifaceName to remoteIP:remotePort,
// sourced from localPort, and returns its ConnectionID.
func (h *Host) Dial(ifaceName string, localPort layers.TCPPort, remoteIP net.IP, remotePort layers.TCPPort, cfg tcp.Config) (gid.ConnectionID, error) {
	iface, ok := h.interfaces[ifaceName]
	if !ok {
		return gid.ConnectionID{}, errors.Errorf("tcpstack: no such interface %q", ifaceName)
	}

	key := connKey{
		localIP:    iface.IPAddress().String(),
		remoteIP:   remoteIP.String(),
		localPort:  localPort,
		remotePort: remotePort,
	}
	if _, exists := h.connections[key]; exists {
		return gid.ConnectionID{}, errors.Errorf("tcpstack: connection already exists for %+v", key)
	}

	conn := tcp.NewConnection(cfg)
	conn.Connect()

	entry := &connEntry{
		id:         gid.GenerateConnectionID(),
		conn:       conn,
		iface:      ifaceName,
		localIP:    iface.IPAddress(),
		remoteIP:   remoteIP,
		localPort:  localPort,
		remotePort: remotePort,
		initiator:  events.LocalInitiator,
	}
	h.connections[key] = entry
	h.byID[entry.id] = entry

	h.flushConnection(entry)
	return entry.id, nil
}

// Connection looks up a connection by ID.
func (h *Host) Connection(id gid.ConnectionID) (*tcp.Connection, bool) {
	entry, ok := h.byID[id]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// Write writes data to the outbound stream of the connection id and flushes
// any resulting segments.
func (h *Host) Write(id gid.ConnectionID, data []byte) (int, error) {
	entry, ok := h.byID[id]
	if !ok {
		return 0, errors.Errorf("tcpstack: no such connection %s", id)
	}
	n := entry.conn.Write(data)
	h.flushConnection(entry)
	return n, nil
}

// CloseConnection ends the outbound stream of the connection id.
func (h *Host) CloseConnection(id gid.ConnectionID) error {
	entry, ok := h.byID[id]
	if !ok {
		return errors.Errorf("tcpstack: no such connection %s", id)
	}
	entry.conn.EndInputStream()
	h.flushConnection(entry)
	return nil
}

// DrainFrames returns and clears the raw Ethernet frames queued for
// transmission on the named interface, ready to hand to a capture.Writer or
// a real link.
func (h *Host) DrainFrames(ifaceName string) ([][]byte, error) {
	iface, ok := h.interfaces[ifaceName]
	if !ok {
		return nil, errors.Errorf("tcpstack: no such interface %q", ifaceName)
	}
	return iface.DrainFramesOut(), nil
}

// QueueFrame enqueues a raw Ethernet frame received on the named interface,
// to be processed on the next Tick.
func (h *Host) QueueFrame(ifaceName string, data []byte) error {
	if _, ok := h.interfaces[ifaceName]; !ok {
		return errors.Errorf("tcpstack: no such interface %q", ifaceName)
	}
	h.pendingFrames[ifaceName] = append(h.pendingFrames[ifaceName], data)
	return nil
}

// DrainEvents returns and clears the connection lifecycle events observed
// since the last drain.
func (h *Host) DrainEvents() []events.ConnectionEvent {
	out := h.events
	h.events = nil
	return out
}

// Tick advances the host by ms milliseconds: interface ARP aging, then
// routing every frame queued since the last tick, then every connection's
// own timer — mirroring the engine's own tick ordering one level up.
func (h *Host) Tick(ms int64) {
	for _, iface := range h.interfaces {
		iface.Tick(ms)
	}

	h.routePendingFrames()

	for key, entry := range h.connections {
		entry.conn.Tick(ms)
		h.flushConnection(entry)
		h.reapIfClosed(key, entry)
	}
}

func (h *Host) routePendingFrames() {
	pending := h.pendingFrames
	h.pendingFrames = make(map[string][][]byte)

	var inbound []wire.InternetDatagram

	for ifaceName, frames := range pending {
		iface := h.interfaces[ifaceName]
		for _, frame := range frames {
			dgram, ok := iface.RecvFrame(frame)
			if !ok {
				continue
			}
			inbound = append(inbound, dgram)
		}
	}

	for _, dgram := range inbound {
		if h.isLocal(dgram.DstIP) && dgram.Protocol == layers.IPProtocolTCP {
			h.deliverLocally(dgram)
			continue
		}
		h.router.RouteOneDatagram(dgram)
	}
}

func (h *Host) isLocal(ip net.IP) bool {
	for _, iface := range h.interfaces {
		if iface.IPAddress().Equal(ip) {
			return true
		}
	}
	return false
}

func (h *Host) deliverLocally(dgram wire.InternetDatagram) {
	seg, err := wire.ParseTCPSegment(dgram.Payload, dgram.Layer())
	if err != nil {
		logrus.WithError(err).Debug("tcpstack: dropping unparseable TCP segment")
		return
	}

	key := connKey{
		localIP:    dgram.DstIP.String(),
		remoteIP:   dgram.SrcIP.String(),
		localPort:  seg.Header.DstPort,
		remotePort: seg.Header.SrcPort,
	}

	entry, ok := h.connections[key]
	if !ok {
		entry, ok = h.acceptIfListening(dgram, seg, key)
		if !ok {
			return
		}
	}

	entry.conn.SegmentReceived(seg)
	h.flushConnection(entry)
}

func (h *Host) acceptIfListening(dgram wire.InternetDatagram, seg wire.TCPSegment, key connKey) (*connEntry, bool) {
	if !seg.Header.SYN {
		return nil, false
	}

	ifaceName := h.ifaceForIP(dgram.DstIP)
	if ifaceName == "" {
		return nil, false
	}
	cfg, ok := h.listeners[listenKey(ifaceName, seg.Header.DstPort)]
	if !ok {
		return nil, false
	}

	conn := tcp.NewConnection(cfg)
	entry := &connEntry{
		id:         gid.GenerateConnectionID(),
		conn:       conn,
		iface:      ifaceName,
		localIP:    dgram.DstIP,
		remoteIP:   dgram.SrcIP,
		localPort:  seg.Header.DstPort,
		remotePort: seg.Header.SrcPort,
		initiator:  events.RemoteInitiator,
	}
	h.connections[key] = entry
	h.byID[entry.id] = entry
	return entry, true
}

func (h *Host) ifaceForIP(ip net.IP) string {
	for name, iface := range h.interfaces {
		if iface.IPAddress().Equal(ip) {
			return name
		}
	}
	return ""
}

// flushConnection encapsulates every segment the connection has queued for
// transmission into an IPv4 datagram and routes it toward the remote peer.
func (h *Host) flushConnection(entry *connEntry) {
	for _, seg := range entry.conn.DrainSegmentsOut() {
		seg.Header.SrcPort = entry.localPort
		seg.Header.DstPort = entry.remotePort

		dgram := wire.InternetDatagram{
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    entry.localIP,
			DstIP:    entry.remoteIP,
		}
		payload, err := seg.Serialize(dgram.Layer())
		if err != nil {
			logrus.WithError(err).WithField("connection", entry.id).Warn("tcpstack: failed to serialize outbound segment")
			continue
		}
		dgram.Payload = payload

		h.router.RouteOneDatagram(dgram)
	}
}

func (h *Host) reapIfClosed(key connKey, entry *connEntry) {
	if entry.conn.Active() || entry.reported {
		return
	}
	entry.reported = true

	endState := events.ConnectionClosed
	if entry.conn.InboundStream().Error() {
		endState = events.ConnectionReset
	}

	h.events = append(h.events, events.ConnectionEvent{
		ConnectionID:    entry.id,
		Initiator:       entry.initiator,
		EndState:        endState,
		ObservationTime: time.Now(),
	})

	delete(h.connections, key)
	delete(h.byID, entry.id)
}
