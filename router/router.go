// Package router implements longest-prefix-match IPv4 routing across a set
// of named network interfaces.
package router

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/mel2oo/go-tcpstack/netif"
	"github.com/mel2oo/go-tcpstack/slices"
	"github.com/mel2oo/go-tcpstack/wire"
)

// Route is one entry in the router's route table: datagrams whose
// destination matches Prefix/PrefixLength go out InterfaceIndex, addressed
// to NextHop if set, or to the datagram's own destination if this network
// is directly attached.
type Route struct {
	Prefix         uint32
	PrefixLength   uint8
	NextHop        net.IP // nil means directly attached
	InterfaceIndex int
}

// Router holds an ordered route table and the interfaces it routes across.
type Router struct {
	routes     []Route
	interfaces []*netif.Interface
}

// New creates an empty Router over the given interfaces, indexed in the
// order given (AddRoute's InterfaceIndex refers to this order).
func New(interfaces ...*netif.Interface) *Router {
	return &Router{interfaces: interfaces}
}

// AddInterface appends an interface, returning its index for use in routes.
func (r *Router) AddInterface(iface *netif.Interface) int {
	r.interfaces = append(r.interfaces, iface)
	return len(r.interfaces) - 1
}

// AddRoute appends a route to the table. nextHop may be nil for a directly
// attached network.
func (r *Router) AddRoute(prefix uint32, prefixLength uint8, nextHop net.IP, interfaceIndex int) {
	logrus.WithFields(logrus.Fields{
		"prefix":        net.IPv4(byte(prefix>>24), byte(prefix>>16), byte(prefix>>8), byte(prefix)).String(),
		"prefix_length": prefixLength,
		"interface":     interfaceIndex,
	}).Debug("adding route")
	r.routes = append(r.routes, Route{Prefix: prefix, PrefixLength: prefixLength, NextHop: nextHop, InterfaceIndex: interfaceIndex})
}

// DumpRoutes renders the route table as one descriptive line per entry,
// for debug logging by a host.
func (r *Router) DumpRoutes() []string {
	return slices.Map(r.routes, func(route Route) string {
		prefixIP := net.IPv4(byte(route.Prefix>>24), byte(route.Prefix>>16), byte(route.Prefix>>8), byte(route.Prefix))
		nextHop := "directly attached"
		if route.NextHop != nil {
			nextHop = route.NextHop.String()
		}
		return fmt.Sprintf("%s/%d via %s on interface %d", prefixIP, route.PrefixLength, nextHop, route.InterfaceIndex)
	})
}

func prefixMask(prefixLength uint8) uint32 {
	if prefixLength == 0 {
		return 0
	}
	return ^uint32(0) << (32 - prefixLength)
}

// RouteOneDatagram routes a single datagram by longest-prefix match,
// decrementing its TTL and forwarding it to the matching interface. A TTL
// that would reach zero, or no matching route, silently drops the
// datagram.
func (r *Router) RouteOneDatagram(dgram wire.InternetDatagram) {
	if dgram.TTL <= 1 {
		return
	}

	dst := wire.IPv4Numeric(dgram.DstIP)

	best := -1
	var bestLen uint8
	for i, route := range r.routes {
		mask := prefixMask(route.PrefixLength)
		if dst&mask != route.Prefix&mask {
			continue
		}
		if best < 0 || route.PrefixLength > bestLen {
			best = i
			bestLen = route.PrefixLength
		}
	}
	if best < 0 {
		return
	}

	route := r.routes[best]
	dgram.TTL--

	nextHop := route.NextHop
	if nextHop == nil {
		nextHop = dgram.DstIP
	}
	r.interfaces[route.InterfaceIndex].SendDatagram(dgram, nextHop)
}

// Route routes each datagram of inbound in order; collecting them from the
// interfaces is left to the caller.
func (r *Router) Route(inbound []wire.InternetDatagram) {
	for _, dgram := range inbound {
		r.RouteOneDatagram(dgram)
	}
}
