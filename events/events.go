// Package events carries connection-lifecycle notifications out of the
// engine: which side dialed, and whether/how a connection ended. It is the
// TCP-lifecycle subset of what full traffic metadata would capture, without
// any of the application-layer content types that sit above this engine.
package events

import (
	"time"

	"github.com/mel2oo/go-tcpstack/gid"
)

// ConnectionInitiator identifies which of the two endpoints of a connection
// sent the opening SYN.
type ConnectionInitiator int

const (
	UnknownInitiator ConnectionInitiator = iota

	// LocalInitiator indicates this host's Connection called Connect first.
	LocalInitiator

	// RemoteInitiator indicates the first segment observed for this
	// connection carried a bare SYN from the peer.
	RemoteInitiator
)

func (i ConnectionInitiator) String() string {
	switch i {
	case LocalInitiator:
		return "local"
	case RemoteInitiator:
		return "remote"
	default:
		return "unknown"
	}
}

// ConnectionEndState indicates whether, and how, a connection was closed.
type ConnectionEndState string

const (
	// ConnectionOpen: neither FIN nor RST has been seen yet.
	ConnectionOpen ConnectionEndState = "OPEN"

	// ConnectionClosed: both sides reached a clean shutdown.
	ConnectionClosed ConnectionEndState = "CLOSED"

	// ConnectionReset: an RST ended the connection.
	ConnectionReset ConnectionEndState = "RESET"
)

// ConnectionEvent is a point-in-time notification about a connection's
// lifecycle. Host emits one when it reaps a connection that is no longer
// active (EndState ConnectionClosed or ConnectionReset); it emits no event
// when a connection opens.
type ConnectionEvent struct {
	ConnectionID gid.ConnectionID
	Initiator    ConnectionInitiator
	EndState     ConnectionEndState

	// ObservationTime is when this event was generated.
	ObservationTime time.Time
}
