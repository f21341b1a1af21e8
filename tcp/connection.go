package tcp

import (
	"math/rand"

	"github.com/mel2oo/go-tcpstack/bytestream"
	"github.com/mel2oo/go-tcpstack/seqnum"
	"github.com/mel2oo/go-tcpstack/wire"
)

// Connection couples a Sender and Receiver, handles RST and shutdown, and
// implements the connection lifecycle: SYN, established, FIN, and a
// TIME-WAIT-like linger before fully closing.
type Connection struct {
	cfg Config

	sender   *Sender
	receiver *Receiver

	// linger is cleared once the inbound stream ends before the outbound
	// stream reaches EOF, meaning a clean shutdown doesn't need to wait out
	// the full linger period.
	linger bool

	active bool

	timeSinceLastSegmentReceived int64

	segmentsOut []wire.TCPSegment
}

// NewConnection creates an idle Connection with a randomly chosen ISN.
func NewConnection(cfg Config) *Connection {
	isn := seqnum.WrappingInt32(rand.Uint32())
	return &Connection{
		cfg:      cfg,
		sender:   NewSender(cfg, isn),
		receiver: NewReceiver(cfg.Capacity),
		linger:   true,
		active:   true,
	}
}

// Active reports whether the connection is still live.
func (c *Connection) Active() bool {
	return c.active
}

// BytesInFlight returns the sender's outstanding sequence-space byte count.
func (c *Connection) BytesInFlight() int {
	return c.sender.BytesInFlight()
}

// UnassembledBytes returns the receiver's buffered-but-not-yet-written byte
// count.
func (c *Connection) UnassembledBytes() int {
	return c.receiver.UnassembledBytes()
}

// RemainingOutboundCapacity returns how much more can still be written to
// the outbound stream before Write starts truncating.
func (c *Connection) RemainingOutboundCapacity() int {
	return c.sender.Stream().RemainingCapacity()
}

// TimeSinceLastSegmentReceived returns the milliseconds elapsed since the
// last inbound segment, as tracked across Tick calls.
func (c *Connection) TimeSinceLastSegmentReceived() int64 {
	return c.timeSinceLastSegmentReceived
}

// InboundStream returns the byte stream of data received from the peer.
func (c *Connection) InboundStream() *bytestream.ByteStream {
	return c.receiver.Stream()
}

func (c *Connection) drainSenderSegments() {
	for _, seg := range c.sender.DrainSegmentsOut() {
		c.decorateAndEnqueue(seg)
	}
}

// decorateAndEnqueue fills in the outgoing segment's ack/window/rst fields
// from the receiver's current state before handing it to the connection's
// own outbound queue.
func (c *Connection) decorateAndEnqueue(seg wire.TCPSegment) {
	if ackno, ok := c.receiver.Ackno(); ok {
		seg.Header.ACK = true
		seg.Header.AckNo = ackno
		seg.Header.Win = c.receiver.WindowSize()
	}
	c.segmentsOut = append(c.segmentsOut, seg)
}

// DrainSegmentsOut returns and clears all segments queued for transmission
// on this connection since the last drain.
func (c *Connection) DrainSegmentsOut() []wire.TCPSegment {
	out := c.segmentsOut
	c.segmentsOut = nil
	return out
}

func (c *Connection) sendRST() {
	c.sender.SendEmptySegment()
	segs := c.sender.DrainSegmentsOut()
	for i := range segs {
		segs[i].Header.RST = true
		c.decorateAndEnqueue(segs[i])
	}
}

func (c *Connection) uncleanShutdown() {
	c.sender.Stream().SetError()
	c.receiver.Stream().SetError()
	c.active = false
}

// Connect kicks off the connection by sending a SYN.
func (c *Connection) Connect() {
	c.sender.FillWindow()
	c.drainSenderSegments()
}

// Write pushes data onto the outbound stream and tries to send as much of
// it as the window allows. It returns the number of bytes accepted.
func (c *Connection) Write(data []byte) int {
	n := c.sender.Stream().Write(data)
	c.sender.FillWindow()
	c.drainSenderSegments()
	return n
}

// EndInputStream marks the outbound stream as having no more data, kicking
// a FIN out if the window allows it.
func (c *Connection) EndInputStream() {
	c.sender.Stream().EndInput()
	c.sender.FillWindow()
	c.drainSenderSegments()
}

// SegmentReceived processes an inbound segment: receiver state updates
// precede sender state updates precede output drain.
func (c *Connection) SegmentReceived(seg wire.TCPSegment) {
	if !c.active {
		return
	}
	c.timeSinceLastSegmentReceived = 0

	if seg.Header.RST {
		c.uncleanShutdown()
		return
	}

	inboundEndedBefore := c.receiver.Stream().InputEnded()

	c.receiver.SegmentReceived(seg)

	if seg.Header.ACK {
		c.sender.AckReceived(seg.Header.AckNo, seg.Header.Win)
	}

	if seg.LengthInSequenceSpace() > 0 {
		before := c.sender.PendingCount()
		c.sender.FillWindow()
		if c.sender.PendingCount() == before {
			c.sender.SendEmptySegment()
		}
	}

	// Keep-alive reply: an old, already-acknowledged keep-alive probe
	// expects a bare ACK back.
	if ackno, ok := c.receiver.Ackno(); ok {
		if seg.LengthInSequenceSpace() == 0 && seg.Header.SeqNo == ackno-1 {
			c.sender.SendEmptySegment()
		}
	}

	if !inboundEndedBefore && c.receiver.Stream().InputEnded() && !c.sender.Stream().EOF() {
		c.linger = false
	}

	c.drainSenderSegments()
}

// Tick advances time by ms milliseconds: the sender's retransmission timer,
// the shutdown linger countdown, and the RST-on-too-many-retransmissions
// check.
func (c *Connection) Tick(ms int64) {
	if c.sender.Stream().BytesWritten() > 0 {
		c.sender.FillWindow()
	}

	// Drain whatever FillWindow just queued before the retransmission timer
	// runs, so a subsequent RST-on-exhaustion below only ever marks the
	// timer's own retransmit segment, not unrelated data segments.
	c.drainSenderSegments()

	c.sender.Tick(ms)

	if c.sender.ConsecutiveRetransmissions() > MaxRetxAttempts {
		c.sender.PopLastSegmentOut()
		c.sendRST()
		c.uncleanShutdown()
		return
	}

	c.drainSenderSegments()

	c.timeSinceLastSegmentReceived += ms

	if c.receiver.Stream().InputEnded() && c.sender.Stream().EOF() && c.sender.BytesInFlight() == 0 {
		if !c.linger {
			c.active = false
		} else if c.timeSinceLastSegmentReceived >= 10*c.cfg.InitialRTO {
			c.active = false
		}
	}
}

// Close performs the connection's best-effort unclean shutdown: if still
// active, it sends a RST before giving up ownership.
func (c *Connection) Close() {
	if c.active {
		c.sendRST()
		c.uncleanShutdown()
	}
}
