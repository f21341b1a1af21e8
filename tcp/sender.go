package tcp

import (
	"github.com/mel2oo/go-tcpstack/bytestream"
	"github.com/mel2oo/go-tcpstack/seqnum"
	"github.com/mel2oo/go-tcpstack/wire"
)

// outstandingSegment is a previously-sent segment still awaiting
// acknowledgement.
type outstandingSegment struct {
	seg      wire.TCPSegment
	absSeqno uint64
}

// Sender segments the outbound byte stream, tracks which bytes are in
// flight, and runs the retransmission timer with RTO backoff.
type Sender struct {
	cfg Config
	isn seqnum.WrappingInt32

	stream *bytestream.ByteStream

	nextSeqno     uint64
	bytesInFlight int
	peerWindow    uint16

	consecutiveRetransmissions int

	outstanding []outstandingSegment
	segmentsOut []wire.TCPSegment

	timer *timer
}

// NewSender creates a Sender with a fresh outbound byte stream of the
// configured capacity, using isn as the starting sequence number.
func NewSender(cfg Config, isn seqnum.WrappingInt32) *Sender {
	return &Sender{
		cfg:        cfg,
		isn:        isn,
		stream:     bytestream.New(cfg.Capacity),
		timer:      newTimer(cfg.InitialRTO),
		peerWindow: 1, // treat an unknown window as 1 until the first ACK
	}
}

// Stream returns the outbound byte stream that local writes go into and
// FillWindow reads from.
func (s *Sender) Stream() *bytestream.ByteStream {
	return s.stream
}

// BytesInFlight returns the sequence-space count of segments sent but not
// yet fully acknowledged.
func (s *Sender) BytesInFlight() int {
	return s.bytesInFlight
}

// NextSeqno returns the absolute sequence number of the next byte to send.
func (s *Sender) NextSeqno() uint64 {
	return s.nextSeqno
}

// ConsecutiveRetransmissions returns the number of retransmissions sent
// since the last new acknowledgement.
func (s *Sender) ConsecutiveRetransmissions() int {
	return s.consecutiveRetransmissions
}

// PendingCount returns the number of segments queued for transmission since
// the last drain, without draining them.
func (s *Sender) PendingCount() int {
	return len(s.segmentsOut)
}

// DrainSegmentsOut returns and clears all segments queued for transmission
// since the last drain.
func (s *Sender) DrainSegmentsOut() []wire.TCPSegment {
	out := s.segmentsOut
	s.segmentsOut = nil
	return out
}

// PopLastSegmentOut discards the most recently enqueued outgoing segment.
// Used when a connection decides to replace a just-queued retransmit with a
// RST instead.
func (s *Sender) PopLastSegmentOut() {
	if len(s.segmentsOut) == 0 {
		return
	}
	s.segmentsOut = s.segmentsOut[:len(s.segmentsOut)-1]
}

func (s *Sender) enqueueOut(seg wire.TCPSegment) {
	s.segmentsOut = append(s.segmentsOut, seg)
}

// sendSegment enqueues seg for transmission. When trackOutstanding is true,
// it's also recorded as awaiting acknowledgement, its length advances
// nextSeqno, and the timer is started if it wasn't already running.
func (s *Sender) sendSegment(seg wire.TCPSegment, trackOutstanding bool) {
	s.enqueueOut(seg)

	length := seg.LengthInSequenceSpace()
	if trackOutstanding {
		s.outstanding = append(s.outstanding, outstandingSegment{seg: seg, absSeqno: s.nextSeqno})
		s.bytesInFlight += length
	}
	s.nextSeqno += uint64(length)

	if trackOutstanding && s.timer.IsClosed() {
		s.timer.Start()
	}
}

// FillWindow segments as much of the outbound stream as the peer's
// advertised window (or a zero-window probe of 1 byte) allows.
func (s *Sender) FillWindow() {
	if s.nextSeqno == 0 {
		seg := wire.TCPSegment{Header: wire.TCPHeader{SeqNo: seqnum.Wrap(0, s.isn), SYN: true}}
		s.sendSegment(seg, true)
		return
	}

	if s.nextSeqno == uint64(s.stream.BytesWritten())+2 {
		// Everything, including FIN, has already been sent.
		return
	}

	for {
		if s.stream.EOF() && s.nextSeqno == uint64(s.stream.BytesWritten())+2 {
			break
		}

		effectiveWindow := uint64(s.peerWindow)
		if effectiveWindow == 0 {
			effectiveWindow = 1 // zero-window probe
		}

		oldestUnacked := s.nextSeqno - uint64(s.bytesInFlight)
		windowLeft := int64(oldestUnacked+effectiveWindow) - int64(s.nextSeqno)
		if windowLeft < 0 {
			windowLeft = 0
		}

		payloadSize := s.cfg.MaxPayloadSize
		if int64(payloadSize) > windowLeft {
			payloadSize = int(windowLeft)
		}
		if payloadSize > s.stream.BufferSize() {
			payloadSize = s.stream.BufferSize()
		}

		payload := s.stream.Read(payloadSize)
		fin := s.stream.EOF() && int64(len(payload)+1) <= windowLeft

		seg := wire.TCPSegment{
			Header: wire.TCPHeader{
				SeqNo: seqnum.Wrap(s.nextSeqno, s.isn),
				FIN:   fin,
			},
			Payload: payload,
		}

		if seg.LengthInSequenceSpace() == 0 {
			break
		}
		s.sendSegment(seg, true)
	}
}

// AckReceived processes an acknowledgement and the peer's advertised
// window, popping any outstanding segments it fully covers.
func (s *Sender) AckReceived(ackno seqnum.WrappingInt32, window uint16) {
	absAck := seqnum.Unwrap(ackno, s.isn, s.nextSeqno)
	if absAck > s.nextSeqno {
		// Acknowledges something we haven't sent yet.
		return
	}

	ackedAny := false
	i := 0
	for i < len(s.outstanding) {
		o := s.outstanding[i]
		segEnd := o.absSeqno + uint64(o.seg.LengthInSequenceSpace()) - 1
		if segEnd >= absAck {
			break
		}
		s.bytesInFlight -= o.seg.LengthInSequenceSpace()
		i++
		ackedAny = true
	}
	s.outstanding = s.outstanding[i:]

	s.peerWindow = window

	if ackedAny {
		s.timer.SetRTO(s.cfg.InitialRTO)
		if len(s.outstanding) > 0 {
			s.timer.Start()
		} else {
			s.timer.Close()
		}
		s.consecutiveRetransmissions = 0
	}
}

// Tick advances the retransmission timer by ms milliseconds, retransmitting
// the oldest outstanding segment if it expired.
func (s *Sender) Tick(ms int64) {
	if !s.timer.IsExpired(ms) {
		return
	}

	if len(s.outstanding) > 0 {
		s.enqueueOut(s.outstanding[0].seg)
	}

	if s.peerWindow != 0 {
		s.consecutiveRetransmissions++
		s.timer.DoubleRTO()
	}
	s.timer.Start()
}

// SendEmptySegment enqueues a flagless, payloadless segment carrying only
// the current sequence number, used to carry an ACK when FillWindow
// produced nothing of its own to send.
func (s *Sender) SendEmptySegment() {
	seg := wire.TCPSegment{Header: wire.TCPHeader{SeqNo: seqnum.Wrap(s.nextSeqno, s.isn)}}
	s.sendSegment(seg, false)
}
