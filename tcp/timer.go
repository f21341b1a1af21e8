package tcp

// timer is the sender's retransmission timer: a dumb counter advanced only
// by Tick, with no callback machinery, so its behavior is deterministic and
// testable.
type timer struct {
	rto      int64
	timeLeft int64
	closed   bool
}

func newTimer(rto int64) *timer {
	return &timer{rto: rto, closed: true}
}

// Start restarts the timer at its current RTO.
func (t *timer) Start() {
	t.timeLeft = t.rto
	t.closed = false
}

// Close stops the timer; IsExpired will report false until it is Started
// again.
func (t *timer) Close() {
	t.closed = true
}

// IsClosed reports whether the timer is currently stopped.
func (t *timer) IsClosed() bool {
	return t.closed
}

// SetRTO resets the timer's retransmission timeout without affecting
// whether it is currently running.
func (t *timer) SetRTO(rto int64) {
	t.rto = rto
}

// DoubleRTO doubles the timer's retransmission timeout.
func (t *timer) DoubleRTO() {
	t.rto *= 2
}

// IsExpired advances the timer by ms milliseconds and reports whether it
// expired as a result. This is single-shot: once it reports true, the timer
// closes and reports false on every subsequent call until restarted.
func (t *timer) IsExpired(ms int64) bool {
	if t.closed {
		return false
	}
	if t.timeLeft > ms {
		t.timeLeft -= ms
		return false
	}
	t.closed = true
	return true
}
