package tcp

import "testing"

func TestTimerStartAndExpire(t *testing.T) {
	tm := newTimer(100)
	tm.Start()

	if tm.IsExpired(50) {
		t.Fatal("expected timer not yet expired after 50ms of a 100ms RTO")
	}
	if !tm.IsExpired(50) {
		t.Fatal("expected timer expired after a cumulative 100ms")
	}
	// Single-shot: stays closed until restarted.
	if tm.IsExpired(1000) {
		t.Fatal("expected an already-expired timer to stay closed")
	}
}

func TestTimerClosedNeverExpires(t *testing.T) {
	tm := newTimer(100)
	if tm.IsExpired(1000) {
		t.Fatal("a never-started timer should never report expired")
	}
}

func TestTimerDoubleRTO(t *testing.T) {
	tm := newTimer(100)
	tm.DoubleRTO()
	tm.Start()

	if tm.IsExpired(199) != false {
		t.Fatal("expected timer not yet expired after 199ms of a 200ms RTO")
	}
	if !tm.IsExpired(1) {
		t.Fatal("expected timer expired after a cumulative 200ms")
	}
}

func TestTimerSetRTO(t *testing.T) {
	tm := newTimer(200)
	tm.SetRTO(50)
	tm.Start()

	if !tm.IsExpired(50) {
		t.Fatal("expected timer expired after 50ms once RTO reset to 50")
	}
}
