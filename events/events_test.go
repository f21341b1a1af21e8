package events

import "testing"

func TestConnectionInitiatorString(t *testing.T) {
	cases := map[ConnectionInitiator]string{
		UnknownInitiator: "unknown",
		LocalInitiator:   "local",
		RemoteInitiator:  "remote",
	}
	for initiator, want := range cases {
		if got := initiator.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", initiator, got, want)
		}
	}
}
