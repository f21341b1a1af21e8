package gid

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ConnectionTag is the tag prefix for a ConnectionID, e.g. "cxn_...".
const ConnectionTag = "cxn"

// ConnectionID identifies a TCPConnection for its entire lifetime,
// independent of address/port reuse across connections.
type ConnectionID struct {
	baseID
}

func (ConnectionID) GetType() string {
	return ConnectionTag
}

func (id ConnectionID) String() string {
	return String(id)
}

func NewConnectionID(id uuid.UUID) ConnectionID {
	return ConnectionID{baseID(id)}
}

func GenerateConnectionID() ConnectionID {
	return NewConnectionID(uuid.New())
}

func (id ConnectionID) MarshalText() ([]byte, error) {
	return []byte(String(id)), nil
}

func (id *ConnectionID) UnmarshalText(data []byte) error {
	parsed, err := ParseConnectionID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseConnectionID parses the "cxn_..." textual form produced by String.
func ParseConnectionID(s string) (ConnectionID, error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return ConnectionID{}, errors.Errorf("invalid connection id %q", s)
	}
	if parts[0] != ConnectionTag {
		return ConnectionID{}, errors.Errorf("invalid connection id tag %q", parts[0])
	}
	u, err := decodeUUID(parts[1])
	if err != nil {
		return ConnectionID{}, errors.Wrapf(err, "invalid connection id %q", s)
	}
	return NewConnectionID(u), nil
}
