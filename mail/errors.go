package mail

import (
	"errors"
	"fmt"
)

// ErrNoRecipient is returned when a message is sent without any To address.
var ErrNoRecipient = errors.New("mail: unable to send, no recipient set")

// ErrNoTransport is returned when a message is sent without a Transport.
var ErrNoTransport = errors.New("mail: no transport configured")

// ValidationError describes builder input that was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mail: invalid %s: %s", e.Field, e.Reason)
}

// fail records err as the sticky error unless one is already set.
func (m *Message) fail(err error) *Message {
	if m.err == nil {
		m.err = err
	}
	return m
}
