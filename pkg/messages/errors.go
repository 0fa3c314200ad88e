package messages

import (
	"errors"
	"fmt"
)

// ErrMalformedEnvelope matches every decode failure with errors.Is.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// MalformedEnvelopeError is returned when an envelope cannot be decoded.
type MalformedEnvelopeError struct {
	EventType EventType
	Reason    string
}

func (e *MalformedEnvelopeError) Error() string {
	if e.EventType == "" {
		return fmt.Sprintf("malformed envelope: %s", e.Reason)
	}
	return fmt.Sprintf("malformed %s envelope: %s", e.EventType, e.Reason)
}

func (e *MalformedEnvelopeError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}

func IsMalformedEnvelope(err error) bool {
	return errors.Is(err, ErrMalformedEnvelope)
}

func malformed(eventType EventType, format string, args ...interface{}) error {
	return &MalformedEnvelopeError{
		EventType: eventType,
		Reason:    fmt.Sprintf(format, args...),
	}
}
