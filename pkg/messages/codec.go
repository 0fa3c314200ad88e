package messages

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/scene"
)

// Encode serializes an event into its JSON envelope.
func Encode(e Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("failed to encode envelope: nil event")
	}
	payload, err := json.Marshal(e.payload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Type(), err)
	}
	b, err := json.Marshal(&Envelope{
		EventType: e.Type(),
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", e.Type(), err)
	}
	return b, nil
}

// Decode parses and validates an envelope. Every failure is a MalformedEnvelopeError.
func Decode(b []byte) (Event, error) {
	envelope := &Envelope{}
	if err := json.Unmarshal(b, envelope); err != nil {
		return nil, malformed("", "invalid json: %v", err)
	}

	switch envelope.EventType {
	case EventTypeAddPiece:
		p, err := decodePiece(envelope)
		if err != nil {
			return nil, err
		}
		return &AddPiece{Piece: p}, nil
	case EventTypeUpdatePiece:
		p, err := decodePiece(envelope)
		if err != nil {
			return nil, err
		}
		return &UpdatePiece{Piece: p}, nil
	case EventTypeMovePiece:
		e := &MovePiece{}
		if err := decodePayload(envelope, e, "id", "x", "y"); err != nil {
			return nil, err
		}
		if e.ID == "" {
			return nil, malformed(envelope.EventType, "empty id")
		}
		return e, nil
	case EventTypeDeletePiece:
		e := &DeletePiece{}
		if err := decodePayload(envelope, e, "id"); err != nil {
			return nil, err
		}
		if e.ID == "" {
			return nil, malformed(envelope.EventType, "empty id")
		}
		return e, nil
	case EventTypeRequestPiece:
		e := &RequestPiece{}
		if err := decodePayload(envelope, e, "id"); err != nil {
			return nil, err
		}
		if e.ID == "" {
			return nil, malformed(envelope.EventType, "empty id")
		}
		return e, nil
	case EventTypeChangeBackground:
		bg := scene.Background{}
		if err := decodePayload(envelope, &bg, "imageReference"); err != nil {
			return nil, err
		}
		switch bg.Type {
		case "", scene.BackgroundTypeImage, scene.BackgroundTypeVideo:
		default:
			return nil, malformed(envelope.EventType, "unknown background type %q", bg.Type)
		}
		return &ChangeBackground{Background: bg}, nil
	case EventTypeGridChange:
		e := &GridChange{}
		if err := decodePayload(envelope, e, "x", "y"); err != nil {
			return nil, err
		}
		if err := e.Grid().Validate(); err != nil {
			return nil, malformed(envelope.EventType, "%v", err)
		}
		return e, nil
	case EventTypeNewPlayerHello:
		return &NewPlayerHello{}, nil
	case "":
		return nil, malformed("", "missing eventType")
	default:
		return nil, malformed("", "unrecognized eventType %q", envelope.EventType)
	}
}

func decodePiece(envelope *Envelope) (*scene.Piece, error) {
	p := &scene.Piece{}
	if err := decodePayload(envelope, p, "id", "owner", "position", "objectType"); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, malformed(envelope.EventType, "%v", err)
	}
	return p, nil
}

// decodePayload unmarshals the payload into v after checking that every
// required field is present and not null.
func decodePayload(envelope *Envelope, v interface{}, required ...string) error {
	if len(envelope.Payload) == 0 || bytes.Equal(envelope.Payload, []byte("null")) {
		return malformed(envelope.EventType, "missing payload")
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(envelope.Payload, &fields); err != nil {
		return malformed(envelope.EventType, "payload is not an object: %v", err)
	}
	for _, name := range required {
		raw, ok := fields[name]
		if !ok || bytes.Equal(raw, []byte("null")) {
			return malformed(envelope.EventType, "missing field %q", name)
		}
	}
	if err := json.Unmarshal(envelope.Payload, v); err != nil {
		return malformed(envelope.EventType, "invalid payload: %v", err)
	}
	return nil
}
