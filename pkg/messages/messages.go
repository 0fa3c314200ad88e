package messages

import (
	"encoding/json"

	"github.com/cbodonnell/tabletop/pkg/scene"
)

// EventType tags an envelope with the single event it carries.
type EventType string

const (
	EventTypeAddPiece         EventType = "AddPiece"
	EventTypeMovePiece        EventType = "MovePiece"
	EventTypeUpdatePiece      EventType = "UpdatePiece"
	EventTypeDeletePiece      EventType = "DeletePiece"
	EventTypeRequestPiece     EventType = "RequestPiece"
	EventTypeChangeBackground EventType = "ChangeBackground"
	EventTypeGridChange       EventType = "GridChange"
	EventTypeNewPlayerHello   EventType = "NewPlayerHello"
)

// EventTypes lists every tag of the closed event set.
var EventTypes = []EventType{
	EventTypeAddPiece,
	EventTypeMovePiece,
	EventTypeUpdatePiece,
	EventTypeDeletePiece,
	EventTypeRequestPiece,
	EventTypeChangeBackground,
	EventTypeGridChange,
	EventTypeNewPlayerHello,
}

// Envelope is the unit exchanged between participants
type Envelope struct {
	EventType EventType       `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// Event is one of the concrete event structs below.
// The set is closed: only this package can add variants.
type Event interface {
	Type() EventType
	payload() interface{}
}

// AddPiece carries the full piece record, including its current position.
type AddPiece struct {
	Piece *scene.Piece
}

// UpdatePiece replaces every field of an existing piece.
type UpdatePiece struct {
	Piece *scene.Piece
}

// MovePiece overwrites the position of a piece.
type MovePiece struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type DeletePiece struct {
	ID string `json:"id"`
}

// RequestPiece asks the host to resend a piece the sender does not have.
type RequestPiece struct {
	ID string `json:"id"`
}

type ChangeBackground struct {
	Background scene.Background
}

// GridChange carries the new grid scale fractions.
type GridChange struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPlayerHello announces a player to the host.
type NewPlayerHello struct{}

func (e *AddPiece) Type() EventType         { return EventTypeAddPiece }
func (e *UpdatePiece) Type() EventType      { return EventTypeUpdatePiece }
func (e *MovePiece) Type() EventType        { return EventTypeMovePiece }
func (e *DeletePiece) Type() EventType      { return EventTypeDeletePiece }
func (e *RequestPiece) Type() EventType     { return EventTypeRequestPiece }
func (e *ChangeBackground) Type() EventType { return EventTypeChangeBackground }
func (e *GridChange) Type() EventType       { return EventTypeGridChange }
func (e *NewPlayerHello) Type() EventType   { return EventTypeNewPlayerHello }

func (e *AddPiece) payload() interface{}         { return e.Piece }
func (e *UpdatePiece) payload() interface{}      { return e.Piece }
func (e *MovePiece) payload() interface{}        { return e }
func (e *DeletePiece) payload() interface{}      { return e }
func (e *RequestPiece) payload() interface{}     { return e }
func (e *ChangeBackground) payload() interface{} { return e.Background }
func (e *GridChange) payload() interface{}       { return e }
func (e *NewPlayerHello) payload() interface{}   { return e }

// Grid returns the grid scale carried by the event.
func (e *GridChange) Grid() scene.GridScale {
	return scene.GridScale{X: e.X, Y: e.Y}
}

// Position returns the position carried by the event.
func (e *MovePiece) Position() scene.Position {
	return scene.Position{X: e.X, Y: e.Y}
}
