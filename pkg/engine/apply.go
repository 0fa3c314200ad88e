package engine

import (
	"context"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
)

// HandleMessage deserializes wire bytes received from a peer and applies them.
// Failures never propagate: the envelope is dropped and logged.
func (e *Engine) HandleMessage(ctx context.Context, from string, data []byte) {
	ev, err := messages.DeserializeEnvelope(data)
	if err != nil {
		log.Warn("Dropping envelope from %s: %v", from, err)
		e.metrics.IncDropped(dropReason(err))
		return
	}
	if err := e.Apply(ctx, from, ev); err != nil {
		log.Debug("Dropped %s from %s: %v", ev.Type(), from, err)
	}
}

// Apply applies an event received from a peer and relays it when acting as host.
// A non-nil error means the event was dropped; it is counted and never fatal.
func (e *Engine) Apply(ctx context.Context, from string, ev messages.Event) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.metrics.IncReceived(string(ev.Type()))
	if err := e.apply(ctx, from, ev); err != nil {
		e.metrics.IncDropped(dropReason(err))
		return err
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, from string, ev messages.Event) error {
	top := e.session.Topology
	if !top.IsHost() && from != top.HostID() {
		return fmt.Errorf("%w: player received %s from non-host %s", ErrRoleViolation, ev.Type(), from)
	}
	// a connected peer takes part only after its hello
	if _, hello := ev.(*messages.NewPlayerHello); top.IsHost() && !hello && !top.IsKnownPlayer(from) {
		return fmt.Errorf("%w: %s from %s before its hello", ErrRoleViolation, ev.Type(), from)
	}

	switch event := ev.(type) {
	case *messages.AddPiece:
		return e.applyAddPiece(ctx, from, event)
	case *messages.UpdatePiece:
		return e.applyUpdatePiece(ctx, from, event)
	case *messages.MovePiece:
		return e.applyMovePiece(ctx, from, event)
	case *messages.DeletePiece:
		return e.applyDeletePiece(ctx, from, event)
	case *messages.RequestPiece:
		return e.applyRequestPiece(ctx, from, event)
	case *messages.ChangeBackground:
		return e.applyChangeBackground(ctx, from, event)
	case *messages.GridChange:
		return e.applyGridChange(ctx, from, event)
	case *messages.NewPlayerHello:
		return e.applyNewPlayerHello(ctx, from)
	default:
		return fmt.Errorf("%w: unhandled event type %T", ErrInvalidEvent, ev)
	}
}

func (e *Engine) applyAddPiece(ctx context.Context, from string, event *messages.AddPiece) error {
	if e.session.Scene.Has(event.Piece.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicatePiece, event.Piece.ID)
	}
	if err := e.session.Scene.Add(event.Piece); err != nil {
		return localError(err)
	}
	e.mutated()
	e.relay(ctx, from, event)
	return nil
}

func (e *Engine) applyUpdatePiece(ctx context.Context, from string, event *messages.UpdatePiece) error {
	if !e.session.Scene.Has(event.Piece.ID) {
		e.requestMissing(ctx, event.Piece.ID)
		return fmt.Errorf("%w: update of %s", ErrUnknownPiece, event.Piece.ID)
	}
	if err := e.session.Scene.Replace(event.Piece); err != nil {
		return localError(err)
	}
	e.mutated()
	e.relay(ctx, from, event)
	return nil
}

// applyMovePiece drops a move for a missing piece. A player asks the host for
// the piece instead; the AddPiece answer carries the host's current position.
func (e *Engine) applyMovePiece(ctx context.Context, from string, event *messages.MovePiece) error {
	if !e.session.Scene.Has(event.ID) {
		e.requestMissing(ctx, event.ID)
		return fmt.Errorf("%w: move of %s", ErrUnknownPiece, event.ID)
	}
	if err := e.session.Scene.Move(event.ID, event.Position()); err != nil {
		return localError(err)
	}
	e.mutated()
	e.relay(ctx, from, event)
	return nil
}

func (e *Engine) applyDeletePiece(ctx context.Context, from string, event *messages.DeletePiece) error {
	if !e.session.Scene.Remove(event.ID) {
		// already gone, nothing to relay
		log.Trace("Delete of absent piece %s from %s", event.ID, from)
		return nil
	}
	e.mutated()
	e.relay(ctx, from, event)
	return nil
}

func (e *Engine) applyRequestPiece(ctx context.Context, from string, event *messages.RequestPiece) error {
	if !e.session.Topology.IsHost() {
		return fmt.Errorf("%w: only the host answers piece requests", ErrRoleViolation)
	}
	p, ok := e.session.Scene.Get(event.ID)
	if !ok {
		return fmt.Errorf("%w: request for %s", ErrUnknownPiece, event.ID)
	}
	e.send(ctx, from, &messages.AddPiece{Piece: p})
	return nil
}

func (e *Engine) applyChangeBackground(ctx context.Context, from string, event *messages.ChangeBackground) error {
	if e.session.Topology.IsHost() {
		return fmt.Errorf("%w: player %s attempted to change the background", ErrRoleViolation, from)
	}
	if !e.session.Scene.SetBackground(event.Background) {
		return nil
	}
	e.mutated()
	return nil
}

func (e *Engine) applyGridChange(ctx context.Context, from string, event *messages.GridChange) error {
	if e.session.Topology.IsHost() {
		return fmt.Errorf("%w: player %s attempted to change the grid", ErrRoleViolation, from)
	}
	if err := e.session.Scene.SetGrid(event.Grid()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	e.mutated()
	return nil
}

func (e *Engine) applyNewPlayerHello(ctx context.Context, from string) error {
	top := e.session.Topology
	if !top.IsHost() {
		return fmt.Errorf("%w: only the host accepts new players", ErrRoleViolation)
	}
	added, err := top.RecordPlayerJoined(from)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRoleViolation, err)
	}
	if !added {
		log.Debug("Ignoring repeated hello from %s", from)
		return nil
	}
	log.Info("Player %s joined", from)
	e.metrics.SetConnectedPlayers(top.PlayerCount())
	e.join(ctx, from)
	return nil
}

// requestMissing asks the host for a piece this player has not received yet.
func (e *Engine) requestMissing(ctx context.Context, id string) {
	if e.session.Topology.IsHost() {
		return
	}
	log.Debug("Requesting missing piece %s from host", id)
	e.send(ctx, e.session.Topology.HostID(), &messages.RequestPiece{ID: id})
}
