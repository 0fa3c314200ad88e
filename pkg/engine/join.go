package engine

import (
	"context"

	"github.com/cbodonnell/tabletop/pkg/messages"
)

// join pushes the host's scene to a newly connected player: background,
// then grid scale, then one AddPiece per piece from the bottom of the stack.
// Each push is self-contained, so the order only limits flicker.
func (e *Engine) join(ctx context.Context, playerID string) {
	s := e.session.Scene
	if bg := s.Background(); bg.IsSet() {
		e.send(ctx, playerID, &messages.ChangeBackground{Background: bg})
	}
	grid := s.Grid()
	e.send(ctx, playerID, &messages.GridChange{X: grid.X, Y: grid.Y})
	for _, p := range s.Pieces() {
		e.send(ctx, playerID, &messages.AddPiece{Piece: p})
	}
}
