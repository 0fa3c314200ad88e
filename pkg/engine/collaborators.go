package engine

import (
	"context"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/scene"
)

// Transport hands events to the network.
// Send must not wait for delivery; per-connection order must be preserved.
type Transport interface {
	Send(ctx context.Context, peerID string, e messages.Event) error
}

// Renderer is notified after every successful mutation of the local scene.
// It is called with the engine lock held and must not call back into the engine.
type Renderer interface {
	Render(s *scene.Scene)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(s *scene.Scene)

func (f RendererFunc) Render(s *scene.Scene) {
	f(s)
}

type nopRenderer struct{}

func (nopRenderer) Render(*scene.Scene) {}

// LogRenderer traces every redraw.
type LogRenderer struct{}

func (LogRenderer) Render(s *scene.Scene) {
	log.Trace("Redraw scene %s: %d pieces, background %q, grid %v", s.ID, s.Len(), s.Background().ImageReference, s.Grid())
}
