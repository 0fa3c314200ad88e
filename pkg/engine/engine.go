package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/metrics"
	"github.com/cbodonnell/tabletop/pkg/scene"
	"github.com/cbodonnell/tabletop/pkg/topology"
)

// Session is the state owned by one participant for the lifetime of a connection session.
type Session struct {
	Scene    *scene.Scene
	Topology *topology.Topology
}

// Engine applies local intents and remote events to the session scene
// and decides which events to send to which peers.
//
// Every fact (piece existence, piece position, background, grid scale) is a
// last-writer-wins register resolved by arrival order. All exported methods
// are serialized, so the engine is the single thread of control over the scene.
type Engine struct {
	lock      sync.Mutex
	session   *Session
	transport Transport
	renderer  Renderer
	metrics   *metrics.Metrics
}

type NewEngineOptions struct {
	Session   *Session
	Transport Transport
	// Renderer is optional
	Renderer Renderer
	// Metrics is optional, unregistered metrics are used when nil
	Metrics *metrics.Metrics
}

func NewEngine(opts NewEngineOptions) *Engine {
	renderer := opts.Renderer
	if renderer == nil {
		renderer = nopRenderer{}
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetrics(metrics.DefaultNamespace, nil)
	}
	e := &Engine{
		session:   opts.Session,
		transport: opts.Transport,
		renderer:  renderer,
		metrics:   m,
	}
	m.SetPieces(e.session.Scene.Len())
	m.SetConnectedPlayers(e.session.Topology.PlayerCount())
	return e
}

func (e *Engine) LocalID() string {
	return e.session.Topology.LocalID()
}

func (e *Engine) Role() topology.Role {
	return e.session.Topology.Role()
}

// Snapshot returns a copy of the local scene.
func (e *Engine) Snapshot() *scene.Snapshot {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.session.Scene.Snapshot()
}

// Piece returns a copy of a piece in the local scene.
func (e *Engine) Piece(id string) (*scene.Piece, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.session.Scene.Get(id)
}

// PieceAt returns the topmost piece under a point of the local scene.
func (e *Engine) PieceAt(x, y float64) (*scene.Piece, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.session.Scene.PieceAt(x, y)
}

// AddPiece places a new piece owned by the local participant unless an owner is set.
func (e *Engine) AddPiece(ctx context.Context, p *scene.Piece) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	p = p.Copy()
	if p.Owner == "" {
		p.Owner = e.LocalID()
	}
	if err := e.session.Scene.Add(p); err != nil {
		return localError(err)
	}
	e.mutated()
	e.emitLocal(ctx, &messages.AddPiece{Piece: p})
	return nil
}

// MovePiece moves a piece of the local scene.
func (e *Engine) MovePiece(ctx context.Context, id string, pos scene.Position) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if err := e.session.Scene.Move(id, pos); err != nil {
		return localError(err)
	}
	e.mutated()
	e.emitLocal(ctx, &messages.MovePiece{ID: id, X: pos.X, Y: pos.Y})
	return nil
}

// UpdatePiece replaces the display metadata and position of an existing piece.
func (e *Engine) UpdatePiece(ctx context.Context, p *scene.Piece) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	current, ok := e.session.Scene.Get(p.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPiece, p.ID)
	}
	p = p.Copy()
	if p.Owner == "" {
		p.Owner = current.Owner
	}
	if err := e.session.Scene.Replace(p); err != nil {
		return localError(err)
	}
	e.mutated()
	e.emitLocal(ctx, &messages.UpdatePiece{Piece: p})
	return nil
}

// DeletePiece removes a piece of the local scene.
func (e *Engine) DeletePiece(ctx context.Context, id string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.session.Scene.Remove(id) {
		return fmt.Errorf("%w: %s", ErrUnknownPiece, id)
	}
	e.mutated()
	e.emitLocal(ctx, &messages.DeletePiece{ID: id})
	return nil
}

// ClearPieces removes every piece and emits one DeletePiece per removed piece.
func (e *Engine) ClearPieces(ctx context.Context) int {
	e.lock.Lock()
	defer e.lock.Unlock()

	pieces := e.session.Scene.Pieces()
	if len(pieces) == 0 {
		return 0
	}
	e.session.Scene.Clear()
	e.mutated()
	for _, p := range pieces {
		e.emitLocal(ctx, &messages.DeletePiece{ID: p.ID})
	}
	return len(pieces)
}

// ChangeBackground replaces the background. Only the host may do this.
func (e *Engine) ChangeBackground(ctx context.Context, bg scene.Background) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.session.Topology.IsHost() {
		return fmt.Errorf("%w: only the host can change the background", ErrRoleViolation)
	}
	if !e.session.Scene.SetBackground(bg) {
		log.Debug("Background unchanged, not relaying")
		return nil
	}
	e.mutated()
	e.emitLocal(ctx, &messages.ChangeBackground{Background: e.session.Scene.Background()})
	return nil
}

// ChangeGrid replaces the grid scale. Only the host may do this.
func (e *Engine) ChangeGrid(ctx context.Context, grid scene.GridScale) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if !e.session.Topology.IsHost() {
		return fmt.Errorf("%w: only the host can change the grid", ErrRoleViolation)
	}
	if err := e.session.Scene.SetGrid(grid); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	e.mutated()
	e.emitLocal(ctx, &messages.GridChange{X: grid.X, Y: grid.Y})
	return nil
}

// Hello announces the local player to the host, which answers with the scene.
func (e *Engine) Hello(ctx context.Context) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.session.Topology.IsHost() {
		return fmt.Errorf("%w: the host does not say hello", ErrRoleViolation)
	}
	e.send(ctx, e.session.Topology.HostID(), &messages.NewPlayerHello{})
	return nil
}

// PeerConnected is called once a transport connection is open.
// A player greets the host; the host waits for the player's hello.
func (e *Engine) PeerConnected(ctx context.Context, peerID string) {
	top := e.session.Topology
	if top.IsHost() || peerID != top.HostID() {
		return
	}
	if err := e.Hello(ctx); err != nil {
		log.Error("Failed to say hello to %s: %v", peerID, err)
	}
}

// PlayerLeft removes a disconnected player from the fan-out set.
func (e *Engine) PlayerLeft(id string) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.session.Topology.RecordPlayerLeft(id) {
		log.Info("Player %s left", id)
		e.metrics.SetConnectedPlayers(e.session.Topology.PlayerCount())
	}
}

// emitLocal sends a locally originated event: a host fans out to every
// player, a player sends to the host only.
func (e *Engine) emitLocal(ctx context.Context, ev messages.Event) {
	if e.session.Topology.IsHost() {
		e.relay(ctx, "", ev)
		return
	}
	e.send(ctx, e.session.Topology.HostID(), ev)
}

// relay forwards an event to every connected player except the one it came from.
func (e *Engine) relay(ctx context.Context, from string, ev messages.Event) {
	if !e.session.Topology.IsHost() {
		return
	}
	e.session.Topology.ForEachPlayer(func(id string) {
		if id == from {
			return
		}
		e.send(ctx, id, ev)
	})
}

func (e *Engine) send(ctx context.Context, peerID string, ev messages.Event) {
	if err := e.transport.Send(ctx, peerID, ev); err != nil {
		log.Error("Failed to send %s to %s: %v", ev.Type(), peerID, err)
		e.metrics.IncDropped(metrics.ReasonSendFailed)
		return
	}
	e.metrics.IncSent(string(ev.Type()))
}

// mutated runs after every successful change to the local scene.
func (e *Engine) mutated() {
	e.metrics.SetPieces(e.session.Scene.Len())
	e.renderer.Render(e.session.Scene)
}

// localError maps scene errors onto engine errors.
func localError(err error) error {
	switch {
	case errors.Is(err, scene.ErrPieceExists):
		return fmt.Errorf("%w: %v", ErrDuplicatePiece, err)
	case errors.Is(err, scene.ErrPieceNotFound):
		return fmt.Errorf("%w: %v", ErrUnknownPiece, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
}
