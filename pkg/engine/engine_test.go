package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/metrics"
	"github.com/cbodonnell/tabletop/pkg/scene"
	"github.com/cbodonnell/tabletop/pkg/topology"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testHostID  = "host"
	testSceneID = "scene-1"
)

type sentEvent struct {
	to    string
	event messages.Event
}

type recordingTransport struct {
	lock sync.Mutex
	sent []sentEvent
	err  error
}

func (r *recordingTransport) Send(ctx context.Context, peerID string, e messages.Event) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentEvent{to: peerID, event: e})
	return nil
}

func (r *recordingTransport) Sent() []sentEvent {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]sentEvent(nil), r.sent...)
}

func (r *recordingTransport) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.sent = nil
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, peerID string, e messages.Event) error {
	args := m.Called(ctx, peerID, e)
	return args.Error(0)
}

func token(id, owner string, x, y float64) *scene.Piece {
	return &scene.Piece{
		ID:       id,
		Owner:    owner,
		Position: scene.Position{X: x, Y: y},
		Kind:     scene.PieceKindToken,
		Name:     id,
		Size:     scene.Size{W: 1, H: 1},
	}
}

func newHostEngine(transport Transport, players ...string) *Engine {
	top := topology.NewHost(testHostID)
	for _, p := range players {
		top.RecordPlayerJoined(p)
	}
	return NewEngine(NewEngineOptions{
		Session:   &Session{Scene: scene.New(testSceneID, testHostID), Topology: top},
		Transport: transport,
	})
}

func newPlayerEngine(id string, transport Transport) *Engine {
	return NewEngine(NewEngineOptions{
		Session:   &Session{Scene: scene.New(testSceneID, testHostID), Topology: topology.NewPlayer(id, testHostID)},
		Transport: transport,
	})
}

// wire is one serialized envelope in flight between two peers.
type wire struct {
	from string
	to   string
	data []byte
}

func (w wire) eventType(t *testing.T) messages.EventType {
	ev, err := messages.DeserializeEnvelope(w.data)
	require.NoError(t, err)
	return ev.Type()
}

// harness routes events between engines through the wire codec.
// Delivery is explicit so tests control arrival order.
type harness struct {
	t       *testing.T
	ctx     context.Context
	engines map[string]*Engine
	pending []wire
}

type harnessTransport struct {
	h    *harness
	from string
}

func (tr *harnessTransport) Send(ctx context.Context, peerID string, e messages.Event) error {
	data, err := messages.SerializeEnvelope(e)
	if err != nil {
		return err
	}
	tr.h.pending = append(tr.h.pending, wire{from: tr.from, to: peerID, data: data})
	return nil
}

func newHarness(t *testing.T, players ...string) *harness {
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		engines: make(map[string]*Engine),
	}
	h.engines[testHostID] = newHostEngine(&harnessTransport{h: h, from: testHostID})
	for _, id := range players {
		h.join(id)
	}
	return h
}

func (h *harness) host() *Engine {
	return h.engines[testHostID]
}

// join connects a player, says hello and delivers everything in flight.
func (h *harness) join(id string) *Engine {
	e := newPlayerEngine(id, &harnessTransport{h: h, from: id})
	h.engines[id] = e
	require.NoError(h.t, e.Hello(h.ctx))
	h.deliverAll()
	return e
}

func (h *harness) deliverNext() {
	w := h.pending[0]
	h.pending = h.pending[1:]
	h.engines[w.to].HandleMessage(h.ctx, w.from, w.data)
}

func (h *harness) deliverAll() {
	for len(h.pending) > 0 {
		h.deliverNext()
	}
}

// hold removes matching envelopes from flight and returns them.
func (h *harness) hold(match func(w wire) bool) []wire {
	var held, rest []wire
	for _, w := range h.pending {
		if match(w) {
			held = append(held, w)
		} else {
			rest = append(rest, w)
		}
	}
	h.pending = rest
	return held
}

func (h *harness) release(ws []wire) {
	h.pending = append(h.pending, ws...)
}

func (h *harness) assertConverged() {
	want := h.host().Snapshot()
	for id, e := range h.engines {
		got := e.Snapshot()
		assert.ElementsMatch(h.t, want.Pieces, got.Pieces, "pieces of %s", id)
		assert.Equal(h.t, want.Background, got.Background, "background of %s", id)
		assert.Equal(h.t, want.Grid, got.Grid, "grid of %s", id)
	}
}

func TestJoin_PushesSceneInOrder(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	host := newHostEngine(transport)

	require.NoError(t, host.ChangeBackground(ctx, scene.Background{ImageReference: "map.png"}))
	require.NoError(t, host.ChangeGrid(ctx, scene.GridScale{X: 0.05, Y: 0.05}))
	require.NoError(t, host.AddPiece(ctx, token("a", testHostID, 0.1, 0.1)))
	require.NoError(t, host.AddPiece(ctx, token("b", testHostID, 0.2, 0.2)))
	require.NoError(t, host.MovePiece(ctx, "a", scene.Position{X: 0.3, Y: 0.3}))
	assert.Empty(t, transport.Sent(), "no players yet")

	require.NoError(t, host.Apply(ctx, "p1", &messages.NewPlayerHello{}))

	sent := transport.Sent()
	require.Len(t, sent, 4)
	for _, s := range sent {
		assert.Equal(t, "p1", s.to)
	}
	assert.Equal(t, &messages.ChangeBackground{Background: scene.Background{Type: scene.BackgroundTypeImage, ImageReference: "map.png"}}, sent[0].event)
	assert.Equal(t, &messages.GridChange{X: 0.05, Y: 0.05}, sent[1].event)
	// stacking order, bottom first
	require.IsType(t, &messages.AddPiece{}, sent[2].event)
	assert.Equal(t, "b", sent[2].event.(*messages.AddPiece).Piece.ID)
	require.IsType(t, &messages.AddPiece{}, sent[3].event)
	assert.Equal(t, "a", sent[3].event.(*messages.AddPiece).Piece.ID)
	assert.Equal(t, scene.Position{X: 0.3, Y: 0.3}, sent[3].event.(*messages.AddPiece).Piece.Position)
}

func TestJoin_SkipsUnsetBackground(t *testing.T) {
	transport := &recordingTransport{}
	host := newHostEngine(transport)

	require.NoError(t, host.Apply(context.Background(), "p1", &messages.NewPlayerHello{}))

	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, &messages.GridChange{X: scene.DefaultGridX, Y: scene.DefaultGridY}, sent[0].event)
}

func TestJoin_RepeatedHelloIgnored(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	host := newHostEngine(transport)
	require.NoError(t, host.AddPiece(ctx, token("a", testHostID, 0, 0)))

	require.NoError(t, host.Apply(ctx, "p1", &messages.NewPlayerHello{}))
	first := len(transport.Sent())
	require.NoError(t, host.Apply(ctx, "p1", &messages.NewPlayerHello{}))

	assert.Len(t, transport.Sent(), first)
	assert.Equal(t, []string{"p1"}, host.session.Topology.Players())
}

func TestJoin_Convergence(t *testing.T) {
	h := newHarness(t)
	host := h.host()
	require.NoError(t, host.ChangeBackground(h.ctx, scene.Background{Type: scene.BackgroundTypeVideo, ImageReference: "intro.mp4"}))
	require.NoError(t, host.ChangeGrid(h.ctx, scene.GridScale{X: 0.1, Y: 0.05}))
	require.NoError(t, host.AddPiece(h.ctx, token("a", testHostID, 0.1, 0.1)))
	require.NoError(t, host.AddPiece(h.ctx, &scene.Piece{
		ID:       "fireball",
		Owner:    testHostID,
		Position: scene.Position{X: 0.5, Y: 0.5},
		Kind:     scene.PieceKindArea,
		Area:     &scene.Area{Shape: scene.AreaShapeCircle, Radius: 4, Color: "#ff0000"},
	}))

	h.join("p1")
	h.join("p2")

	h.assertConverged()
	assert.Equal(t, host.Snapshot().Pieces, h.engines["p1"].Snapshot().Pieces, "stacking order survives the join")
}

func TestRelay_Convergence(t *testing.T) {
	h := newHarness(t, "p1", "p2", "p3")
	p1, p2, p3 := h.engines["p1"], h.engines["p2"], h.engines["p3"]

	require.NoError(t, p1.AddPiece(h.ctx, token("goblin", "", 0.1, 0.1)))
	require.NoError(t, p2.AddPiece(h.ctx, token("orc", "", 0.2, 0.2)))
	h.deliverAll()

	require.NoError(t, p3.MovePiece(h.ctx, "goblin", scene.Position{X: 0.4, Y: 0.4}))
	require.NoError(t, h.host().AddPiece(h.ctx, token("troll", "", 0.6, 0.6)))
	h.deliverAll()

	require.NoError(t, p1.DeletePiece(h.ctx, "orc"))
	updated := token("troll", testHostID, 0.7, 0.7)
	updated.Name = "Cave Troll"
	require.NoError(t, p2.UpdatePiece(h.ctx, updated))
	h.deliverAll()

	h.assertConverged()
	snap := h.host().Snapshot()
	require.Len(t, snap.Pieces, 2)
	goblin, ok := p2.Piece("goblin")
	require.True(t, ok)
	assert.Equal(t, "p1", goblin.Owner)
	assert.Equal(t, scene.Position{X: 0.4, Y: 0.4}, goblin.Position)
	troll, ok := p3.Piece("troll")
	require.True(t, ok)
	assert.Equal(t, "Cave Troll", troll.Name)
	assert.Equal(t, scene.Position{X: 0.7, Y: 0.7}, troll.Position)
}

func TestClearPieces(t *testing.T) {
	h := newHarness(t, "p1", "p2")
	p1 := h.engines["p1"]

	require.NoError(t, h.host().AddPiece(h.ctx, token("goblin", "", 0.1, 0.1)))
	require.NoError(t, p1.AddPiece(h.ctx, token("orc", "", 0.2, 0.2)))
	h.deliverAll()

	assert.Equal(t, 2, p1.ClearPieces(h.ctx))
	assert.Equal(t, 0, p1.ClearPieces(h.ctx), "nothing left to clear")
	h.deliverAll()

	h.assertConverged()
	assert.Empty(t, h.host().Snapshot().Pieces)
}

func TestRelay_ExcludesSender(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	host := newHostEngine(transport, "p1", "p2", "p3")

	piece := token("a", "p1", 0, 0)
	require.NoError(t, host.Apply(ctx, "p1", &messages.AddPiece{Piece: piece}))

	var recipients []string
	for _, s := range transport.Sent() {
		assert.Equal(t, &messages.AddPiece{Piece: piece}, s.event)
		recipients = append(recipients, s.to)
	}
	assert.Equal(t, []string{"p2", "p3"}, recipients)
}

func TestRelay_LocalHostIntentReachesEveryPlayer(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	host := newHostEngine(transport, "p1", "p2")

	require.NoError(t, host.ChangeGrid(ctx, scene.GridScale{X: 0.02, Y: 0.02}))
	require.NoError(t, host.ChangeGrid(ctx, scene.GridScale{X: 0.02, Y: 0.02}))

	sent := transport.Sent()
	require.Len(t, sent, 4, "grid changes are relayed even when unchanged")
	assert.Equal(t, "p1", sent[0].to)
	assert.Equal(t, "p2", sent[1].to)
}

func TestRelay_UnchangedBackgroundNotSent(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	host := newHostEngine(transport, "p1")

	require.NoError(t, host.ChangeBackground(ctx, scene.Background{ImageReference: "map.png"}))
	require.NoError(t, host.ChangeBackground(ctx, scene.Background{Type: scene.BackgroundTypeImage, ImageReference: "map.png"}))

	assert.Len(t, transport.Sent(), 1)
}

func TestPlayer_LocalIntentGoesToHostOnly(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	player := newPlayerEngine("p1", transport)

	require.NoError(t, player.AddPiece(ctx, token("a", "", 0, 0)))
	require.NoError(t, player.MovePiece(ctx, "a", scene.Position{X: 0.5, Y: 0.5}))
	require.NoError(t, player.DeletePiece(ctx, "a"))

	sent := transport.Sent()
	require.Len(t, sent, 3)
	for _, s := range sent {
		assert.Equal(t, testHostID, s.to)
	}
	assert.Equal(t, "p1", sent[0].event.(*messages.AddPiece).Piece.Owner)
	assert.Equal(t, &messages.MovePiece{ID: "a", X: 0.5, Y: 0.5}, sent[1].event)
	assert.Equal(t, &messages.DeletePiece{ID: "a"}, sent[2].event)
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	player := newPlayerEngine("p1", transport)
	piece := token("a", testHostID, 0.1, 0.1)

	tests := []struct {
		name      string
		event     messages.Event
		repeatErr error
	}{
		{name: "add", event: &messages.AddPiece{Piece: piece}, repeatErr: ErrDuplicatePiece},
		{name: "move", event: &messages.MovePiece{ID: "a", X: 0.2, Y: 0.2}},
		{name: "grid", event: &messages.GridChange{X: 0.05, Y: 0.05}},
		{name: "background", event: &messages.ChangeBackground{Background: scene.Background{ImageReference: "map.png"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, player.Apply(ctx, testHostID, tt.event))
			once := player.Snapshot()

			err := player.Apply(ctx, testHostID, tt.event)
			if tt.repeatErr != nil {
				assert.ErrorIs(t, err, tt.repeatErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, once, player.Snapshot())
		})
	}

	require.NoError(t, player.Apply(ctx, testHostID, &messages.DeletePiece{ID: "a"}))
	require.NoError(t, player.Apply(ctx, testHostID, &messages.DeletePiece{ID: "a"}))
	assert.Empty(t, player.Snapshot().Pieces)
	assert.Empty(t, transport.Sent(), "players never relay")
}

func TestConvergence_MoveBeforeAdd(t *testing.T) {
	h := newHarness(t, "p1", "p2")
	p1, p2 := h.engines["p1"], h.engines["p2"]

	require.NoError(t, p1.AddPiece(h.ctx, token("dwarf", "", 0.1, 0.1)))
	require.Len(t, h.pending, 1)
	h.deliverNext()

	// hold the relayed add on its way to p2 and let the move overtake it
	held := h.hold(func(w wire) bool {
		return w.to == "p2" && w.eventType(t) == messages.EventTypeAddPiece
	})
	require.Len(t, held, 1)

	require.NoError(t, p1.MovePiece(h.ctx, "dwarf", scene.Position{X: 0.9, Y: 0.9}))
	h.deliverAll()

	dwarf, ok := p2.Piece("dwarf")
	require.True(t, ok, "the requested piece arrives before the original add")
	assert.Equal(t, scene.Position{X: 0.9, Y: 0.9}, dwarf.Position)

	h.release(held)
	h.deliverAll()

	dwarf, ok = p2.Piece("dwarf")
	require.True(t, ok)
	assert.Equal(t, scene.Position{X: 0.9, Y: 0.9}, dwarf.Position, "the late add is a duplicate")
	h.assertConverged()
}

func TestConvergence_DeleteThenMove(t *testing.T) {
	h := newHarness(t, "p1", "p2")
	p1, p2 := h.engines["p1"], h.engines["p2"]

	require.NoError(t, h.host().AddPiece(h.ctx, token("a", "", 0.1, 0.1)))
	h.deliverAll()

	// p1 moves while the host deletes; the move reaches the host after the delete
	require.NoError(t, h.host().DeletePiece(h.ctx, "a"))
	require.NoError(t, p1.MovePiece(h.ctx, "a", scene.Position{X: 0.5, Y: 0.5}))
	h.deliverAll()

	for id, e := range h.engines {
		_, ok := e.Piece("a")
		assert.False(t, ok, "piece deleted on %s", id)
	}

	// a stray move for the deleted piece is requested and dropped by the host
	require.NoError(t, p2.Apply(h.ctx, testHostID, &messages.MovePiece{ID: "a", X: 0.1, Y: 0.1}))
	h.deliverAll()
	_, ok := p2.Piece("a")
	assert.False(t, ok)
	h.assertConverged()
}

func TestApply_UnknownPieceRequestsFromHost(t *testing.T) {
	ctx := context.Background()
	transport := &mockTransport{}
	transport.On("Send", mock.Anything, testHostID, &messages.RequestPiece{ID: "ghost"}).Return(nil).Twice()
	player := newPlayerEngine("p1", transport)

	err := player.Apply(ctx, testHostID, &messages.MovePiece{ID: "ghost", X: 0.1, Y: 0.1})
	assert.ErrorIs(t, err, ErrUnknownPiece)
	err = player.Apply(ctx, testHostID, &messages.UpdatePiece{Piece: token("ghost", testHostID, 0, 0)})
	assert.ErrorIs(t, err, ErrUnknownPiece)

	transport.AssertExpectations(t)
}

func TestApply_RequestPiece(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	host := newHostEngine(transport, "p1", "p2")
	require.NoError(t, host.AddPiece(ctx, token("a", testHostID, 0.1, 0.1)))
	transport.Reset()

	require.NoError(t, host.Apply(ctx, "p2", &messages.RequestPiece{ID: "a"}))
	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "p2", sent[0].to)
	assert.Equal(t, &messages.AddPiece{Piece: token("a", testHostID, 0.1, 0.1)}, sent[0].event)

	err := host.Apply(ctx, "p2", &messages.RequestPiece{ID: "missing"})
	assert.ErrorIs(t, err, ErrUnknownPiece)
	assert.Len(t, transport.Sent(), 1)
}

func TestRoleViolations(t *testing.T) {
	ctx := context.Background()
	bg := scene.Background{ImageReference: "map.png"}

	tests := []struct {
		name string
		run  func(host, player *Engine) error
	}{
		{
			name: "player changes background",
			run: func(_, player *Engine) error {
				return player.ChangeBackground(ctx, bg)
			},
		},
		{
			name: "player changes grid",
			run: func(_, player *Engine) error {
				return player.ChangeGrid(ctx, scene.GridScale{X: 0.1, Y: 0.1})
			},
		},
		{
			name: "host says hello",
			run: func(host, _ *Engine) error {
				return host.Hello(ctx)
			},
		},
		{
			name: "host receives background from player",
			run: func(host, _ *Engine) error {
				return host.Apply(ctx, "p1", &messages.ChangeBackground{Background: bg})
			},
		},
		{
			name: "host receives grid from player",
			run: func(host, _ *Engine) error {
				return host.Apply(ctx, "p1", &messages.GridChange{X: 0.1, Y: 0.1})
			},
		},
		{
			name: "player receives from another player",
			run: func(_, player *Engine) error {
				return player.Apply(ctx, "p2", &messages.AddPiece{Piece: token("a", "p2", 0, 0)})
			},
		},
		{
			name: "player receives piece request",
			run: func(_, player *Engine) error {
				return player.Apply(ctx, testHostID, &messages.RequestPiece{ID: "a"})
			},
		},
		{
			name: "player receives hello",
			run: func(_, player *Engine) error {
				return player.Apply(ctx, testHostID, &messages.NewPlayerHello{})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hostTransport := &recordingTransport{}
			playerTransport := &recordingTransport{}
			host := newHostEngine(hostTransport, "p1")
			player := newPlayerEngine("p1", playerTransport)

			err := tt.run(host, player)
			assert.True(t, IsRoleViolation(err), "got %v", err)
			assert.Empty(t, hostTransport.Sent())
			assert.Empty(t, playerTransport.Sent())
			assert.Equal(t, scene.Background{}, host.Snapshot().Background)
			assert.Equal(t, scene.DefaultGridScale(), player.Snapshot().Grid)
			assert.Empty(t, player.Snapshot().Pieces)
		})
	}
}

func TestLocalIntentErrors(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	host := newHostEngine(transport, "p1")
	require.NoError(t, host.AddPiece(ctx, token("a", "", 0, 0)))
	transport.Reset()

	assert.True(t, IsDuplicatePiece(host.AddPiece(ctx, token("a", "", 0, 0))))
	assert.True(t, IsUnknownPiece(host.MovePiece(ctx, "b", scene.Position{})))
	assert.True(t, IsUnknownPiece(host.DeletePiece(ctx, "b")))
	assert.True(t, IsUnknownPiece(host.UpdatePiece(ctx, token("b", "", 0, 0))))
	assert.ErrorIs(t, host.ChangeGrid(ctx, scene.GridScale{X: 0, Y: 1}), ErrInvalidEvent)
	assert.ErrorIs(t, host.AddPiece(ctx, &scene.Piece{ID: "c", Kind: "dragon"}), ErrInvalidEvent)
	assert.Empty(t, transport.Sent())
}

func TestUpdatePiece_KeepsOwner(t *testing.T) {
	ctx := context.Background()
	host := newHostEngine(&recordingTransport{})
	require.NoError(t, host.AddPiece(ctx, token("a", "p1", 0, 0)))

	update := token("a", "", 0.3, 0.3)
	update.Owner = ""
	require.NoError(t, host.UpdatePiece(ctx, update))

	p, ok := host.Piece("a")
	require.True(t, ok)
	assert.Equal(t, "p1", p.Owner)
	assert.Equal(t, scene.Position{X: 0.3, Y: 0.3}, p.Position)
}

func TestApply_HostDropsEventsBeforeHello(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	host := newHostEngine(transport, "p1")
	require.NoError(t, host.AddPiece(ctx, token("a", testHostID, 0.1, 0.1)))

	events := []messages.Event{
		&messages.AddPiece{Piece: token("b", "stranger", 0, 0)},
		&messages.MovePiece{ID: "a", X: 0.9, Y: 0.9},
		&messages.UpdatePiece{Piece: token("a", "stranger", 0.5, 0.5)},
		&messages.DeletePiece{ID: "a"},
		&messages.RequestPiece{ID: "a"},
	}
	for _, ev := range events {
		err := host.Apply(ctx, "stranger", ev)
		assert.True(t, IsRoleViolation(err), "%s: got %v", ev.Type(), err)
	}
	assert.Empty(t, transport.Sent())
	snap := host.Snapshot()
	require.Len(t, snap.Pieces, 1)
	assert.Equal(t, scene.Position{X: 0.1, Y: 0.1}, snap.Pieces[0].Position)

	// once it says hello the same peer is relayed
	require.NoError(t, host.Apply(ctx, "stranger", &messages.NewPlayerHello{}))
	transport.Reset()
	require.NoError(t, host.Apply(ctx, "stranger", &messages.MovePiece{ID: "a", X: 0.9, Y: 0.9}))
	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "p1", sent[0].to)
}

func TestPeerConnected(t *testing.T) {
	ctx := context.Background()
	hostTransport := &recordingTransport{}
	host := newHostEngine(hostTransport)
	host.PeerConnected(ctx, "p1")
	assert.Empty(t, hostTransport.Sent(), "the host waits for the hello")

	playerTransport := &recordingTransport{}
	player := newPlayerEngine("p1", playerTransport)
	player.PeerConnected(ctx, "someone-else")
	player.PeerConnected(ctx, testHostID)

	sent := playerTransport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, sentEvent{to: testHostID, event: &messages.NewPlayerHello{}}, sent[0])
}

func TestPlayerLeft(t *testing.T) {
	ctx := context.Background()
	transport := &recordingTransport{}
	host := newHostEngine(transport, "p1", "p2")

	host.PlayerLeft("p1")
	host.PlayerLeft("unknown")
	require.NoError(t, host.AddPiece(ctx, token("a", "", 0, 0)))

	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "p2", sent[0].to)
}

func TestPieceAt(t *testing.T) {
	ctx := context.Background()
	host := newHostEngine(&recordingTransport{})
	require.NoError(t, host.AddPiece(ctx, token("under", "", 0.1, 0.1)))
	require.NoError(t, host.AddPiece(ctx, token("over", "", 0.11, 0.11)))

	p, ok := host.PieceAt(0.12, 0.12)
	require.True(t, ok)
	assert.Equal(t, "over", p.ID)

	require.NoError(t, host.MovePiece(ctx, "under", scene.Position{X: 0.1, Y: 0.1}))
	p, ok = host.PieceAt(0.12, 0.12)
	require.True(t, ok)
	assert.Equal(t, "under", p.ID)

	_, ok = host.PieceAt(0.9, 0.9)
	assert.False(t, ok)
}

func TestRenderer(t *testing.T) {
	ctx := context.Background()
	renders := 0
	host := NewEngine(NewEngineOptions{
		Session:   &Session{Scene: scene.New(testSceneID, testHostID), Topology: topology.NewHost(testHostID)},
		Transport: &recordingTransport{},
		Renderer: RendererFunc(func(s *scene.Scene) {
			renders++
		}),
	})

	require.NoError(t, host.AddPiece(ctx, token("a", "", 0, 0)))
	require.NoError(t, host.MovePiece(ctx, "a", scene.Position{X: 0.2, Y: 0.2}))
	assert.Error(t, host.AddPiece(ctx, token("a", "", 0, 0)))
	assert.Error(t, host.Apply(ctx, "p1", &messages.GridChange{X: 0.1, Y: 0.1}))

	assert.Equal(t, 2, renders)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(metrics.DefaultNamespace, reg)
	transport := &recordingTransport{}
	host := NewEngine(NewEngineOptions{
		Session:   &Session{Scene: scene.New(testSceneID, testHostID), Topology: topology.NewHost(testHostID)},
		Transport: transport,
		Metrics:   m,
	})

	require.NoError(t, host.Apply(ctx, "p1", &messages.NewPlayerHello{}))
	require.NoError(t, host.Apply(ctx, "p2", &messages.NewPlayerHello{}))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ConnectedPlayers))

	require.NoError(t, host.Apply(ctx, "p1", &messages.AddPiece{Piece: token("a", "p1", 0, 0)}))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Pieces))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EnvelopesReceived.WithLabelValues(string(messages.EventTypeAddPiece))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EnvelopesSent.WithLabelValues(string(messages.EventTypeAddPiece))))

	host.HandleMessage(ctx, "p1", []byte("not an envelope"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EnvelopesDropped.WithLabelValues(metrics.ReasonMalformed)))

	assert.Error(t, host.Apply(ctx, "p1", &messages.GridChange{X: 0.1, Y: 0.1}))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EnvelopesDropped.WithLabelValues(metrics.ReasonRoleViolation)))

	transport.err = errors.New("connection closed")
	require.NoError(t, host.Apply(ctx, "p1", &messages.MovePiece{ID: "a", X: 0.5, Y: 0.5}))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EnvelopesDropped.WithLabelValues(metrics.ReasonSendFailed)))

	host.PlayerLeft("p2")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectedPlayers))
}
