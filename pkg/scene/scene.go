package scene

import (
	"errors"
	"fmt"
)

var (
	ErrPieceExists   = errors.New("piece already exists")
	ErrPieceNotFound = errors.New("piece not found")
)

// Scene is the replicated fact set of one session: background, grid scale and pieces.
// A Scene is owned by a single participant and is not safe for concurrent use.
type Scene struct {
	ID    string
	Name  string
	Owner string

	background Background
	grid       GridScale
	pieces     map[string]*Piece
	// order is the stacking order used for rendering, last is on top
	order []string
	hits  *hitSpace
}

// New creates an empty scene with the default grid scale and no background.
func New(id, owner string) *Scene {
	return &Scene{
		ID:     id,
		Name:   "My Scene",
		Owner:  owner,
		grid:   DefaultGridScale(),
		pieces: make(map[string]*Piece),
		hits:   newHitSpace(),
	}
}

func (s *Scene) Background() Background {
	return s.background
}

// SetBackground replaces the background and reports whether it changed.
func (s *Scene) SetBackground(bg Background) bool {
	if bg.Type == "" && bg.IsSet() {
		bg.Type = BackgroundTypeImage
	}
	if s.background == bg {
		return false
	}
	s.background = bg
	return true
}

func (s *Scene) Grid() GridScale {
	return s.grid
}

// SetGrid replaces the grid scale and recomputes the bounds of every piece.
func (s *Scene) SetGrid(grid GridScale) error {
	if err := grid.Validate(); err != nil {
		return err
	}
	s.grid = grid
	for id, p := range s.pieces {
		s.hits.put(id, p.Bounds(s.grid))
	}
	return nil
}

func (s *Scene) Has(id string) bool {
	_, ok := s.pieces[id]
	return ok
}

// Get returns a copy of the piece with the given id.
func (s *Scene) Get(id string) (*Piece, bool) {
	p, ok := s.pieces[id]
	if !ok {
		return nil, false
	}
	return p.Copy(), true
}

func (s *Scene) Len() int {
	return len(s.pieces)
}

// Add inserts a copy of the piece on top of the stack.
func (s *Scene) Add(p *Piece) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if s.Has(p.ID) {
		return fmt.Errorf("%w: %s", ErrPieceExists, p.ID)
	}
	stored := p.Copy()
	s.pieces[p.ID] = stored
	s.order = append(s.order, p.ID)
	s.hits.put(p.ID, stored.Bounds(s.grid))
	return nil
}

// Replace overwrites every field of an existing piece, keeping its stacking position.
func (s *Scene) Replace(p *Piece) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !s.Has(p.ID) {
		return fmt.Errorf("%w: %s", ErrPieceNotFound, p.ID)
	}
	stored := p.Copy()
	s.pieces[p.ID] = stored
	s.hits.put(p.ID, stored.Bounds(s.grid))
	return nil
}

// Move overwrites the position of a piece and brings it to the front.
func (s *Scene) Move(id string, pos Position) error {
	p, ok := s.pieces[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPieceNotFound, id)
	}
	p.Position = pos
	s.bringToFront(id)
	s.hits.put(id, p.Bounds(s.grid))
	return nil
}

// Remove deletes a piece and reports whether it was present.
func (s *Scene) Remove(id string) bool {
	if !s.Has(id) {
		return false
	}
	delete(s.pieces, id)
	s.order = removeID(s.order, id)
	s.hits.remove(id)
	return true
}

// Clear removes every piece.
func (s *Scene) Clear() {
	s.pieces = make(map[string]*Piece)
	s.order = nil
	s.hits.clear()
}

// Pieces returns copies of all pieces in stacking order, bottom first.
func (s *Scene) Pieces() []*Piece {
	pieces := make([]*Piece, 0, len(s.order))
	for _, id := range s.order {
		pieces = append(pieces, s.pieces[id].Copy())
	}
	return pieces
}

// Bounds returns the rendered rectangle of a piece under the current grid scale.
func (s *Scene) Bounds(id string) (Rect, bool) {
	p, ok := s.pieces[id]
	if !ok {
		return Rect{}, false
	}
	return p.Bounds(s.grid), true
}

// PieceAt returns the topmost piece whose bounds contain the point.
func (s *Scene) PieceAt(x, y float64) (*Piece, bool) {
	candidates := make(map[string]struct{})
	for _, id := range s.hits.candidates(x, y) {
		candidates[id] = struct{}{}
	}
	for i := len(s.order) - 1; i >= 0; i-- {
		id := s.order[i]
		if _, ok := candidates[id]; !ok {
			continue
		}
		p := s.pieces[id]
		if p.Bounds(s.grid).Contains(x, y) {
			return p.Copy(), true
		}
	}
	return nil, false
}

func (s *Scene) bringToFront(id string) {
	s.order = append(removeID(s.order, id), id)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
