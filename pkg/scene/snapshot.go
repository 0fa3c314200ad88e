package scene

import "fmt"

// Snapshot is a serializable copy of a scene.
type Snapshot struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Owner      string     `json:"owner"`
	Background Background `json:"background"`
	Grid       GridScale  `json:"gridRatio"`
	// Pieces are in stacking order, bottom first
	Pieces []*Piece `json:"pieces"`
}

func (s *Scene) Snapshot() *Snapshot {
	return &Snapshot{
		ID:         s.ID,
		Name:       s.Name,
		Owner:      s.Owner,
		Background: s.background,
		Grid:       s.grid,
		Pieces:     s.Pieces(),
	}
}

// FromSnapshot builds a scene from a snapshot, validating every piece.
func FromSnapshot(snap *Snapshot) (*Scene, error) {
	s := New(snap.ID, snap.Owner)
	if snap.Name != "" {
		s.Name = snap.Name
	}
	s.SetBackground(snap.Background)
	if err := s.SetGrid(snap.Grid); err != nil {
		return nil, fmt.Errorf("failed to load scene %s: %w", snap.ID, err)
	}
	for _, p := range snap.Pieces {
		if err := s.Add(p); err != nil {
			return nil, fmt.Errorf("failed to load scene %s: %w", snap.ID, err)
		}
	}
	return s, nil
}
