package models

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/scene"
)

// Scene is a row of the scenes table
type Scene struct {
	ID                  string
	Name                string
	Owner               string
	BackgroundType      string
	BackgroundReference string
	GridX               float64
	GridY               float64
	UpdatedAt           int64
}

// Piece is a row of the pieces table. Data holds the piece as JSON.
type Piece struct {
	SceneID    string
	PieceID    string
	StackIndex int
	Data       []byte
}

// FromSnapshot converts a snapshot into rows
func FromSnapshot(snap *scene.Snapshot, updatedAt int64) (Scene, []Piece, error) {
	row := Scene{
		ID:                  snap.ID,
		Name:                snap.Name,
		Owner:               snap.Owner,
		BackgroundType:      string(snap.Background.Type),
		BackgroundReference: snap.Background.ImageReference,
		GridX:               snap.Grid.X,
		GridY:               snap.Grid.Y,
		UpdatedAt:           updatedAt,
	}

	pieces := make([]Piece, 0, len(snap.Pieces))
	for i, p := range snap.Pieces {
		data, err := json.Marshal(p)
		if err != nil {
			return Scene{}, nil, fmt.Errorf("failed to marshal piece %s: %v", p.ID, err)
		}
		pieces = append(pieces, Piece{
			SceneID:    snap.ID,
			PieceID:    p.ID,
			StackIndex: i,
			Data:       data,
		})
	}

	return row, pieces, nil
}

// ToSnapshot converts rows into a snapshot. Pieces must be in stacking order.
func (s Scene) ToSnapshot(pieces []Piece) (*scene.Snapshot, error) {
	snap := &scene.Snapshot{
		ID:    s.ID,
		Name:  s.Name,
		Owner: s.Owner,
		Background: scene.Background{
			Type:           scene.BackgroundType(s.BackgroundType),
			ImageReference: s.BackgroundReference,
		},
		Grid: scene.GridScale{
			X: s.GridX,
			Y: s.GridY,
		},
		Pieces: make([]*scene.Piece, 0, len(pieces)),
	}

	for _, row := range pieces {
		p := &scene.Piece{}
		if err := json.Unmarshal(row.Data, p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal piece %s: %v", row.PieceID, err)
		}
		snap.Pieces = append(snap.Pieces, p)
	}

	return snap, nil
}
