package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/cbodonnell/tabletop/pkg/scene"
)

// Repository persists scene snapshots between sessions.
// It is only used at session boundaries and by the periodic save worker,
// never as part of replication.
type Repository interface {
	Close(ctx context.Context) error
	// LoadScene returns *ErrNotFound if the scene has never been saved
	LoadScene(ctx context.Context, sceneID string) (*scene.Snapshot, error)
	// SaveScene replaces the stored scene with the snapshot
	SaveScene(ctx context.Context, snap *scene.Snapshot) error
}

// NewRepository opens the repository for a database url:
// postgres:// or postgresql:// for postgres, sqlite:// or a path ending
// in .db for sqlite, and memory:// or the empty string for an in-memory store.
func NewRepository(ctx context.Context, databaseURL string) (Repository, error) {
	switch {
	case databaseURL == "" || databaseURL == "memory://":
		return NewMemoryRepository(), nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresRepository(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteRepository(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasSuffix(databaseURL, ".db"):
		return NewSQLiteRepository(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}
