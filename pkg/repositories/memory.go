package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cbodonnell/tabletop/pkg/scene"
)

// MemoryRepository keeps encoded snapshots in memory. It is used when no
// database is configured and in tests.
type MemoryRepository struct {
	scenes map[string][]byte
	lock   sync.RWMutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		scenes: make(map[string][]byte),
	}
}

func (r *MemoryRepository) Close(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) SaveScene(ctx context.Context, snap *scene.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %v", err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	r.scenes[snap.ID] = data

	return nil
}

func (r *MemoryRepository) LoadScene(ctx context.Context, sceneID string) (*scene.Snapshot, error) {
	r.lock.RLock()
	data, ok := r.scenes[sceneID]
	r.lock.RUnlock()
	if !ok {
		return nil, &ErrNotFound{SceneID: sceneID}
	}

	snap := &scene.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scene: %v", err)
	}

	return snap, nil
}
