package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/repositories"
	"github.com/cbodonnell/tabletop/pkg/scene"
)

// SceneSource provides the snapshot to persist.
type SceneSource interface {
	Snapshot() *scene.Snapshot
}

type SaveSceneWorker struct {
	repository repositories.Repository
	source     SceneSource
	interval   time.Duration
}

type NewSaveSceneWorkerOptions struct {
	Repository repositories.Repository
	Source     SceneSource
	Interval   time.Duration
}

// NewSaveSceneWorker creates a new SaveSceneWorker.
// The worker periodically saves the host's scene to the repository
// and saves it one last time when stopped.
func NewSaveSceneWorker(opts NewSaveSceneWorkerOptions) *SaveSceneWorker {
	return &SaveSceneWorker{
		repository: opts.Repository,
		source:     opts.Source,
		interval:   opts.Interval,
	}
}

func (w *SaveSceneWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		<-ctx.Done()
		w.saveOnShutdown()
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.saveOnShutdown()
			return
		case <-ticker.C:
			if err := w.Save(ctx); err != nil {
				log.Error("Failed to save scene: %v", err)
			}
		}
	}
}

// Save writes the current snapshot to the repository.
func (w *SaveSceneWorker) Save(ctx context.Context) error {
	snap := w.source.Snapshot()
	if err := w.repository.SaveScene(ctx, snap); err != nil {
		return err
	}
	log.Debug("Saved scene %s with %d pieces", snap.ID, len(snap.Pieces))
	return nil
}

func (w *SaveSceneWorker) saveOnShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Save(ctx); err != nil {
		log.Error("Failed to save scene on shutdown: %v", err)
	}
}
