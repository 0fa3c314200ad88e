package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/tabletop/pkg/config"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/repositories"
	"github.com/cbodonnell/tabletop/pkg/scene"
	"github.com/cbodonnell/tabletop/pkg/topology"
	"github.com/cbodonnell/tabletop/pkg/version"
	"github.com/cbodonnell/tabletop/pkg/workers"
	"github.com/spf13/cobra"
)

// NewHostCommand creates the host command.
func NewHostCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a scene",
		Long: `Host a scene and relay every change between the players that join it.

The scene is loaded from the repository selected by --database-url, or created
empty when it does not exist yet, and saved back periodically and on shutdown.

Example:
  tabletop host --scene-id dungeon --database-url sqlite://tabletop.db
  tabletop host --listen-addr :9000 --database-url memory://`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runHost(ctx, rootOpts.Config)
		},
	}

	flags := cmd.Flags()
	flags.String("listen-addr", ":8888", "address to accept player connections on")
	flags.String("database-url", "sqlite://tabletop.db", "scene repository (sqlite://, postgres://, memory://)")
	flags.Duration("save-interval", 30*time.Second, "how often the scene is saved, 0 saves on shutdown only")
	bindFlags(rootOpts.viper, flags, map[string]string{
		config.KeyListenAddr:   "listen-addr",
		config.KeyDatabaseURL:  "database-url",
		config.KeySaveInterval: "save-interval",
	})

	return cmd
}

func runHost(ctx context.Context, cfg *config.Config) error {
	log.Info("Starting tabletop host %s version %s", cfg.PeerID, version.Get())

	repository, err := repositories.NewRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create repository: %v", err)
	}
	defer repository.Close(context.Background())

	s, err := loadScene(ctx, repository, cfg)
	if err != nil {
		return err
	}

	p := newParticipant(cfg, s, topology.NewHost(cfg.PeerID))

	wsServer := network.NewWSServer(network.NewWSServerOptions{
		Addr:              cfg.ListenAddr,
		LocalID:           cfg.PeerID,
		ConnectionManager: p.connections,
		MessageQueue:      p.messageQueue,
	})
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- wsServer.Start(ctx)
	}()

	saveSceneWorker := workers.NewSaveSceneWorker(workers.NewSaveSceneWorkerOptions{
		Repository: repository,
		Source:     p.engine,
		Interval:   cfg.SaveInterval,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.goWorker(func() { saveSceneWorker.Start(ctx) })
	p.startWorkers(ctx)

	select {
	case <-ctx.Done():
		log.Info("Shutting down host")
		err = nil
	case err = <-serverErr:
		log.Error("Host stopped: %v", err)
		cancel()
	}
	p.wait()
	return err
}

// loadScene restores the configured scene or starts a new one owned by the host.
func loadScene(ctx context.Context, repository repositories.Repository, cfg *config.Config) (*scene.Scene, error) {
	snap, err := repository.LoadScene(ctx, cfg.SceneID)
	if err != nil {
		if repositories.IsNotFound(err) {
			log.Info("Creating new scene %s", cfg.SceneID)
			return scene.New(cfg.SceneID, cfg.PeerID), nil
		}
		return nil, fmt.Errorf("failed to load scene %s: %v", cfg.SceneID, err)
	}
	s, err := scene.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to restore scene %s: %v", cfg.SceneID, err)
	}
	log.Info("Loaded scene %s with %d pieces", s.ID, s.Len())
	return s, nil
}
