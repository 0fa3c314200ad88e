package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cbodonnell/tabletop/pkg/config"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/scene"
	"github.com/cbodonnell/tabletop/pkg/topology"
	"github.com/cbodonnell/tabletop/pkg/version"
	"github.com/spf13/cobra"
)

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <host-url>",
		Short: "Join a hosted scene",
		Long: `Connect to a host and keep a replica of its scene.

The host pushes its scene once connected. Local changes made through the
API are sent to the host, which relays them to the other players.

Example:
  tabletop join ws://192.168.1.20:8888
  tabletop join ws://localhost:8888 --api-addr :8081 --peer-id alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJoin(ctx, rootOpts.Config, args[0])
		},
	}
}

func runJoin(ctx context.Context, cfg *config.Config, hostURL string) error {
	log.Info("Starting tabletop player %s version %s", cfg.PeerID, version.Get())

	conn, err := network.Dial(ctx, hostURL, cfg.PeerID)
	if err != nil {
		return fmt.Errorf("failed to join %s: %v", hostURL, err)
	}
	hostID := conn.PeerID()
	log.Info("Connected to host %s", hostID)

	// the host's pushes overwrite everything but the id
	p := newParticipant(cfg, scene.New(cfg.SceneID, hostID), topology.NewPlayer(cfg.PeerID, hostID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.startWorkers(ctx)

	err = network.Serve(ctx, conn, p.connections, p.messageQueue)
	if ctx.Err() != nil {
		log.Info("Leaving scene")
	} else if err != nil {
		log.Error("Connection to host lost: %v", err)
	} else {
		log.Info("Host closed the connection")
	}
	cancel()
	p.wait()
	return err
}
