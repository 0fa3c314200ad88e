package workers

import (
	"context"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/network"
)

// PeerTracker is told when peer connections open and close.
type PeerTracker interface {
	PeerConnected(ctx context.Context, id string)
	PlayerLeft(id string)
}

type ConnectionEventWorker struct {
	connectionEventChan <-chan network.ConnectionEvent
	peers               PeerTracker
}

type NewConnectionEventWorkerOptions struct {
	ConnectionEventChan <-chan network.ConnectionEvent
	Peers               PeerTracker
}

// NewConnectionEventWorker creates a new ConnectionEventWorker.
// A connection alone does not join a player: the player greets the host
// once connected and the host pushes the scene on hello.
// A disconnect removes the player from the relay set.
func NewConnectionEventWorker(opts NewConnectionEventWorkerOptions) *ConnectionEventWorker {
	return &ConnectionEventWorker{
		connectionEventChan: opts.ConnectionEventChan,
		peers:               opts.Peers,
	}
}

func (w *ConnectionEventWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.connectionEventChan:
			switch event.Type {
			case network.ConnectionEventTypeConnect:
				log.Debug("Peer %s connected", event.PeerID)
				w.peers.PeerConnected(ctx, event.PeerID)
			case network.ConnectionEventTypeDisconnect:
				w.peers.PlayerLeft(event.PeerID)
			default:
				log.Error("Unknown connection event type: %v", event.Type)
			}
		}
	}
}
