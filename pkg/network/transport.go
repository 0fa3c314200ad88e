package network

import (
	"context"
	"fmt"

	"github.com/cbodonnell/tabletop/pkg/messages"
)

// Transport serializes events and queues them on peer connections.
type Transport struct {
	connections *ConnectionManager
}

func NewTransport(connections *ConnectionManager) *Transport {
	return &Transport{
		connections: connections,
	}
}

func (t *Transport) Send(ctx context.Context, peerID string, e messages.Event) error {
	data, err := messages.SerializeEnvelope(e)
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %v", err)
	}
	return t.connections.Send(peerID, data)
}
