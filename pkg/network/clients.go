package network

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cbodonnell/tabletop/pkg/log"
)

const (
	// ConnectionEventChannelSize represents the size of the connection event channel
	ConnectionEventChannelSize = 1024
	// ConnectionEventPublishTimeout bounds how long Add and Remove wait on a full
	// event channel before the event is dropped
	ConnectionEventPublishTimeout = 5 * time.Second
)

var (
	ErrDuplicatePeer = errors.New("peer is already connected")
	ErrUnknownPeer   = errors.New("peer is not connected")
)

// ConnectionEvent represents an event that happened to a peer connection
type ConnectionEvent struct {
	PeerID string
	Type   ConnectionEventType
}

// ConnectionEventType represents the type of a connection event
type ConnectionEventType int

const (
	ConnectionEventTypeConnect ConnectionEventType = iota
	ConnectionEventTypeDisconnect
)

func (t ConnectionEventType) String() string {
	switch t {
	case ConnectionEventTypeConnect:
		return "connect"
	case ConnectionEventTypeDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("ConnectionEventType(%d)", int(t))
	}
}

// ConnectionManager manages the open connections of the local participant, keyed by peer id
type ConnectionManager struct {
	connections     map[string]*Connection
	connectionsLock sync.RWMutex
	eventChan       chan ConnectionEvent
	publishTimeout  time.Duration
}

// NewConnectionManager creates a new ConnectionManager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		eventChan:      make(chan ConnectionEvent, ConnectionEventChannelSize),
		publishTimeout: ConnectionEventPublishTimeout,
	}
}

// GetConnectionEventChan returns a one-way channel for receiving connection events
func (cm *ConnectionManager) GetConnectionEventChan() <-chan ConnectionEvent {
	return cm.eventChan
}

// Add registers a connection. A peer can only have one open connection.
func (cm *ConnectionManager) Add(c *Connection) error {
	cm.connectionsLock.Lock()
	defer cm.connectionsLock.Unlock()

	if _, ok := cm.connections[c.PeerID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePeer, c.PeerID())
	}
	cm.connections[c.PeerID()] = c
	cm.publish(ConnectionEvent{PeerID: c.PeerID(), Type: ConnectionEventTypeConnect})

	return nil
}

// Remove unregisters a connection if it is still the one registered for its peer
func (cm *ConnectionManager) Remove(c *Connection) {
	cm.connectionsLock.Lock()
	defer cm.connectionsLock.Unlock()

	current, ok := cm.connections[c.PeerID()]
	if !ok || current != c {
		return
	}
	delete(cm.connections, c.PeerID())
	cm.publish(ConnectionEvent{PeerID: c.PeerID(), Type: ConnectionEventTypeDisconnect})
}

// Get returns the connection of a peer
func (cm *ConnectionManager) Get(peerID string) (*Connection, bool) {
	cm.connectionsLock.RLock()
	defer cm.connectionsLock.RUnlock()
	c, ok := cm.connections[peerID]
	return c, ok
}

func (cm *ConnectionManager) Exists(peerID string) bool {
	_, ok := cm.Get(peerID)
	return ok
}

// PeerIDs returns the sorted ids of all connected peers
func (cm *ConnectionManager) PeerIDs() []string {
	cm.connectionsLock.RLock()
	defer cm.connectionsLock.RUnlock()
	ids := make([]string, 0, len(cm.connections))
	for id := range cm.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Send queues serialized bytes on the connection of a peer
func (cm *ConnectionManager) Send(peerID string, data []byte) error {
	c, ok := cm.Get(peerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	return c.Send(data)
}

// CloseAll closes every open connection
func (cm *ConnectionManager) CloseAll() {
	cm.connectionsLock.RLock()
	connections := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		connections = append(connections, c)
	}
	cm.connectionsLock.RUnlock()

	for _, c := range connections {
		c.Close()
	}
}

// publish must be called with the lock held so events keep the order of
// Add and Remove. A full channel blocks for at most publishTimeout.
func (cm *ConnectionManager) publish(event ConnectionEvent) {
	select {
	case cm.eventChan <- event:
		return
	default:
	}

	timer := time.NewTimer(cm.publishTimeout)
	defer timer.Stop()
	select {
	case cm.eventChan <- event:
	case <-timer.C:
		log.Error("Connection event channel is full, dropped %s event for %s", event.Type, event.PeerID)
	}
}
