package topology

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotHost is returned when a host-only bookkeeping call is made on a player.
var ErrNotHost = errors.New("participant is not the host")

// Role is fixed for the lifetime of a session.
type Role int

const (
	RoleHost Role = iota
	RolePlayer
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RolePlayer:
		return "player"
	default:
		return "unknown"
	}
}

// role carries the fields that are only valid for one variant.
type role interface {
	kind() Role
}

type hostRole struct {
	// players is the set of currently connected player ids
	players map[string]struct{}
}

func (hostRole) kind() Role { return RoleHost }

type playerRole struct {
	hostID string
}

func (playerRole) kind() Role { return RolePlayer }

// Topology tracks the local role and, for a host, the connected players.
type Topology struct {
	localID string
	role    role
	lock    sync.RWMutex
}

// NewHost creates the topology of the session host.
func NewHost(localID string) *Topology {
	return &Topology{
		localID: localID,
		role:    &hostRole{players: make(map[string]struct{})},
	}
}

// NewPlayer creates the topology of a player connected to hostID.
func NewPlayer(localID, hostID string) *Topology {
	return &Topology{
		localID: localID,
		role:    &playerRole{hostID: hostID},
	}
}

func (t *Topology) LocalID() string {
	return t.localID
}

func (t *Topology) Role() Role {
	return t.role.kind()
}

func (t *Topology) IsHost() bool {
	return t.role.kind() == RoleHost
}

// HostID returns the id of the host. On the host it is the local id.
func (t *Topology) HostID() string {
	if p, ok := t.role.(*playerRole); ok {
		return p.hostID
	}
	return t.localID
}

// RecordPlayerJoined adds a player to the connected set and reports whether it was new.
func (t *Topology) RecordPlayerJoined(id string) (bool, error) {
	h, ok := t.role.(*hostRole)
	if !ok {
		return false, ErrNotHost
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, exists := h.players[id]; exists {
		return false, nil
	}
	h.players[id] = struct{}{}
	return true, nil
}

// RecordPlayerLeft removes a player from the connected set and reports whether it was known.
func (t *Topology) RecordPlayerLeft(id string) bool {
	h, ok := t.role.(*hostRole)
	if !ok {
		return false
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, exists := h.players[id]; !exists {
		return false
	}
	delete(h.players, id)
	return true
}

func (t *Topology) IsKnownPlayer(id string) bool {
	h, ok := t.role.(*hostRole)
	if !ok {
		return false
	}
	t.lock.RLock()
	defer t.lock.RUnlock()
	_, exists := h.players[id]
	return exists
}

func (t *Topology) PlayerCount() int {
	h, ok := t.role.(*hostRole)
	if !ok {
		return 0
	}
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(h.players)
}

// Players returns the connected player ids in sorted order.
func (t *Topology) Players() []string {
	h, ok := t.role.(*hostRole)
	if !ok {
		return nil
	}
	t.lock.RLock()
	defer t.lock.RUnlock()
	ids := make([]string, 0, len(h.players))
	for id := range h.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ForEachPlayer applies fn to every connected player. It does nothing on a player.
// fn runs on a copy of the set, so it may call back into the topology.
func (t *Topology) ForEachPlayer(fn func(id string)) {
	for _, id := range t.Players() {
		fn(id)
	}
}
