// internal/game/registry.go
package game

import (
	"sync"

	"github.com/google/uuid"
)

// Registry owns the map from room id to its live handle. Constructed once
// at startup; all cross-room lookups go through it.
type Registry struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[uuid.UUID]*Room)}
}

func (reg *Registry) Add(room *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.rooms[room.ID] = room
}

func (reg *Registry) Get(id uuid.UUID) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, exists := reg.rooms[id]
	return r, exists
}

// Remove takes the room out of the registry and returns it, if present.
func (reg *Registry) Remove(id uuid.UUID) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, exists := reg.rooms[id]
	if exists {
		delete(reg.rooms, id)
	}
	return r, exists
}

func (reg *Registry) List() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// CloseAll shuts every room down; used during server shutdown.
func (reg *Registry) CloseAll() {
	for _, r := range reg.List() {
		r.Close()
	}
}
