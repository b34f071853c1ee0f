package room

import (
	"log/slog"
	"sync"
)

// DestroyHook is invoked after a room is removed from the registry, letting
// other components (rules engine, SFU, analysis) tear down their room state.
type DestroyHook func(roomID string)

// Registry owns all live rooms. Rooms are created lazily on first access and
// removed when their last participant leaves.
type Registry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	incidentCap int
	hooks       []DestroyHook
	logger      *slog.Logger
}

// NewRegistry creates an empty registry. incidentCap bounds each room's
// incident log; zero means unbounded.
func NewRegistry(incidentCap int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		incidentCap: incidentCap,
		logger:      logger.With("component", "rooms"),
	}
}

// OnDestroy registers a hook called whenever a room is destroyed. Must be
// called during startup, before rooms exist.
func (reg *Registry) OnDestroy(hook DestroyHook) {
	reg.hooks = append(reg.hooks, hook)
}

// GetOrCreate returns the room, creating it if needed.
func (reg *Registry) GetOrCreate(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		r = newRoom(roomID, reg.incidentCap, reg.logger)
		reg.rooms[roomID] = r
		reg.logger.Info("room created", "room", roomID)
	}
	return r
}

// Get returns the room or nil if it does not exist.
func (reg *Registry) Get(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[roomID]
}

// RemoveIfEmpty destroys the room when it has no participants left. Returns
// true if the room was removed. Destroy hooks run outside the registry lock.
func (reg *Registry) RemoveIfEmpty(roomID string) bool {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	if !ok || !r.IsEmpty() {
		reg.mu.Unlock()
		return false
	}
	delete(reg.rooms, roomID)
	hooks := reg.hooks
	reg.mu.Unlock()

	reg.logger.Info("room destroyed", "room", roomID)
	for _, hook := range hooks {
		hook(roomID)
	}
	return true
}

// Count returns the number of live rooms.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
