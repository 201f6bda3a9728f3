package app

import (
	"sync"

	"github.com/kojjob/syncforge-sub000/internal/core"
	"github.com/kojjob/syncforge-sub000/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps room ids to live coordinators. Coordinators are created
// lazily on first join and deregister themselves on the Active -> Empty
// transition; the get-or-create / retire pair below resolves the race
// where a join lands on a room that is emptying at the same moment.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.Coordinator

	presence *core.PresenceTable
	gate     *core.ThrottleGate
	emitter  core.Emitter
}

func NewRegistry(presence *core.PresenceTable, gate *core.ThrottleGate, emitter core.Emitter) *Registry {
	return &Registry{
		rooms:    make(map[domain.RoomID]*core.Coordinator),
		presence: presence,
		gate:     gate,
		emitter:  emitter,
	}
}

// Join admits the session into the room, creating the coordinator if the
// room is currently empty. A coordinator that closes underneath the join
// is retired and the join retried against a fresh one.
func (r *Registry) Join(room domain.Room, sess core.MemberSession) (domain.PresenceSet, *core.Coordinator, error) {
	for {
		c := r.getOrCreate(room)
		snapshot, err, ok := c.Join(sess)
		if !ok {
			r.retire(room.ID, c)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return snapshot, c, nil
	}
}

func (r *Registry) getOrCreate(room domain.Room) *core.Coordinator {
	r.mu.RLock()
	c, ok := r.rooms[room.ID]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.rooms[room.ID]; ok {
		return c
	}
	c = core.NewCoordinator(room, core.CoordinatorDeps{
		Presence: r.presence,
		Gate:     r.gate,
		Emitter:  r.emitter,
		OnEmpty:  r.retire,
	})
	r.rooms[room.ID] = c
	log.Info().Str("module", "app.registry").Str("room", string(room.ID)).Msg("coordinator created")
	return c
}

// retire drops the mapping, but only if it still points at this
// coordinator; a fresh one for the same room may already have replaced it.
func (r *Registry) retire(roomID domain.RoomID, c *core.Coordinator) {
	r.mu.Lock()
	if cur, ok := r.rooms[roomID]; ok && cur == c {
		delete(r.rooms, roomID)
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("coordinator retired")
	}
	r.mu.Unlock()
}

// Get returns the live coordinator for a room, if any.
func (r *Registry) Get(roomID domain.RoomID) (*core.Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rooms[roomID]
	return c, ok
}

// List reports the currently active rooms.
func (r *Registry) List() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for id, c := range r.rooms {
		out = append(out, core.RoomInfo{
			ID:          id,
			Name:        c.Room().Name,
			MemberCount: c.MemberCount(),
		})
	}
	return out
}
