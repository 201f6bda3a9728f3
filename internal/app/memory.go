package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kojjob/syncforge-sub000/internal/core"
	"github.com/kojjob/syncforge-sub000/internal/domain"
)

// MemoryDirectory is the in-process directory used when no database is
// configured (single-node dev mode) and by tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]domain.Room
	// roles is keyed by org then user; absence means no membership.
	roles map[domain.OrgID]map[domain.UserID]domain.Role
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		rooms: make(map[domain.RoomID]domain.Room),
		roles: make(map[domain.OrgID]map[domain.UserID]domain.Role),
	}
}

func (d *MemoryDirectory) PutRoom(room domain.Room) {
	d.mu.Lock()
	d.rooms[room.ID] = room
	d.mu.Unlock()
}

func (d *MemoryDirectory) PutMembership(orgID domain.OrgID, userID domain.UserID, role domain.Role) {
	d.mu.Lock()
	if d.roles[orgID] == nil {
		d.roles[orgID] = make(map[domain.UserID]domain.Role)
	}
	d.roles[orgID][userID] = role
	d.mu.Unlock()
}

func (d *MemoryDirectory) AuthorizeJoin(ctx context.Context, roomID domain.RoomID, identity domain.Identity) (core.JoinGrant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return core.JoinGrant{}, core.ErrRoomNotFound
	}
	role, member := d.roles[room.OrgID][identity.UserID]
	if !member {
		if !room.Public {
			return core.JoinGrant{}, core.ErrAccessDenied
		}
		role = domain.RoleViewer
	}
	return core.JoinGrant{Room: room, Role: role}, nil
}

// MemoryEventStore keeps durable writes in memory, for dev mode and tests.
type MemoryEventStore struct {
	mu      sync.Mutex
	records []domain.Record
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

func (s *MemoryEventStore) RecordWrite(ctx context.Context, kind domain.EventKind, req domain.WriteRequest) (domain.Record, error) {
	if kind != domain.EventComment && kind != domain.EventReaction {
		return domain.Record{}, domain.ErrUnknownEventKind
	}
	rec := domain.Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		TargetID:  req.TargetID,
		Body:      req.Body,
		Emoji:     req.Emoji,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryEventStore) Records() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Record, len(s.records))
	copy(out, s.records)
	return out
}

var _ core.Directory = (*MemoryDirectory)(nil)
var _ core.EventStore = (*MemoryEventStore)(nil)
