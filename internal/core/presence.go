package core

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/kojjob/syncforge-sub000/internal/domain"
)

const presenceShards = 16

// MetaUpdate carries the partial fields a presence:update may change.
// Nil means "leave as is".
type MetaUpdate struct {
	Status    *string
	Name      *string
	AvatarURL *string
}

// roomPresence is one room's live connection set. Guarded by its shard.
type roomPresence struct {
	set   domain.PresenceSet
	byRef map[domain.ConnRef]domain.UserID
}

type presenceShard struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomPresence
}

// PresenceTable is the authoritative record of which identities are
// connected to which room. Safe for concurrent use; state is sharded by
// room so unrelated rooms never contend on one lock.
type PresenceTable struct {
	shards [presenceShards]presenceShard
}

func NewPresenceTable() *PresenceTable {
	t := &PresenceTable{}
	for i := range t.shards {
		t.shards[i].rooms = make(map[domain.RoomID]*roomPresence)
	}
	return t
}

func (t *PresenceTable) shard(roomID domain.RoomID) *presenceShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return &t.shards[h.Sum32()%presenceShards]
}

// Track registers a new connection under meta.UserID, appending to the
// user's device list if they are already present. Returns the full
// snapshot for the caller's own initial render.
func (t *PresenceTable) Track(roomID domain.RoomID, meta domain.PresenceMeta) domain.PresenceSet {
	if meta.JoinedAt.IsZero() {
		meta.JoinedAt = time.Now()
	}
	s := t.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()

	rp, ok := s.rooms[roomID]
	if !ok {
		rp = &roomPresence{
			set:   domain.PresenceSet{},
			byRef: make(map[domain.ConnRef]domain.UserID),
		}
		s.rooms[roomID] = rp
	}
	rp.set[meta.UserID] = append(rp.set[meta.UserID], meta)
	rp.byRef[meta.ConnRef] = meta.UserID
	return rp.set.Clone()
}

// Untrack removes the entry matching ref. Only the last device of a user
// produces a leaves entry; dropping one of several devices re-announces
// the remaining list instead, so diff replay stays exact.
func (t *PresenceTable) Untrack(roomID domain.RoomID, ref domain.ConnRef) domain.PresenceDiff {
	s := t.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()

	diff := domain.NewPresenceDiff()
	rp, ok := s.rooms[roomID]
	if !ok {
		return diff
	}
	uid, ok := rp.byRef[ref]
	if !ok {
		return diff
	}
	delete(rp.byRef, ref)

	metas := rp.set[uid]
	kept := metas[:0]
	var removed []domain.PresenceMeta
	for _, m := range metas {
		if m.ConnRef == ref {
			removed = append(removed, m)
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		delete(rp.set, uid)
		diff.Leaves[uid] = removed
	} else {
		rp.set[uid] = kept
		cp := make([]domain.PresenceMeta, len(kept))
		copy(cp, kept)
		diff.Joins[uid] = cp
	}
	if len(rp.set) == 0 {
		delete(s.rooms, roomID)
	}
	return diff
}

// UpdateMeta merges partial fields into the entry matching ref and returns
// a joins-shaped re-announce diff for that user. An unknown ref yields an
// empty diff.
func (t *PresenceTable) UpdateMeta(roomID domain.RoomID, ref domain.ConnRef, upd MetaUpdate) domain.PresenceDiff {
	s := t.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()

	diff := domain.NewPresenceDiff()
	rp, ok := s.rooms[roomID]
	if !ok {
		return diff
	}
	uid, ok := rp.byRef[ref]
	if !ok {
		return diff
	}
	metas := rp.set[uid]
	for i := range metas {
		if metas[i].ConnRef != ref {
			continue
		}
		if upd.Status != nil {
			metas[i].Status = *upd.Status
		}
		if upd.Name != nil {
			metas[i].Name = *upd.Name
		}
		if upd.AvatarURL != nil {
			metas[i].AvatarURL = *upd.AvatarURL
		}
	}
	cp := make([]domain.PresenceMeta, len(metas))
	copy(cp, metas)
	diff.Joins[uid] = cp
	return diff
}

// Snapshot returns a copy of the room's current presence set.
func (t *PresenceTable) Snapshot(roomID domain.RoomID) domain.PresenceSet {
	s := t.shard(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rp, ok := s.rooms[roomID]
	if !ok {
		return domain.PresenceSet{}
	}
	return rp.set.Clone()
}

// DropRoom discards all presence state for a room. Idempotent.
func (t *PresenceTable) DropRoom(roomID domain.RoomID) {
	s := t.shard(roomID)
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}
