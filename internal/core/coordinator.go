package core

import (
	"encoding/json"
	"runtime"
	"sync/atomic"

	"github.com/kojjob/syncforge-sub000/internal/domain"
	"github.com/rs/zerolog/log"
)

const cmdQueueSize = 1024

// CoordinatorDeps are the shared resources a coordinator mutates. The
// presence table and throttle gate are process-wide; OnEmpty is the
// registry's callback for the Active -> Empty transition and runs on the
// coordinator's own goroutine.
type CoordinatorDeps struct {
	Presence *PresenceTable
	Gate     *ThrottleGate
	Emitter  Emitter
	OnEmpty  func(roomID domain.RoomID, c *Coordinator)
}

// Coordinator is the single owner of mutation ordering for one room. All
// membership changes and fan-outs go through its command loop, so every
// member observes presence diffs in the same relative order.
type Coordinator struct {
	room domain.Room
	deps CoordinatorDeps

	cmds    chan command
	closed  atomic.Bool
	senders atomic.Int64
	count   atomic.Int32

	// loop-owned, never touched outside run()
	members map[domain.ConnRef]MemberSession
}

type command any

type joinResult struct {
	snapshot domain.PresenceSet
	err      error
	// retry is set when the command was drained by a closing coordinator;
	// the registry must re-resolve the room and try again.
	retry bool
}

type joinCmd struct {
	sess  MemberSession
	reply chan joinResult
}

type leaveCmd struct {
	ref   domain.ConnRef
	reply chan struct{}
}

type ephemeralCmd struct {
	ref       domain.ConnRef
	frameType string
	data      json.RawMessage
}

type metaCmd struct {
	ref domain.ConnRef
	upd MetaUpdate
}

type publishCmd struct {
	frame Frame
}

type snapshotCmd struct {
	reply chan domain.PresenceSet
}

// NewCoordinator starts the room's command loop. Callers go through the
// registry, which owns the room_id -> coordinator mapping.
func NewCoordinator(room domain.Room, deps CoordinatorDeps) *Coordinator {
	c := &Coordinator{
		room:    room,
		deps:    deps,
		cmds:    make(chan command, cmdQueueSize),
		members: make(map[domain.ConnRef]MemberSession),
	}
	go c.run()
	return c
}

func (c *Coordinator) Room() domain.Room { return c.room }

func (c *Coordinator) MemberCount() int { return int(c.count.Load()) }

// enqueue delivers a command unless the coordinator has closed. The
// senders counter lets the closing loop drain every send that passed the
// closed check before returning.
func (c *Coordinator) enqueue(cmd command) bool {
	c.senders.Add(1)
	defer c.senders.Add(-1)
	if c.closed.Load() {
		return false
	}
	c.cmds <- cmd
	return true
}

// tryEnqueue is the drop-don't-wait variant for ephemeral traffic.
func (c *Coordinator) tryEnqueue(cmd command) bool {
	c.senders.Add(1)
	defer c.senders.Add(-1)
	if c.closed.Load() {
		return false
	}
	select {
	case c.cmds <- cmd:
		return true
	default:
		return false
	}
}

// Join admits the session, subject to capacity. The second return is
// false when the coordinator closed before the command landed; the
// registry retries against a fresh coordinator.
func (c *Coordinator) Join(sess MemberSession) (domain.PresenceSet, error, bool) {
	reply := make(chan joinResult, 1)
	if !c.enqueue(joinCmd{sess: sess, reply: reply}) {
		return nil, nil, false
	}
	res := <-reply
	if res.retry {
		return nil, nil, false
	}
	return res.snapshot, res.err, true
}

// Leave removes the connection and blocks until cleanup is done.
func (c *Coordinator) Leave(ref domain.ConnRef) {
	reply := make(chan struct{}, 1)
	if !c.enqueue(leaveCmd{ref: ref, reply: reply}) {
		return
	}
	<-reply
}

// Ephemeral routes a cursor/selection event through the throttle gate.
// Dropped silently when the gate rejects or the room is overloaded.
func (c *Coordinator) Ephemeral(ref domain.ConnRef, frameType string, data json.RawMessage) {
	c.tryEnqueue(ephemeralCmd{ref: ref, frameType: frameType, data: data})
}

// UpdateMeta merges partial presence metadata and re-announces the user.
func (c *Coordinator) UpdateMeta(ref domain.ConnRef, upd MetaUpdate) {
	c.enqueue(metaCmd{ref: ref, upd: upd})
}

// Publish fans a must-deliver frame out to every member, sender included.
// Used for durable write results.
func (c *Coordinator) Publish(frame Frame) {
	c.enqueue(publishCmd{frame: frame})
}

// Snapshot returns the room's current presence set, for reconnection
// recovery and the rooms API.
func (c *Coordinator) Snapshot() domain.PresenceSet {
	reply := make(chan domain.PresenceSet, 1)
	if !c.enqueue(snapshotCmd{reply: reply}) {
		return domain.PresenceSet{}
	}
	return <-reply
}

func (c *Coordinator) run() {
	log.Info().Str("module", "core.coordinator").Str("room", string(c.room.ID)).Msg("room active")
	for {
		cmd := <-c.cmds
		if c.dispatch(cmd) {
			c.drain()
			log.Info().Str("module", "core.coordinator").Str("room", string(c.room.ID)).Msg("room empty, coordinator stopped")
			return
		}
	}
}

// dispatch handles one command; true means the room emptied and the loop
// must shut down.
func (c *Coordinator) dispatch(cmd command) (stopped bool) {
	switch m := cmd.(type) {
	case joinCmd:
		m.reply <- c.handleJoin(m.sess)
	case leaveCmd:
		stopped = c.removeMember(m.ref)
		m.reply <- struct{}{}
	case ephemeralCmd:
		c.handleEphemeral(m)
	case metaCmd:
		diff := c.deps.Presence.UpdateMeta(c.room.ID, m.ref, m.upd)
		if !diff.Empty() {
			stopped = c.broadcast(PresenceDiffFrame(diff), "")
		}
	case publishCmd:
		stopped = c.broadcast(m.frame, "")
	case snapshotCmd:
		m.reply <- c.deps.Presence.Snapshot(c.room.ID)
	}
	return stopped
}

func (c *Coordinator) handleJoin(sess MemberSession) joinResult {
	if c.room.MaxParticipants > 0 && len(c.members) >= c.room.MaxParticipants {
		return joinResult{err: ErrRoomFull}
	}
	meta := domain.PresenceMeta{
		UserID:    sess.Identity.UserID,
		DeviceID:  sess.Identity.DeviceID,
		ConnRef:   sess.Ref,
		Name:      sess.Identity.Name,
		AvatarURL: sess.Identity.AvatarURL,
		Color:     domain.ColorFor(sess.Identity.UserID),
	}
	snapshot := c.deps.Presence.Track(c.room.ID, meta)
	c.members[sess.Ref] = sess
	c.count.Store(int32(len(c.members)))

	// The state frame is queued here, on the command loop, so no later
	// command's diff can be ordered ahead of it in the joiner's stream.
	// A joiner whose buffer is already full misses it and gets evicted by
	// the next must-deliver broadcast.
	_ = sess.Conn.TrySend(PresenceStateFrame(joinerView(snapshot, meta.UserID, sess.Ref)))

	diff := domain.NewPresenceDiff()
	diff.Joins[meta.UserID] = snapshot[meta.UserID]
	c.broadcast(PresenceDiffFrame(diff), sess.Ref)

	if c.deps.Emitter != nil && len(snapshot[meta.UserID]) == 1 {
		c.deps.Emitter.MembershipChanged(c.room.ID, meta.UserID, true, len(c.members))
	}
	log.Info().Str("module", "core.coordinator").
		Str("room", string(c.room.ID)).
		Str("user", string(meta.UserID)).
		Str("ref", string(sess.Ref)).
		Int("members", len(c.members)).
		Msg("member joined")
	return joinResult{snapshot: snapshot}
}

// joinerView is the snapshot the joiner is sent: its own new connection
// removed (the client renders itself locally), other devices of the same
// user kept. The source set is left untouched.
func joinerView(set domain.PresenceSet, uid domain.UserID, ref domain.ConnRef) domain.PresenceSet {
	out := set.Clone()
	metas := out[uid]
	kept := metas[:0]
	for _, m := range metas {
		if m.ConnRef != ref {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(out, uid)
	} else {
		out[uid] = kept
	}
	return out
}

func (c *Coordinator) handleEphemeral(m ephemeralCmd) {
	sess, ok := c.members[m.ref]
	if !ok {
		return
	}
	uid := sess.Identity.UserID
	if !c.deps.Gate.ShouldBroadcast(c.room.ID, uid) {
		return
	}
	c.deps.Gate.RecordUpdate(c.room.ID, uid)
	frame := ForwardFrame(m.frameType, sess.Identity, m.data)
	for ref, member := range c.members {
		if ref == m.ref {
			continue
		}
		// Ephemeral frames are droppable; a full buffer just loses one
		// intermediate position.
		_ = member.Conn.TrySend(frame)
	}
	if c.deps.Emitter != nil {
		c.deps.Emitter.EventAccepted(c.room.ID, uid, m.frameType)
	}
}

// removeMember untracks the connection and broadcasts the resulting diff.
// Returns true when the room emptied.
func (c *Coordinator) removeMember(ref domain.ConnRef) bool {
	sess, ok := c.members[ref]
	if !ok {
		return false
	}
	delete(c.members, ref)
	c.count.Store(int32(len(c.members)))

	uid := sess.Identity.UserID
	diff := c.deps.Presence.Untrack(c.room.ID, ref)
	if len(diff.Leaves) > 0 {
		c.deps.Gate.Cleanup(c.room.ID, uid)
		if c.deps.Emitter != nil {
			c.deps.Emitter.MembershipChanged(c.room.ID, uid, false, len(c.members))
		}
	}
	log.Info().Str("module", "core.coordinator").
		Str("room", string(c.room.ID)).
		Str("user", string(uid)).
		Str("ref", string(ref)).
		Int("members", len(c.members)).
		Msg("member left")

	if len(c.members) == 0 {
		c.stop()
		return true
	}
	if !diff.Empty() {
		return c.broadcast(PresenceDiffFrame(diff), "")
	}
	return false
}

// broadcast fans a must-deliver frame out to every member except exclude.
// A member whose send buffer cannot take a must-deliver frame is evicted;
// its closed connection then surfaces through its own session's leave
// path as a no-op. Returns true if the evictions emptied the room.
func (c *Coordinator) broadcast(frame Frame, exclude domain.ConnRef) bool {
	var slow []domain.ConnRef
	for ref, member := range c.members {
		if ref == exclude {
			continue
		}
		if err := member.Conn.TrySend(frame); err != nil {
			slow = append(slow, ref)
		}
	}
	stopped := false
	for _, ref := range slow {
		log.Warn().Str("module", "core.coordinator").
			Str("room", string(c.room.ID)).
			Str("ref", string(ref)).
			Msg("evicting slow consumer")
		if m, ok := c.members[ref]; ok {
			m.Conn.Close()
		}
		if c.removeMember(ref) {
			stopped = true
		}
	}
	return stopped
}

// stop runs the Active -> Empty transition: purge throttle and presence
// state atomically with deregistration, then refuse new commands.
func (c *Coordinator) stop() {
	c.deps.Gate.CleanupRoom(c.room.ID)
	c.deps.Presence.DropRoom(c.room.ID)
	if c.deps.OnEmpty != nil {
		c.deps.OnEmpty(c.room.ID, c)
	}
	c.closed.Store(true)
}

// drain answers every command that raced the shutdown. A sender either
// saw closed and failed fast, or is counted in senders and will land its
// command here; joins are told to retry against a fresh coordinator.
func (c *Coordinator) drain() {
	for {
		select {
		case cmd := <-c.cmds:
			switch m := cmd.(type) {
			case joinCmd:
				m.reply <- joinResult{retry: true}
			case leaveCmd:
				m.reply <- struct{}{}
			case snapshotCmd:
				m.reply <- domain.PresenceSet{}
			}
		default:
			if c.senders.Load() == 0 && len(c.cmds) == 0 {
				return
			}
			runtime.Gosched()
		}
	}
}
