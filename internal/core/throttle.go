package core

import (
	"sync"
	"time"

	"github.com/kojjob/syncforge-sub000/internal/domain"
)

// DefaultThrottleInterval caps high-frequency fan-out at ~60 events/s
// per (room, user), which tracks a 60Hz pointer sample rate.
const DefaultThrottleInterval = 16 * time.Millisecond

type throttleKey struct {
	room domain.RoomID
	user domain.UserID
}

// ThrottleGate rate-limits high-frequency ephemeral events per
// (room, user). Excess events are dropped by the caller, never queued:
// the next allowed event carries the latest position anyway.
type ThrottleGate struct {
	mu       sync.Mutex
	last     map[throttleKey]time.Time
	interval time.Duration
	now      func() time.Time
}

func NewThrottleGate(interval time.Duration) *ThrottleGate {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &ThrottleGate{
		last:     make(map[throttleKey]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// ShouldBroadcast reports whether a new event for the pair may go out now.
// Pure check: the caller records acceptance separately once it has
// actually decided to forward.
func (g *ThrottleGate) ShouldBroadcast(roomID domain.RoomID, userID domain.UserID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.last[throttleKey{roomID, userID}]
	if !ok {
		return true
	}
	return g.now().Sub(last) >= g.interval
}

// RecordUpdate marks an event as accepted, starting a new interval.
func (g *ThrottleGate) RecordUpdate(roomID domain.RoomID, userID domain.UserID) {
	g.mu.Lock()
	g.last[throttleKey{roomID, userID}] = g.now()
	g.mu.Unlock()
}

// Cleanup removes the pair's entry. No-op if none exists.
func (g *ThrottleGate) Cleanup(roomID domain.RoomID, userID domain.UserID) {
	g.mu.Lock()
	delete(g.last, throttleKey{roomID, userID})
	g.mu.Unlock()
}

// CleanupRoom purges every entry for a room, on room close.
func (g *ThrottleGate) CleanupRoom(roomID domain.RoomID) {
	g.mu.Lock()
	for k := range g.last {
		if k.room == roomID {
			delete(g.last, k)
		}
	}
	g.mu.Unlock()
}

// Entries reports the number of tracked pairs for a room.
func (g *ThrottleGate) Entries(roomID domain.RoomID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for k := range g.last {
		if k.room == roomID {
			n++
		}
	}
	return n
}
