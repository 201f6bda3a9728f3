package core

import (
	"context"
	"errors"

	"github.com/kojjob/syncforge-sub000/internal/domain"
)

// Frame is a rendered outbound payload, ready for the wire.
type Frame []byte

// Join/write failures surfaced to the client as error frames.
var (
	ErrRoomNotFound  = errors.New("room_not_found")
	ErrRoomFull      = errors.New("room_full")
	ErrAccessDenied  = errors.New("access_denied")
	ErrForbidden     = errors.New("forbidden")
	ErrNotJoined     = errors.New("not_joined")
	ErrAlreadyJoined = errors.New("already_joined")
	ErrBackpressure  = errors.New("backpressure")
	ErrRoomClosed    = errors.New("room closed")
)

// SignalConnection abstracts the client transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a connection's resolved identity and role to its
// transport. This is what a coordinator stores and fans out to.
type MemberSession struct {
	Ref      domain.ConnRef
	Identity domain.Identity
	Role     domain.Role
	Conn     SignalConnection
}

// JoinGrant is the directory's answer to a join request. Capacity is not
// checked here, only the coordinator knows the live member count.
type JoinGrant struct {
	Room domain.Room
	Role domain.Role
}

// Directory resolves room existence, access and role at join time.
// Implementations may do I/O; callers bound it with a context deadline.
type Directory interface {
	AuthorizeJoin(ctx context.Context, roomID domain.RoomID, identity domain.Identity) (JoinGrant, error)
}

// EventStore performs the durable write behind comment/reaction events.
type EventStore interface {
	RecordWrite(ctx context.Context, kind domain.EventKind, req domain.WriteRequest) (domain.Record, error)
}

// Emitter receives fire-and-forget engine signals for external consumers
// (analytics, audit). Implementations must never block the caller.
type Emitter interface {
	MembershipChanged(roomID domain.RoomID, userID domain.UserID, joined bool, memberCount int)
	EventAccepted(roomID domain.RoomID, userID domain.UserID, eventType string)
}

// RoomInfo is a read-only view for APIs (no transport fields).
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	Name        string        `json:"name"`
	MemberCount int           `json:"member_count"`
}
