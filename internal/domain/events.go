package domain

import "errors"

// EventKind classifies durable writes triggered by room events.
type EventKind string

const (
	EventComment  EventKind = "comment"
	EventReaction EventKind = "reaction"
)

var ErrUnknownEventKind = errors.New("unknown event kind")

// WriteRequest is the payload handed to the event store. The engine treats
// Body/Emoji as opaque; validation beyond emptiness is the store's concern.
type WriteRequest struct {
	RoomID   RoomID `json:"room_id"`
	UserID   UserID `json:"user_id"`
	TargetID string `json:"target_id,omitempty"`
	Body     string `json:"body,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
}

// Record is the durable result broadcast to the room after a write.
type Record struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	RoomID    RoomID    `json:"room_id"`
	UserID    UserID    `json:"user_id"`
	TargetID  string    `json:"target_id,omitempty"`
	Body      string    `json:"body,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	CreatedAt string    `json:"created_at"`
}
