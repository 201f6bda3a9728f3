package core

import (
	"encoding/json"

	"github.com/kojjob/syncforge-sub000/internal/domain"
)

// Outbound frame types.
const (
	FramePresenceState    = "presence_state"
	FramePresenceDiff     = "presence_diff"
	FrameCursorMoved      = "cursor:moved"
	FrameSelectionChanged = "selection:changed"
	FrameCommentCreated   = "comment:created"
	FrameReactionAdded    = "reaction:added"
	FrameError            = "error"
	FramePong             = "pong"
	FrameLeft             = "left"
)

func marshalFrame(v any) Frame {
	b, err := json.Marshal(v)
	if err != nil {
		// All frame payloads are engine-built structs; this cannot fail
		// for them, and a broken frame must not take the room down.
		return Frame(`{"type":"error","reason":"internal"}`)
	}
	return Frame(b)
}

// PresenceStateFrame renders the full snapshot sent to a joining client.
func PresenceStateFrame(set domain.PresenceSet) Frame {
	return marshalFrame(struct {
		Type     string             `json:"type"`
		Presence domain.PresenceSet `json:"presence"`
	}{FramePresenceState, set})
}

// PresenceDiffFrame renders a membership/metadata delta broadcast.
func PresenceDiffFrame(diff domain.PresenceDiff) Frame {
	return marshalFrame(struct {
		Type   string             `json:"type"`
		Joins  domain.PresenceSet `json:"joins"`
		Leaves domain.PresenceSet `json:"leaves"`
	}{FramePresenceDiff, diff.Joins, diff.Leaves})
}

// ForwardFrame renders a high-frequency event relayed to other members,
// with the sender's identity attached.
func ForwardFrame(frameType string, sender domain.Identity, data json.RawMessage) Frame {
	return marshalFrame(struct {
		Type string          `json:"type"`
		User domain.Identity `json:"user"`
		Data json.RawMessage `json:"data"`
	}{frameType, sender, data})
}

// RecordFrame renders the result of a durable write broadcast to the room.
func RecordFrame(frameType string, sender domain.Identity, rec domain.Record) Frame {
	return marshalFrame(struct {
		Type   string          `json:"type"`
		User   domain.Identity `json:"user"`
		Record domain.Record   `json:"record"`
	}{frameType, sender, rec})
}

// ErrorFrame renders a rejection reported to one client.
func ErrorFrame(reason string) Frame {
	return marshalFrame(struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}{FrameError, reason})
}
