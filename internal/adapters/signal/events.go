package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/kojjob/syncforge-sub000/internal/core"
	"github.com/kojjob/syncforge-sub000/internal/domain"
)

// handleEphemeral forwards cursor/selection samples into the coordinator.
// Anything the throttle gate drops is dropped silently: the client keeps
// sampling and the latest position gets through within one interval.
func (s *roomSession) handleEphemeral(data []byte, evtType string) {
	if !s.joined {
		s.ctl.sendError(s.conn, "not_joined")
		return
	}
	var outType string
	var payload json.RawMessage
	switch evtType {
	case evtCursorUpdate:
		var p struct {
			X         float64 `json:"x"`
			Y         float64 `json:"y"`
			ElementID string  `json:"element_id,omitempty"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			s.ctl.sendError(s.conn, "bad_payload")
			return
		}
		payload, _ = json.Marshal(p)
		outType = core.FrameCursorMoved
	case evtSelectionUpdate:
		// Accepts both the range shape {start,end} and the text shape
		// {anchor,focus}.
		var p struct {
			Start  json.RawMessage `json:"start,omitempty"`
			End    json.RawMessage `json:"end,omitempty"`
			Anchor json.RawMessage `json:"anchor,omitempty"`
			Focus  json.RawMessage `json:"focus,omitempty"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			s.ctl.sendError(s.conn, "bad_payload")
			return
		}
		payload, _ = json.Marshal(p)
		outType = core.FrameSelectionChanged
	}
	s.coord.Ephemeral(s.ref, outType, payload)
}

func (s *roomSession) handlePresenceUpdate(data []byte) {
	if !s.joined {
		s.ctl.sendError(s.conn, "not_joined")
		return
	}
	var p struct {
		Status    *string `json:"status"`
		Name      *string `json:"name"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		s.ctl.sendError(s.conn, "bad_payload")
		return
	}
	s.coord.UpdateMeta(s.ref, core.MetaUpdate{
		Status:    p.Status,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
	})
}

// handleWrite runs the durable write for comment/reaction events and
// broadcasts the stored record. The write happens on this session's
// goroutine so a slow store never stalls the room coordinator.
func (s *roomSession) handleWrite(ctx context.Context, data []byte, evtType string) {
	if !s.joined {
		s.ctl.sendError(s.conn, "not_joined")
		return
	}
	if !s.role.CanWrite() {
		s.ctl.sendError(s.conn, "forbidden")
		return
	}
	var p struct {
		TargetID string `json:"target_id,omitempty"`
		Body     string `json:"body,omitempty"`
		Emoji    string `json:"emoji,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		s.ctl.sendError(s.conn, "bad_payload")
		return
	}

	var (
		kind     domain.EventKind
		outFrame string
	)
	switch evtType {
	case evtCommentCreate:
		kind, outFrame = domain.EventComment, core.FrameCommentCreated
	case evtReactionAdd:
		kind, outFrame = domain.EventReaction, core.FrameReactionAdded
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.ctl.Cfg.AuthTimeout)
	rec, err := s.ctl.Store.RecordWrite(writeCtx, kind, domain.WriteRequest{
		RoomID:   s.room.ID,
		UserID:   s.identity.UserID,
		TargetID: p.TargetID,
		Body:     p.Body,
		Emoji:    p.Emoji,
	})
	cancel()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").
			Str("room", string(s.room.ID)).
			Str("kind", string(kind)).
			Msg("durable write failed")
		s.ctl.sendError(s.conn, "write_failed")
		return
	}
	s.coord.Publish(core.RecordFrame(outFrame, s.identity, rec))
}
