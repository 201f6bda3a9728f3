package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/kojjob/syncforge-sub000/internal/core"
	"github.com/kojjob/syncforge-sub000/internal/domain"
)

// roomSession is the per-connection state machine. It starts unjoined,
// holds at most one room membership, and is owned entirely by its read
// pump goroutine.
type roomSession struct {
	ctl         *Controller
	ref         domain.ConnRef
	clientToken string
	conn        *WsConn

	// set on successful join, cleared on leave
	joined   bool
	room     domain.Room
	role     domain.Role
	identity domain.Identity
	coord    *core.Coordinator
}

func (s *roomSession) handleJoin(ctx context.Context, data []byte) {
	if s.joined {
		s.ctl.sendError(s.conn, "already_joined")
		return
	}
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"room_id"`
		Token  string `json:"identity_token"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		s.ctl.sendError(s.conn, "bad_payload")
		return
	}

	identity, err := s.ctl.Verifier.Verify(p.Token)
	if err != nil {
		s.ctl.sendError(s.conn, "access_denied")
		return
	}
	if identity.DeviceID == "" {
		// The browser-scoped client token is the best device signal we
		// have when the auth service did not mint one.
		identity.DeviceID = domain.DeviceID(s.clientToken)
	}

	roomID := domain.RoomID(p.RoomID)
	authCtx, cancel := context.WithTimeout(ctx, s.ctl.Cfg.AuthTimeout)
	grant, err := s.ctl.Directory.AuthorizeJoin(authCtx, roomID, identity)
	cancel()
	if err != nil {
		s.ctl.sendError(s.conn, joinRejectReason(err))
		return
	}
	identity.Role = grant.Role

	// The coordinator queues the presence_state frame itself, before any
	// later diff, so the client's replay order is always state-then-diffs.
	_, coord, err := s.ctl.Registry.Join(grant.Room, core.MemberSession{
		Ref:      s.ref,
		Identity: identity,
		Role:     grant.Role,
		Conn:     s.conn,
	})
	if err != nil {
		s.ctl.sendError(s.conn, joinRejectReason(err))
		return
	}

	s.joined = true
	s.room = grant.Room
	s.role = grant.Role
	s.identity = identity
	s.coord = coord

	log.Info().Str("module", "signal").
		Str("ref", string(s.ref)).
		Str("room", string(s.room.ID)).
		Str("user", string(identity.UserID)).
		Str("role", string(grant.Role)).
		Msg("joined room")
}

func joinRejectReason(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, core.ErrRoomFull):
		return "room_full"
	case errors.Is(err, core.ErrAccessDenied):
		return "access_denied"
	default:
		return "timeout"
	}
}

// handleLeave exits the room without dropping the connection, so the
// client may join another room on the same socket.
func (s *roomSession) handleLeave() {
	if !s.joined {
		s.ctl.sendError(s.conn, "not_joined")
		return
	}
	s.leave()
	s.ctl.sendFrame(s.conn, core.Frame(`{"type":"left"}`))
}

// leave is idempotent; it also runs on disconnect.
func (s *roomSession) leave() {
	if !s.joined {
		return
	}
	s.coord.Leave(s.ref)
	s.joined = false
	s.coord = nil
	log.Info().Str("module", "signal").
		Str("ref", string(s.ref)).
		Str("room", string(s.room.ID)).
		Msg("left room")
}
