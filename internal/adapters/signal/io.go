package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump is the session's single event loop; session state is only ever
// touched here, so handlers need no locking. A peer that stops answering
// pings falls out via the read deadline and goes through the normal leave
// path, same as an explicit disconnect.
func (ctl *Controller) readPump(ctx context.Context, s *roomSession) {
	defer func() {
		log.Info().Str("module", "signal").Str("ref", string(s.ref)).Msg("readPump closing")
		s.leave()
		s.conn.Close()
	}()

	ws := s.conn.conn
	ws.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(ctl.Cfg.LivenessWindow))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(ctl.Cfg.LivenessWindow))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := ws.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("ref", string(s.ref)).Msg("readPump read error")
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(ctl.Cfg.LivenessWindow))
			s.handleFrame(ctx, data)
		}
	}
}

// Inbound event types.
const (
	evtJoin            = "join"
	evtCursorUpdate    = "cursor:update"
	evtSelectionUpdate = "selection:update"
	evtPresenceUpdate  = "presence:update"
	evtCommentCreate   = "comment:create"
	evtReactionAdd     = "reaction:add"
	evtLeave           = "leave"
	evtPing            = "ping"
)

func (s *roomSession) handleFrame(ctx context.Context, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("ref", string(s.ref)).Msg("bad json")
		s.ctl.sendError(s.conn, "bad_payload")
		return
	}

	switch env.Type {
	case evtJoin:
		s.handleJoin(ctx, data)
	case evtLeave:
		s.handleLeave()
	case evtPing:
		s.ctl.sendFrame(s.conn, pongFrame())
	case evtCursorUpdate:
		s.handleEphemeral(data, evtCursorUpdate)
	case evtSelectionUpdate:
		s.handleEphemeral(data, evtSelectionUpdate)
	case evtPresenceUpdate:
		s.handlePresenceUpdate(data)
	case evtCommentCreate:
		s.handleWrite(ctx, data, evtCommentCreate)
	case evtReactionAdd:
		s.handleWrite(ctx, data, evtReactionAdd)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
		s.ctl.sendError(s.conn, "bad_payload")
	}
}

func pongFrame() []byte {
	return []byte(`{"type":"pong"}`)
}
