package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kojjob/syncforge-sub000/internal/app"
	"github.com/kojjob/syncforge-sub000/internal/config"
	"github.com/kojjob/syncforge-sub000/internal/core"
	"github.com/kojjob/syncforge-sub000/internal/domain"
)

// Controller owns the websocket endpoint and the per-connection sessions
// it spawns. One session serves exactly one room membership at a time.
type Controller struct {
	Registry  *app.Registry
	Directory core.Directory
	Verifier  *app.TokenVerifier
	Store     core.EventStore
	Cfg       *config.Config
}

func NewController(reg *app.Registry, dir core.Directory, verifier *app.TokenVerifier, store core.EventStore, cfg *config.Config) *Controller {
	return &Controller{
		Registry:  reg,
		Directory: dir,
		Verifier:  verifier,
		Store:     store,
		Cfg:       cfg,
	}
}

// WsConn wraps a websocket with a buffered outbound queue. TrySend never
// blocks; the room coordinator decides what a full buffer means.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleRoom upgrades the connection and runs its session pumps.
func (ctl *Controller) HandleRoom(ctx context.Context, c *gin.Context) {
	clientToken := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	sess := &roomSession{
		ctl:         ctl,
		ref:         domain.ConnRef(uuid.NewString()),
		clientToken: clientToken,
		conn:        conn,
	}
	log.Info().Str("module", "signal").Str("ref", string(sess.ref)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sess)
	}()
}

func (ctl *Controller) sendFrame(c *WsConn, f core.Frame) {
	_ = c.TrySend(f)
}

func (ctl *Controller) sendError(c *WsConn, reason string) {
	ctl.sendFrame(c, core.ErrorFrame(reason))
}
