package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Hub     *Hub
	cfg     *config.Config
	limiter *JoinRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, hub *Hub, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		Hub:     hub,
		cfg:     cfg,
		limiter: NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval),
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

// clientConn is one participant's connection-scoped state. Every message but
// join and ping is rejected until authentication succeeds.
type clientConn struct {
	*wsSignalConn

	mu            sync.Mutex
	authenticated bool
	userID        domain.UserID
	meetingID     domain.MeetingID
	pcID          string
}

func (cc *clientConn) identity() (domain.MeetingID, domain.UserID, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.meetingID, cc.userID, cc.authenticated
}

func (cc *clientConn) admit(meetingID domain.MeetingID, userID domain.UserID, pcID string) {
	cc.mu.Lock()
	cc.authenticated = true
	cc.meetingID = meetingID
	cc.userID = userID
	cc.pcID = pcID
	cc.mu.Unlock()
}

// revoke clears the authenticated identity and reports whether it was set;
// the second of two racing cleanups gets false. This is what makes the
// disconnect and leave paths safe to run twice. The returned pc id scopes the
// teardown to the session this connection was admitted with.
func (cc *clientConn) revoke() (domain.MeetingID, domain.UserID, string, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if !cc.authenticated {
		return "", "", "", false
	}
	cc.authenticated = false
	meetingID, userID, pcID := cc.meetingID, cc.userID, cc.pcID
	cc.meetingID, cc.userID, cc.pcID = "", "", ""
	return meetingID, userID, pcID, true
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("token", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	cc := &clientConn{
		wsSignalConn: &wsSignalConn{
			conn: ws,
			send: make(chan core.Frame, 32),
		},
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cc.wsSignalConn)
	go ctl.readPump(ctx, cancel, cc)
}
