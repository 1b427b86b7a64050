package signal

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/app/orch"
	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// BroadcastScope selects who receives roster updates after a media toggle or leave.
type BroadcastScope int

const (
	// ScopeRoom reaches connections whose user is a member of the room.
	ScopeRoom BroadcastScope = iota
	// ScopeGlobal reaches every open connection.
	ScopeGlobal
)

func ParseBroadcastScope(s string) BroadcastScope {
	if s == "global" {
		return ScopeGlobal
	}
	return ScopeRoom
}

type Options struct {
	SendBuffer     int
	RateLimit      int
	RateInterval   time.Duration
	Scope          BroadcastScope
	Policy         app.Policy
	AllowedOrigins []string
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
}

func (o *Options) setDefaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.Policy == nil {
		o.Policy = app.SimplePolicy{Action: app.KickMember}
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
}

type SignalWSController struct {
	Orch *orch.Orchestrator
	Auth core.IdentityValidator

	opts     Options
	conns    *connTable
	limiter  *RateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, auth core.IdentityValidator, opts Options) *SignalWSController {
	opts.setDefaults()
	ctl := &SignalWSController{
		Orch:    o,
		Auth:    auth,
		opts:    opts,
		conns:   newConnTable(),
		limiter: NewRateLimiter(opts.RateLimit, opts.RateInterval),
	}
	ctl.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     ctl.checkOrigin,
	}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	if len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(ctl.opts.AllowedOrigins, origin)
}

type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
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

// HandleSignal upgrades the request and serves the connection until it closes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	clientToken := c.GetString("client_token")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	ctl.conns.add(conn)
	metrics.ConnectionsActive.Inc()
	log.Info().
		Str("module", "signal").
		Str("conn", string(conn.id)).
		Str("ct", clientToken).
		Str("remote", c.ClientIP()).
		Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn)
}

// Close drops every open connection.
func (ctl *SignalWSController) Close() {
	for _, c := range ctl.conns.all() {
		c.Close()
	}
}
