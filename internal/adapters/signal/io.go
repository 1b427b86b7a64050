package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/metrics"
	"github.com/dkeye/voicegate/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(c.id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump closing")
		c.Close()
		ctl.onClose(context.WithoutCancel(ctx), c)
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(c.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
			ctl.handleSignal(ctx, c, data)
		}
	}
}

// handleSignal processes one inbound envelope. Nothing here closes the connection.
func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	if !ctl.limiter.Allow(c.id) {
		metrics.MessageCounter.WithLabelValues("", "rate_limited").Inc()
		log.Warn().Str("module", "signal").Str("conn", string(c.id)).Msg("rate limit exceeded")
		return
	}

	env, err := protocol.Decode(data)
	if err != nil {
		metrics.MessageCounter.WithLabelValues("", "malformed").Inc()
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("bad message")
		return
	}

	ident, ok := ctl.authenticate(ctx, c, env)
	if !ok {
		metrics.MessageCounter.WithLabelValues(env.Type, "unauthorized").Inc()
		return
	}

	room := env.RoomID()
	switch env.Type {
	case protocol.TypeGetUsers:
		ctl.handleGetUsers(c, room)
	case protocol.TypeOffer:
		ctl.handleOffer(ctx, c, ident, env)
	case protocol.TypeCandidate:
		ctl.handleCandidate(ctx, c, ident.ID, env)
	case protocol.TypeAudio, protocol.TypeMedia, protocol.TypeData:
		ctl.handleToggle(ctx, c, ident.ID, env)
	case protocol.TypeLeave:
		ctl.handleLeave(ctx, c, ident.ID, room)
	default:
		metrics.MessageCounter.WithLabelValues("unknown", "dropped").Inc()
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		return
	}
	metrics.MessageCounter.WithLabelValues(env.Type, "handled").Inc()
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	f, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	ctl.deliver(c, f)
}

// deliver queues f for c. Failures are per recipient and only logged.
func (ctl *SignalWSController) deliver(c core.SignalConnection, f core.Frame) {
	err := c.TrySend(f)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrBackpressure):
		metrics.DeliveryFailures.WithLabelValues("backpressure").Inc()
		action := ctl.opts.Policy.OnBackPressure(c)
		log.Warn().Str("module", "signal").Str("conn", string(c.ID())).Stringer("action", action).Msg("send queue full")
		if action == app.KickMember {
			c.Close()
		}
	default:
		metrics.DeliveryFailures.WithLabelValues("closed").Inc()
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("send to closed connection")
	}
}
