package signal

import (
	"context"

	"github.com/dkeye/voicegate/internal/app/orch"
	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/dkeye/voicegate/internal/metrics"
	"github.com/dkeye/voicegate/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleGetUsers(c *WsSignalConn, room domain.RoomID) {
	ctl.sendJSON(c, protocol.NewRoster(room, ctl.Orch.Roster(room)))
}

// handleOffer blocks the connection's read loop until the engine answers or the
// offer times out, so later messages of this connection see the finished join.
func (ctl *SignalWSController) handleOffer(ctx context.Context, c *WsSignalConn, ident domain.Identity, env *protocol.Envelope) {
	room := env.RoomID()
	gate := newCandidateGate(func(ci protocol.ICECandidateMessage) { ctl.sendJSON(c, ci) })

	res, err := ctl.Orch.Join(ctx, orch.JoinRequest{
		Room:        room,
		User:        ident,
		Conn:        c.id,
		SDPOffer:    env.Data.SDPOffer,
		OnCandidate: gate.handler(room, ident.ID),
	})
	if res.LeftRoom != "" {
		ctl.conns.left(c.id, res.LeftRoom)
		ctl.broadcastRoster(res.LeftRoom, "")
	}
	if err != nil {
		gate.discard()
		log.Error().Err(err).Str("module", "signal").Str("room", string(room)).Str("user", string(ident.ID)).Msg("join failed")
		ctl.sendJSON(c, protocol.NewError(protocol.TypeOffer, room, err.Error()))
		return
	}

	ctl.conns.joined(c.id, room)
	ctl.sendJSON(c, protocol.NewJoinResponse(ident.ID, res.SDPAnswer, res.Members))
	gate.open()
	ctl.broadcastRoster(room, c.id)
}

func (ctl *SignalWSController) handleLeave(ctx context.Context, c *WsSignalConn, user domain.UserID, room domain.RoomID) {
	ctl.conns.left(c.id, room)
	if !ctl.Orch.Leave(ctx, room, user) {
		log.Debug().Str("module", "signal").Str("room", string(room)).Str("user", string(user)).Msg("leave: not a member")
	}
	ctl.sendJSON(c, protocol.NewRoster(room, ctl.Orch.Roster(room)))
	ctl.broadcastRoster(room, c.id)
}

// broadcastRoster sends the room's roster to the configured audience, skipping except.
func (ctl *SignalWSController) broadcastRoster(room domain.RoomID, except core.ConnID) {
	members := ctl.Orch.Roster(room)
	frame, err := protocol.Encode(protocol.NewRoster(room, members))
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode roster")
		return
	}

	var targets []core.SignalConnection
	if ctl.opts.Scope == ScopeGlobal {
		targets = ctl.conns.all()
	} else {
		users := make(map[domain.UserID]struct{}, len(members))
		for _, m := range members {
			users[m.User.ID] = struct{}{}
		}
		targets = ctl.conns.ofUsers(users)
	}
	for _, t := range targets {
		if t.ID() == except {
			continue
		}
		ctl.deliver(t, frame)
	}
	log.Debug().Str("module", "signal").Str("room", string(room)).Int("recipients", len(targets)).Msg("roster broadcast")
}

// RoomEvicted pushes an empty roster to the connections of evicted members.
func (ctl *SignalWSController) RoomEvicted(room domain.RoomID, evicted []domain.Member) {
	ctl.conns.forgetRoom(room)
	frame, err := protocol.Encode(protocol.NewRoster(room, nil))
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode roster")
		return
	}
	users := make(map[domain.UserID]struct{}, len(evicted))
	for _, m := range evicted {
		users[m.User.ID] = struct{}{}
	}
	targets := ctl.conns.ofUsers(users)
	if ctl.opts.Scope == ScopeGlobal {
		targets = ctl.conns.all()
	}
	for _, t := range targets {
		ctl.deliver(t, frame)
	}
	log.Info().Str("module", "signal").Str("room", string(room)).Int("recipients", len(targets)).Msg("room evicted")
}

func (ctl *SignalWSController) onClose(ctx context.Context, c *WsSignalConn) {
	user, rooms := ctl.conns.remove(c.id)
	ctl.limiter.Forget(c.id)
	metrics.ConnectionsActive.Dec()
	log.Info().Str("module", "signal").Str("conn", string(c.id)).Str("user", string(user)).Int("rooms", len(rooms)).Msg("connection closed")
	if user != "" {
		ctl.cleanup(ctx, c, user, rooms)
	}
}

// cleanup removes the sessions user created through c and updates the remaining members.
func (ctl *SignalWSController) cleanup(ctx context.Context, c *WsSignalConn, user domain.UserID, rooms []domain.RoomID) {
	if len(rooms) == 0 {
		return
	}
	for _, room := range ctl.Orch.Disconnect(ctx, c.id, user, rooms) {
		ctl.broadcastRoster(room, c.id)
	}
}
