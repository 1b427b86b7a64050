package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/dkeye/voicegate/internal/metrics"
	"github.com/rs/zerolog/log"
)

type JoinRequest struct {
	Room        domain.RoomID
	User        domain.Identity
	Conn        core.ConnID
	SDPOffer    string
	OnCandidate core.CandidateHandler
}

type JoinResult struct {
	SDPAnswer string
	Members   []domain.Member
	// LeftRoom is the room the user was moved out of, if any.
	LeftRoom domain.RoomID
}

type offerResult struct {
	sdp string
	err error
}

// Join moves the user into req.Room and negotiates the offer. On failure the new
// endpoint is rolled back, so a user renegotiating keeps the session it had.
func (o *Orchestrator) Join(ctx context.Context, req JoinRequest) (JoinResult, error) {
	var res JoinResult
	if prev, ok := o.Registry.RoomOf(req.User.ID); ok && prev != req.Room {
		o.Registry.RemoveUser(ctx, prev, req.User.ID)
		res.LeftRoom = prev
		log.Info().Str("module", "orch").Str("user", string(req.User.ID)).Str("from_room", string(prev)).Msg("left previous room")
	}

	ep, replaced, err := o.Registry.CreateEndpoint(ctx, req.Room, req.Conn, req.User, req.OnCandidate)
	if err != nil {
		return res, err
	}
	rollback := func(ctx context.Context) {
		o.Registry.RollbackEndpoint(ctx, req.Room, req.User.ID, ep)
		log.Info().
			Str("module", "orch").
			Str("room", string(req.Room)).
			Str("user", string(req.User.ID)).
			Bool("renegotiation", replaced != nil).
			Msg("join rolled back")
	}

	answers := make(chan offerResult, 1)
	start := time.Now()
	err = o.Registry.ProcessOffer(ctx, req.Room, req.User.ID, req.SDPOffer, func(sdp string, err error) {
		select {
		case answers <- offerResult{sdp: sdp, err: err}:
		default:
		}
	})
	if err != nil {
		rollback(ctx)
		return res, err
	}

	timer := time.NewTimer(o.OfferTimeout)
	defer timer.Stop()
	select {
	case ans := <-answers:
		metrics.OfferDuration.Observe(time.Since(start).Seconds())
		if ans.err != nil {
			rollback(ctx)
			return res, fmt.Errorf("process offer: %w", ans.err)
		}
		res.SDPAnswer = ans.sdp
	case <-timer.C:
		rollback(ctx)
		return res, ErrOfferTimeout
	case <-ctx.Done():
		rollback(context.WithoutCancel(ctx))
		return res, ctx.Err()
	}
	o.Registry.CommitEndpoint(ctx, req.Room, req.User.ID, ep)

	if err := o.Registry.GatherCandidates(ctx, req.Room, req.User.ID); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(req.Room)).Str("user", string(req.User.ID)).Msg("gather candidates")
	}
	res.Members = o.Registry.ListMembers(req.Room)
	log.Info().
		Str("module", "orch").
		Str("room", string(req.Room)).
		Str("user", string(req.User.ID)).
		Int("members", len(res.Members)).
		Msg("joined room")
	return res, nil
}

func (o *Orchestrator) Leave(ctx context.Context, room domain.RoomID, user domain.UserID) bool {
	return o.Registry.RemoveUser(ctx, room, user)
}

// Disconnect cleans up after a closed connection. Sessions that a newer connection
// took over are kept. It returns the rooms that lost a member.
func (o *Orchestrator) Disconnect(ctx context.Context, conn core.ConnID, user domain.UserID, rooms []domain.RoomID) []domain.RoomID {
	var left []domain.RoomID
	for _, room := range rooms {
		if o.Registry.RemoveOwnedBy(ctx, room, user, conn) {
			left = append(left, room)
		}
	}
	if len(left) > 0 {
		log.Info().Str("module", "orch").Str("conn", string(conn)).Str("user", string(user)).Int("rooms", len(left)).Msg("disconnect cleanup")
	}
	return left
}

// EvictRoom is the administrative teardown.
func (o *Orchestrator) EvictRoom(ctx context.Context, room domain.RoomID) []domain.Member {
	removed := o.Registry.RemoveRoom(ctx, room)
	log.Info().Str("module", "orch").Str("room", string(room)).Int("evicted", len(removed)).Msg("room evicted")
	return removed
}
