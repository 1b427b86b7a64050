package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultOfferTimeout = 10 * time.Second

var (
	ErrOfferTimeout     = errors.New("offer timed out")
	ErrUnknownMediaKind = errors.New("unknown media kind")
)

// Orchestrator owns the join/leave/teardown policies. Every engine call goes through the Registry.
type Orchestrator struct {
	Registry     *app.Registry
	Media        *app.MediaTracker
	OfferTimeout time.Duration
}

func New(reg *app.Registry, media *app.MediaTracker, offerTimeout time.Duration) *Orchestrator {
	if offerTimeout <= 0 {
		offerTimeout = DefaultOfferTimeout
	}
	return &Orchestrator{Registry: reg, Media: media, OfferTimeout: offerTimeout}
}

// Rooms lists every room that currently has members.
func (o *Orchestrator) Rooms() []domain.RoomInfo {
	return o.Registry.Rooms()
}

func (o *Orchestrator) Roster(room domain.RoomID) []domain.Member {
	return o.Registry.ListMembers(room)
}

func (o *Orchestrator) AddCandidate(ctx context.Context, room domain.RoomID, user domain.UserID, c webrtc.ICECandidateInit) error {
	return o.Registry.AddICECandidate(ctx, room, user, c)
}

// ToggleMedia flips one flag and, for audio and video, pauses or resumes the engine flow.
// A user without a session is logged and ignored.
func (o *Orchestrator) ToggleMedia(ctx context.Context, room domain.RoomID, user domain.UserID, kind domain.MediaKind, enabled bool) error {
	if !kind.Valid() {
		return ErrUnknownMediaKind
	}
	if !o.Media.SetFlag(user, kind, enabled) {
		return nil
	}
	if err := o.Registry.SetMediaFlow(ctx, room, user, kind, enabled); err != nil {
		log.Warn().Err(err).
			Str("module", "orch").
			Str("room", string(room)).
			Str("user", string(user)).
			Str("kind", string(kind)).
			Msg("media flow toggle failed")
	}
	return nil
}
