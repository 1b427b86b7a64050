package app

import (
	"context"

	"github.com/dkeye/voicegate/internal/domain"
)

// Presence mirrors room membership outside the process. Implementations log their
// own failures; membership changes never fail because of the mirror.
type Presence interface {
	Joined(ctx context.Context, room domain.RoomID, user domain.UserID)
	Left(ctx context.Context, room domain.RoomID, user domain.UserID)
	Cleared(ctx context.Context, room domain.RoomID)
}

type NoopPresence struct{}

func (NoopPresence) Joined(context.Context, domain.RoomID, domain.UserID) {}
func (NoopPresence) Left(context.Context, domain.RoomID, domain.UserID)   {}
func (NoopPresence) Cleared(context.Context, domain.RoomID)               {}
