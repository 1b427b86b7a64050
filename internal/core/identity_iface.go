package core

import (
	"context"
	"errors"

	"github.com/dkeye/voicegate/internal/domain"
)

//go:generate mockgen -destination=mock/mock_identity.go -package=mock github.com/dkeye/voicegate/internal/core IdentityValidator,MembershipFinder

var (
	// ErrAuth wraps every token rejection. Validation fails closed.
	ErrAuth = errors.New("authentication failed")

	ErrMembershipNotFound = errors.New("membership not found")
)

type IdentityValidator interface {
	Validate(ctx context.Context, token string) (domain.Identity, error)
}

type Membership struct {
	UserID  domain.UserID  `json:"userId"`
	GuildID domain.GuildID `json:"guildId"`
	Role    string         `json:"role"`
}

// MembershipFinder is the guild CRUD service as seen from signaling.
type MembershipFinder interface {
	FindMembership(ctx context.Context, userID domain.UserID, guildID domain.GuildID) (Membership, error)
}
