// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

// Identity is what the identity collaborator returns for a valid token.
type Identity struct {
	ID              UserID `json:"id"`
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profile_image_url"`
}

// NewIdentity falls back to the user id when no nickname is known.
func NewIdentity(id UserID, nickname, profileImageURL string) (Identity, error) {
	if len(id) == 0 {
		return Identity{}, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return Identity{}, ErrUserIDTooLong
	}
	if nickname == "" {
		nickname = string(id)
	}
	return Identity{ID: id, Nickname: nickname, ProfileImageURL: profileImageURL}, nil
}
