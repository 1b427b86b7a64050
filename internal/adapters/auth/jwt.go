// Package auth validates the identity tokens issued by the platform's auth service.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSecret = errors.New("jwt secret is empty")

// Claims carries the member id under "mid".
type Claims struct {
	MemberID        string `json:"mid"`
	Nickname        string `json:"nickname,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret string
	// SecretBase64 decodes Secret before use.
	SecretBase64 bool
	Issuer       string
	Leeway       time.Duration
}

type JWTValidator struct {
	key    []byte
	issuer string
	parser *jwt.Parser
}

func NewJWTValidator(opts Options) (*JWTValidator, error) {
	if opts.Secret == "" {
		return nil, ErrNoSecret
	}
	key := []byte(opts.Secret)
	if opts.SecretBase64 {
		var err error
		if key, err = base64.StdEncoding.DecodeString(opts.Secret); err != nil {
			return nil, fmt.Errorf("decode jwt secret: %w", err)
		}
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	return &JWTValidator{key: key, issuer: opts.Issuer, parser: jwt.NewParser(parserOpts...)}, nil
}

// Validate fails closed: every rejection wraps core.ErrAuth.
func (v *JWTValidator) Validate(_ context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", core.ErrAuth, err)
	}
	ident, err := domain.NewIdentity(domain.UserID(claims.MemberID), claims.Nickname, claims.ProfileImageURL)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: claim mid: %v", core.ErrAuth, err)
	}
	return ident, nil
}

// Issue signs an HS256 token for ident. Used by the dev token command and tests.
func (v *JWTValidator) Issue(ident domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		MemberID:        string(ident.ID),
		Nickname:        ident.Nickname,
		ProfileImageURL: ident.ProfileImageURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
}
