// Package guild is the client of the guild CRUD service.
package guild

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/rs/zerolog/log"
)

type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(baseURL, serviceToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: serviceToken,
		http:  &http.Client{Timeout: timeout},
	}
}

// FindMembership asks GET /guilds/{guildId}/members/{userId}. The body is either the
// membership itself or wrapped as {"result": {...}}.
func (c *Client) FindMembership(ctx context.Context, userID domain.UserID, guildID domain.GuildID) (core.Membership, error) {
	u := fmt.Sprintf("%s/guilds/%s/members/%s", c.base, url.PathEscape(string(guildID)), url.PathEscape(string(userID)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return core.Membership{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.Membership{}, fmt.Errorf("guild service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return core.Membership{}, fmt.Errorf("%w: user %s guild %s", core.ErrMembershipNotFound, userID, guildID)
	case resp.StatusCode != http.StatusOK:
		return core.Membership{}, fmt.Errorf("guild service: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		core.Membership
		Result *core.Membership `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return core.Membership{}, fmt.Errorf("guild service: decode: %w", err)
	}
	m := body.Membership
	if body.Result != nil {
		m = *body.Result
	}
	if m.UserID == "" {
		m.UserID = userID
	}
	if m.GuildID == "" {
		m.GuildID = guildID
	}
	log.Debug().Str("module", "guild").Str("user", string(userID)).Str("guild", string(guildID)).Str("role", m.Role).Msg("membership found")
	return m, nil
}
