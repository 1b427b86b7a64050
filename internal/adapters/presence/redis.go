// Package presence mirrors room membership into Redis so other services can see who is
// in a voice channel without talking to the signaling tier.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/voicegate/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const opTimeout = 2 * time.Second

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, opts Options) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return New(client, opts.TTL, opts.Prefix), nil
}

func New(client *redis.Client, ttl time.Duration, prefix string) *RedisPresence {
	if prefix == "" {
		prefix = "voicegate"
	}
	return &RedisPresence{client: client, ttl: ttl, prefix: prefix}
}

func (p *RedisPresence) key(room domain.RoomID) string {
	return p.prefix + ":room:" + string(room) + ":members"
}

func (p *RedisPresence) Joined(ctx context.Context, room domain.RoomID, user domain.UserID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	key := p.key(room)
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, string(user))
		if p.ttl > 0 {
			pipe.Expire(ctx, key, p.ttl)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "presence").Str("room", string(room)).Str("user", string(user)).Msg("mirror join failed")
	}
}

func (p *RedisPresence) Left(ctx context.Context, room domain.RoomID, user domain.UserID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()
	if err := p.client.SRem(ctx, p.key(room), string(user)).Err(); err != nil {
		log.Warn().Err(err).Str("module", "presence").Str("room", string(room)).Str("user", string(user)).Msg("mirror leave failed")
	}
}

func (p *RedisPresence) Cleared(ctx context.Context, room domain.RoomID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()
	if err := p.client.Del(ctx, p.key(room)).Err(); err != nil {
		log.Warn().Err(err).Str("module", "presence").Str("room", string(room)).Msg("mirror clear failed")
	}
}

// Members reads the mirrored member set of a room.
func (p *RedisPresence) Members(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	ids, err := p.client.SMembers(ctx, p.key(room)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out, nil
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}
