// Package directory resolves staff user ids to display names.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrUserNotFound = errors.New("user not found")

type Resolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, `
		SELECT COALESCE(NULLIF(display_name, ''), email)
		FROM users
		WHERE id::text = $1
	`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user %s: %w", userID, err)
	}
	return name, nil
}

// Cached keeps display names in redis in front of another Resolver. A redis
// outage falls through to the backing resolver.
type Cached struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewCached(next Resolver, client *redis.Client, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{next: next, client: client, ttl: ttl, log: log}
}

func cacheKey(userID string) string {
	return "user:display_name:" + userID
}

func (c *Cached) DisplayName(ctx context.Context, userID string) (string, error) {
	key := cacheKey(userID)

	name, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return name, nil
	case !errors.Is(err, redis.Nil):
		c.log.Debug().Err(err).Str("user_id", userID).Msg("display name cache read failed")
	}

	name, err = c.next.DisplayName(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, name, c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Str("user_id", userID).Msg("display name cache write failed")
	}
	return name, nil
}
