package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kindkart/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	profileKeyPattern = "profile:%d"
	statsKeyPattern   = "stats:%d"
	leaderboardKey    = "leaderboard:donors:%d"
)

// ProfileKey caches a user's public profile.
func ProfileKey(userID uint) string {
	return fmt.Sprintf(profileKeyPattern, userID)
}

// StatsKey caches a user's activity summary.
func StatsKey(userID uint) string {
	return fmt.Sprintf(statsKeyPattern, userID)
}

// LeaderboardKey caches the top-donor list of the given size.
func LeaderboardKey(limit int) string {
	return fmt.Sprintf(leaderboardKey, limit)
}

// Aside is a JSON cache-aside store. A nil client turns every call into a
// pass-through to the loader.
type Aside struct {
	rdb *redis.Client
}

// NewAside wraps rdb.
func NewAside(rdb *redis.Client) *Aside {
	return &Aside{rdb: rdb}
}

// Fetch reads key into dest, or calls load to fill dest and stores the result with ttl.
// Cache failures are logged and never fail the call.
func (a *Aside) Fetch(ctx context.Context, key string, dest any, ttl time.Duration, load func() error) error {
	if a == nil || a.rdb == nil {
		return load()
	}

	raw, err := a.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			return nil
		}
	case !errors.Is(err, redis.Nil):
		observability.GlobalLogger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	if err := load(); err != nil {
		return err
	}

	b, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	if err := a.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

// Invalidate deletes keys, best effort.
func (a *Aside) Invalidate(ctx context.Context, keys ...string) {
	if a == nil || a.rdb == nil || len(keys) == 0 {
		return
	}
	if err := a.rdb.Del(ctx, keys...).Err(); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "cache invalidation failed", slog.String("error", err.Error()))
	}
}

// InvalidateUser drops everything cached for the given users.
func (a *Aside) InvalidateUser(ctx context.Context, userIDs ...uint) {
	keys := make([]string, 0, len(userIDs)*2)
	for _, id := range userIDs {
		keys = append(keys, ProfileKey(id), StatsKey(id))
	}
	a.Invalidate(ctx, keys...)
}
