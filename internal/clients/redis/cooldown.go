package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

// CooldownStore keeps the bot quiet for a short interval after it replied to
// a user. Messages arriving inside the window are still logged, just not
// answered.
type CooldownStore interface {
	InCooldown(ctx context.Context, userID string) bool
	SetCooldown(ctx context.Context, userID string)
}

type cooldownStore struct {
	rdb *goredis.Client
	log *logger.Logger
	ttl time.Duration
}

func NewCooldownStore(rdb *goredis.Client, log *logger.Logger, ttl time.Duration) CooldownStore {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &cooldownStore{rdb: rdb, log: log.With("store", "CooldownStore"), ttl: ttl}
}

func cooldownKey(userID string) string { return "cooldown:user:" + userID }

func (s *cooldownStore) InCooldown(ctx context.Context, userID string) bool {
	n, err := s.rdb.Exists(ctx, cooldownKey(userID)).Result()
	if err != nil {
		s.log.Warn("cooldown lookup failed, skipping cooldown", "error", err)
		return false
	}
	return n > 0
}

func (s *cooldownStore) SetCooldown(ctx context.Context, userID string) {
	if err := s.rdb.Set(ctx, cooldownKey(userID), "1", s.ttl).Err(); err != nil {
		s.log.Warn("cooldown set failed", "error", err, "user_id", userID)
	}
}
