package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

// UserLock serializes processing per user across all handler instances.
// The token fences release: only the holder that acquired the lock may delete
// it, so a lock that expired and was reacquired elsewhere stays intact.
type UserLock interface {
	Acquire(ctx context.Context, userID string, ttl time.Duration) (string, bool)
	AcquireWithRetry(ctx context.Context, userID string, maxAttempts int) (string, error)
	Release(ctx context.Context, userID, token string)
}

type userLock struct {
	rdb *goredis.Client
	log *logger.Logger
	ttl time.Duration
}

func NewUserLock(rdb *goredis.Client, log *logger.Logger, ttl time.Duration) UserLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &userLock{rdb: rdb, log: log.With("store", "UserLock"), ttl: ttl}
}

func lockKey(userID string) string { return "lock:user:" + userID }

// compare-and-delete: delete the lock only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *userLock) Acquire(ctx context.Context, userID string, ttl time.Duration) (string, bool) {
	if ttl <= 0 {
		ttl = l.ttl
	}
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, lockKey(userID), token, ttl).Result()
	if err != nil {
		// Best-effort lock under outage: proceeding unlocked is preferable to
		// dropping the message entirely.
		l.log.Warn("lock acquire failed, proceeding without lock", "error", err, "user_id", userID)
		return "", true
	}
	if !ok {
		return "", false
	}
	return token, true
}

func (l *userLock) AcquireWithRetry(ctx context.Context, userID string, maxAttempts int) (string, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var token string
	err := retry.Do(
		func() error {
			t, ok := l.Acquire(ctx, userID, l.ttl)
			if !ok {
				return fmt.Errorf("lock held for user")
			}
			token = t
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * 100 * time.Millisecond
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("user %s: %w", userID, apperrors.ErrLockFailed)
	}
	return token, nil
}

func (l *userLock) Release(ctx context.Context, userID, token string) {
	if token == "" {
		return
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{lockKey(userID)}, token).Err(); err != nil && err != goredis.Nil {
		l.log.Warn("lock release failed", "error", err, "user_id", userID)
	}
}
