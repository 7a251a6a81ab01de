package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

// DedupStore remembers processed (transport, message_id) pairs for the dedup
// window. Availability beats exactness here: a redis outage degrades to
// "never seen", so under outage we risk a rare duplicate rather than stall
// all inbound traffic.
type DedupStore interface {
	Seen(ctx context.Context, transport, messageID string) bool
	Mark(ctx context.Context, transport, messageID string)
	// Unmark forgets a mark so the transport may redeliver, used when
	// processing could not even start (e.g. the user lock was never won).
	Unmark(ctx context.Context, transport, messageID string)
}

type dedupStore struct {
	rdb *goredis.Client
	log *logger.Logger
	ttl time.Duration
}

func NewDedupStore(rdb *goredis.Client, log *logger.Logger, ttl time.Duration) DedupStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &dedupStore{rdb: rdb, log: log.With("store", "DedupStore"), ttl: ttl}
}

func dedupKey(transport, messageID string) string {
	return fmt.Sprintf("processed:%s:%s", transport, messageID)
}

func (s *dedupStore) Seen(ctx context.Context, transport, messageID string) bool {
	n, err := s.rdb.Exists(ctx, dedupKey(transport, messageID)).Result()
	if err != nil {
		s.log.Warn("dedup lookup failed, treating as unseen", "error", err)
		return false
	}
	return n > 0
}

func (s *dedupStore) Mark(ctx context.Context, transport, messageID string) {
	if err := s.rdb.Set(ctx, dedupKey(transport, messageID), "1", s.ttl).Err(); err != nil {
		s.log.Warn("dedup mark failed", "error", err, "message_id", messageID)
	}
}

func (s *dedupStore) Unmark(ctx context.Context, transport, messageID string) {
	if err := s.rdb.Del(ctx, dedupKey(transport, messageID)).Err(); err != nil {
		s.log.Warn("dedup unmark failed", "error", err, "message_id", messageID)
	}
}
