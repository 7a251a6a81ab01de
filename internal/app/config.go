package app

import (
	"strings"
	"time"

	"github.com/warungdigital/leadbot-backend/internal/platform/envutil"
)

type Config struct {
	Port string

	LockTTL      time.Duration
	LockAttempts int
	CooldownTTL  time.Duration
	DedupTTL     time.Duration

	MaxWarnings              int
	MarkProcessedAfterCommit bool

	SpreadsheetSyncMaxAttempts int
	OperatorNotifyMaxAttempts  int
	WorkerConcurrency          int

	TemplatesFile string
	AllowOrigins  []string
}

func LoadConfig() Config {
	var origins []string
	for _, o := range strings.Split(envutil.Str("CORS_ALLOW_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Port: envutil.Str("PORT", "8080"),

		LockTTL:      envutil.Seconds("LOCK_TTL_SECONDS", 10),
		LockAttempts: envutil.Int("LOCK_ATTEMPTS", 3),
		CooldownTTL:  envutil.Seconds("USER_COOLDOWN_SECONDS", 2),
		DedupTTL:     envutil.Seconds("IDEMPOTENCY_TTL_SECONDS", 86400),

		MaxWarnings:              envutil.Int("MAX_WARNINGS", 3),
		MarkProcessedAfterCommit: envutil.Bool("MARK_PROCESSED_AFTER_COMMIT", false),

		SpreadsheetSyncMaxAttempts: envutil.Int("SPREADSHEET_SYNC_MAX_ATTEMPTS", 5),
		OperatorNotifyMaxAttempts:  envutil.Int("OPERATOR_NOTIFY_MAX_ATTEMPTS", 3),
		WorkerConcurrency:          envutil.Int("WORKER_CONCURRENCY", 4),

		TemplatesFile: envutil.Str("TEMPLATES_FILE", ""),
		AllowOrigins:  origins,
	}
}
