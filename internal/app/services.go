package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	redisstore "github.com/warungdigital/leadbot-backend/internal/clients/redis"
	"github.com/warungdigital/leadbot-backend/internal/clients/sheets"
	"github.com/warungdigital/leadbot-backend/internal/clients/telegram"
	"github.com/warungdigital/leadbot-backend/internal/clients/waha"
	"github.com/warungdigital/leadbot-backend/internal/jobs"
	jobhandlers "github.com/warungdigital/leadbot-backend/internal/jobs/handlers"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/services"
)

type Services struct {
	Templates services.TemplateService
	Dispatch  services.DispatchService
	Inbound   services.InboundService

	WAHA     waha.Client
	Telegram telegram.Client
	Sheets   sheets.Client

	JobWorker *jobs.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos) (Services, error) {
	log.Info("Wiring services...")

	rdb, err := redisstore.NewClient(log)
	if err != nil {
		return Services{}, fmt.Errorf("init redis: %w", err)
	}
	dedup := redisstore.NewDedupStore(rdb, log, cfg.DedupTTL)
	lock := redisstore.NewUserLock(rdb, log, cfg.LockTTL)
	cooldown := redisstore.NewCooldownStore(rdb, log, cfg.CooldownTTL)

	templates, err := services.NewTemplateService(repos.Template, log, cfg.TemplatesFile)
	if err != nil {
		return Services{}, fmt.Errorf("init templates: %w", err)
	}
	dispatch := services.NewDispatchService(repos.JobRun, log)

	inbound := services.NewInboundService(
		services.GormTxRunner(db), log,
		repos.Lead, repos.Interaction, repos.Form,
		dispatch, templates,
		dedup, lock, cooldown,
		services.InboundConfig{
			MarkProcessedAfterCommit: cfg.MarkProcessedAfterCommit,
			LockAttempts:             cfg.LockAttempts,
		},
	)

	svc := Services{
		Templates: templates,
		Dispatch:  dispatch,
		Inbound:   inbound,
	}

	// Outbound clients are optional: a missing integration disables its
	// feature but never blocks inbound processing.
	if c, err := waha.NewFromEnv(log); err != nil {
		log.Warn("WhatsApp sender disabled", "error", err)
	} else {
		svc.WAHA = c
	}
	if c, err := telegram.NewFromEnv(log); err != nil {
		log.Warn("Telegram client disabled", "error", err)
	} else {
		svc.Telegram = c
	}
	if c, err := sheets.NewFromEnv(context.Background(), log); err != nil {
		log.Warn("Sheets client disabled", "error", err)
	} else {
		svc.Sheets = c
	}

	registry := jobs.NewRegistry()
	if svc.Sheets != nil {
		if err := registry.Register(jobhandlers.NewSpreadsheetSync(svc.Sheets, log)); err != nil {
			return Services{}, err
		}
	}
	if svc.Telegram != nil {
		if err := registry.Register(jobhandlers.NewOperatorNotify(svc.Telegram, log)); err != nil {
			return Services{}, err
		}
	}
	svc.JobWorker = jobs.NewWorker(log, repos.JobRun, registry, jobs.WorkerConfig{
		Concurrency: cfg.WorkerConcurrency,
	})

	return svc, nil
}
