package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	jobrepo "github.com/warungdigital/leadbot-backend/internal/data/repos/jobs"
	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

// Worker polls the job_runs outbox and dispatches claimed jobs to registered
// handlers. Claims use row locks with SKIP LOCKED, so any number of worker
// goroutines (or processes) can poll the same table safely.
type Worker struct {
	log          *logger.Logger
	repo         jobrepo.JobRunRepo
	registry     *Registry
	concurrency  int
	pollInterval time.Duration
	staleRunning time.Duration
}

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	StaleRunning time.Duration
}

func NewWorker(baseLog *logger.Logger, repo jobrepo.JobRunRepo, registry *Registry, cfg WorkerConfig) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.StaleRunning <= 0 {
		cfg.StaleRunning = 2 * time.Minute
	}
	return &Worker{
		log:          baseLog.With("component", "JobWorker"),
		repo:         repo,
		registry:     registry,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		staleRunning: cfg.StaleRunning,
	}
}

// Start launches the worker pool and returns. The pool drains when ctx is
// cancelled; Wait on the returned group to block until shutdown completes.
func (w *Worker) Start(ctx context.Context) *errgroup.Group {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	return g
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain everything runnable before sleeping again.
			for {
				job, err := w.repo.ClaimNextRunnable(dbctx.New(ctx), w.staleRunning)
				if err != nil {
					w.log.Warn("claim failed", "error", err)
					break
				}
				if job == nil {
					break
				}
				w.runOne(ctx, job)
			}
		}
	}
}

func (w *Worker) runOne(ctx context.Context, job *types.JobRun) {
	log := w.log.With("job_id", job.ID, "queue", job.Queue, "job_type", job.JobType, "attempt", job.Attempts)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("no handler registered")
		if err := w.repo.MarkFailed(dbctx.New(ctx), job, fmt.Errorf("no handler registered for job_type=%s", job.JobType)); err != nil {
			log.Error("mark failed errored", "error", err)
		}
		return
	}

	runErr := w.runRecovered(ctx, h, job, log)
	if runErr != nil {
		log.Warn("job failed", "error", runErr)
		if err := w.repo.MarkFailed(dbctx.New(ctx), job, runErr); err != nil {
			log.Error("mark failed errored", "error", err)
		}
		return
	}
	if err := w.repo.MarkSucceeded(dbctx.New(ctx), job.ID); err != nil {
		log.Error("mark succeeded errored", "error", err)
		return
	}
	log.Info("job succeeded")
}

func (w *Worker) runRecovered(ctx context.Context, h Handler, job *types.JobRun, log *logger.Logger) (runErr error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job handler panic", "panic", r)
			runErr = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Run(ctx, job)
}
