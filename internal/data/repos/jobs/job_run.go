package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

// Policy is the retry contract of one queue.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicies carries the per-queue retry contracts. Callers may override
// attempt caps from configuration.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		types.QueueSpreadsheetSync: {MaxAttempts: 5, BaseDelay: 1 * time.Second},
		types.QueueOperatorNotify:  {MaxAttempts: 3, BaseDelay: 500 * time.Millisecond},
	}
}

type JobRunRepo interface {
	// Enqueue inserts a queued job. Called inside the handler's transaction so
	// a rollback leaves no job behind.
	Enqueue(dbc dbctx.Context, queue, jobType string, payload interface{}) (*types.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.JobRun, error)
	MarkSucceeded(dbc dbctx.Context, id uuid.UUID) error
	// MarkFailed requeues with exponential backoff until the queue's attempt
	// cap, then parks the job as terminally failed.
	MarkFailed(dbc dbctx.Context, job *types.JobRun, runErr error) error
	CountByStatus(dbc dbctx.Context, queue, status string) (int64, error)
}

type jobRunRepo struct {
	db       *gorm.DB
	log      *logger.Logger
	policies map[string]Policy
}

func NewJobRunRepo(db *gorm.DB, log *logger.Logger, policies map[string]Policy) JobRunRepo {
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	return &jobRunRepo{db: db, log: log.With("repo", "JobRunRepo"), policies: policies}
}

func (r *jobRunRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRunRepo) policy(queue string) Policy {
	if p, ok := r.policies[queue]; ok {
		return p
	}
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

func (r *jobRunRepo) Enqueue(dbc dbctx.Context, queue, jobType string, payload interface{}) (*types.JobRun, error) {
	if queue == "" || jobType == "" {
		return nil, fmt.Errorf("missing queue or job_type: %w", apperrors.ErrInvalidArgument)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	row := &types.JobRun{
		ID:        uuid.New(),
		Queue:     queue,
		JobType:   jobType,
		Payload:   datatypes.JSON(raw),
		Status:    types.JobStatusQueued,
		NextRunAt: time.Now().UTC(),
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.JobRun, error) {
	if staleRunning <= 0 {
		staleRunning = 10 * time.Minute
	}
	now := time.Now().UTC()
	staleCutoff := now.Add(-staleRunning)

	var claimed *types.JobRun
	err := r.handle(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				(status = ? AND next_run_at <= ?)
				OR (status = ? AND locked_at IS NOT NULL AND locked_at < ?)
			`, types.JobStatusQueued, now, types.JobStatusRunning, staleCutoff).
			Order("next_run_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.JobRun{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":     types.JobStatusRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.JobStatusRunning
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) MarkSucceeded(dbc dbctx.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     types.JobStatusSucceeded,
			"locked_at":  nil,
			"updated_at": now,
		}).Error
}

func (r *jobRunRepo) MarkFailed(dbc dbctx.Context, job *types.JobRun, runErr error) error {
	if job == nil {
		return fmt.Errorf("missing job: %w", apperrors.ErrInvalidArgument)
	}
	p := r.policy(job.Queue)
	now := time.Now().UTC()

	updates := map[string]interface{}{
		"last_error":    errString(runErr),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}
	if job.Attempts >= p.MaxAttempts {
		updates["status"] = types.JobStatusFailed
		r.log.Warn("job exhausted retries",
			"queue", job.Queue,
			"job_type", job.JobType,
			"job_id", job.ID,
			"attempts", job.Attempts,
		)
	} else {
		// Exponential backoff from the queue's base delay: base * 2^(attempts-1).
		shift := job.Attempts - 1
		if shift < 0 {
			shift = 0
		}
		delay := p.BaseDelay << uint(shift)
		updates["status"] = types.JobStatusQueued
		updates["next_run_at"] = now.Add(delay)
	}
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.JobRun{}).
		Where("id = ?", job.ID).
		Updates(updates).Error
}

func (r *jobRunRepo) CountByStatus(dbc dbctx.Context, queue, status string) (int64, error) {
	var n int64
	q := r.handle(dbc).WithContext(dbc.Ctx).Model(&types.JobRun{})
	if queue != "" {
		q = q.Where("queue = ?", queue)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
