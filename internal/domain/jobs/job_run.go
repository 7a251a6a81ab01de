package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const (
	QueueSpreadsheetSync = "spreadsheet-sync"
	QueueOperatorNotify  = "operator-notify"
)

// JobRun is a transactional-outbox row: enqueued inside the same database
// transaction as the lead mutations it belongs to, so a rollback makes the
// job invisible to workers.
type JobRun struct {
	ID       uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Queue    string         `gorm:"column:queue;not null;index" json:"queue"`
	JobType  string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Payload  datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Status   string         `gorm:"column:status;not null;index" json:"status"`
	Attempts int            `gorm:"column:attempts;not null;default:0" json:"attempts"`

	NextRunAt   time.Time  `gorm:"column:next_run_at;not null;default:now();index" json:"next_run_at"`
	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	LastError   string     `gorm:"column:last_error;not null;default:''" json:"last_error,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_runs" }
