package app

import (
	"time"

	"gorm.io/gorm"

	jobrepo "github.com/warungdigital/leadbot-backend/internal/data/repos/jobs"
	leadrepo "github.com/warungdigital/leadbot-backend/internal/data/repos/lead"
	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

type Repos struct {
	Lead        leadrepo.LeadRepo
	Interaction leadrepo.InteractionRepo
	Form        leadrepo.FormRepo
	Template    leadrepo.TemplateRepo
	JobRun      jobrepo.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger, cfg Config) Repos {
	log.Info("Wiring repos...")

	policies := jobrepo.DefaultPolicies()
	policies[types.QueueSpreadsheetSync] = jobrepo.Policy{
		MaxAttempts: cfg.SpreadsheetSyncMaxAttempts,
		BaseDelay:   1 * time.Second,
	}
	policies[types.QueueOperatorNotify] = jobrepo.Policy{
		MaxAttempts: cfg.OperatorNotifyMaxAttempts,
		BaseDelay:   500 * time.Millisecond,
	}

	return Repos{
		Lead:        leadrepo.NewLeadRepo(db, log, cfg.MaxWarnings),
		Interaction: leadrepo.NewInteractionRepo(db, log),
		Form:        leadrepo.NewFormRepo(db, log),
		Template:    leadrepo.NewTemplateRepo(db, log),
		JobRun:      jobrepo.NewJobRunRepo(db, log, policies),
	}
}
