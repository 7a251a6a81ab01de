package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	jobrepo "github.com/warungdigital/leadbot-backend/internal/data/repos/jobs"
	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

// JobsHandler exposes outbox depth for operators and probes.
type JobsHandler struct {
	log  *logger.Logger
	jobs jobrepo.JobRunRepo
}

func NewJobsHandler(log *logger.Logger, jobs jobrepo.JobRunRepo) *JobsHandler {
	return &JobsHandler{log: log.With("handler", "JobsHandler"), jobs: jobs}
}

func (h *JobsHandler) Stats(c *gin.Context) {
	dbc := dbctx.New(c.Request.Context())
	out := map[string]map[string]int64{}
	for _, queue := range []string{types.QueueSpreadsheetSync, types.QueueOperatorNotify} {
		out[queue] = map[string]int64{}
		for _, status := range []string{
			types.JobStatusQueued,
			types.JobStatusRunning,
			types.JobStatusSucceeded,
			types.JobStatusFailed,
		} {
			n, err := h.jobs.CountByStatus(dbc, queue, status)
			if err != nil {
				RespondError(c, http.StatusInternalServerError, "jobs_stats_failed", err)
				return
			}
			out[queue][status] = n
		}
	}
	RespondOK(c, gin.H{"queues": out})
}
