package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/warungdigital/leadbot-backend/internal/clients/sheets"
	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/services"
)

// SpreadsheetSync exports a completed qualification form as one spreadsheet
// row. Append-only: a retried job may produce a duplicate row, which the
// sales sheet tolerates.
type SpreadsheetSync struct {
	sheets sheets.Client
	log    *logger.Logger
}

func NewSpreadsheetSync(sheetsClient sheets.Client, log *logger.Logger) *SpreadsheetSync {
	return &SpreadsheetSync{
		sheets: sheetsClient,
		log:    log.With("handler", "SpreadsheetSync"),
	}
}

func (h *SpreadsheetSync) Type() string { return services.JobTypeSpreadsheetSync }

func (h *SpreadsheetSync) Run(ctx context.Context, job *types.JobRun) error {
	var p services.SpreadsheetSyncPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode spreadsheet payload: %w", err)
	}

	row := []interface{}{
		p.CompletedAt,
		p.Transport,
		p.UserID,
		p.PushName,
		p.Biodata,
		p.SourceInfo,
		p.BusinessType,
		p.Budget,
		p.StartPlan,
		p.LeadID,
	}
	if err := h.sheets.AppendRow(ctx, row); err != nil {
		return err
	}
	h.log.Info("synced lead to spreadsheet", "lead_id", p.LeadID)
	return nil
}
