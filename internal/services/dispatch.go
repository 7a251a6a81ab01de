package services

import (
	"time"

	jobrepo "github.com/warungdigital/leadbot-backend/internal/data/repos/jobs"
	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/form"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

// Job types the worker routes on.
const (
	JobTypeSpreadsheetSync = "spreadsheet_sync"
	JobTypeOperatorNotify  = "operator_notify"
)

// Operator notification kinds.
const (
	NotifyEscalation          = "escalation"
	NotifyNewLead             = "new_lead"
	NotifyFormCompleted       = "form_completed"
	NotifyPartnershipInterest = "partnership_interest"
	NotifyOtherNeeds          = "other_needs"
	NotifyGeneralInquiry      = "general_inquiry"
)

// SpreadsheetSyncPayload is the outbox payload for exporting a completed
// qualification form.
type SpreadsheetSyncPayload struct {
	LeadID       string `json:"lead_id"`
	UserID       string `json:"user_id"`
	PushName     string `json:"push_name,omitempty"`
	Transport    string `json:"transport"`
	Biodata      string `json:"biodata"`
	SourceInfo   string `json:"source_info"`
	BusinessType string `json:"business_type"`
	Budget       string `json:"budget"`
	StartPlan    string `json:"start_plan"`
	CompletedAt  string `json:"completed_at"`
}

// OperatorNotifyPayload is the outbox payload for an operator alert.
type OperatorNotifyPayload struct {
	Kind         string `json:"kind"`
	UserID       string `json:"user_id"`
	PushName     string `json:"push_name,omitempty"`
	Transport    string `json:"transport"`
	LastMessage  string `json:"last_message,omitempty"`
	CurrentState string `json:"current_state,omitempty"`
	WarningCount int    `json:"warning_count,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// DispatchService enqueues follow-up work as outbox rows. Callers pass their
// open transaction so an aborted handler leaves no orphan jobs.
type DispatchService interface {
	EnqueueSpreadsheetSync(dbc dbctx.Context, ld *types.Lead, merged form.Fragment) error
	EnqueueOperatorNotify(dbc dbctx.Context, p OperatorNotifyPayload) error
}

type dispatchService struct {
	jobs jobrepo.JobRunRepo
	log  *logger.Logger
}

func NewDispatchService(jobs jobrepo.JobRunRepo, log *logger.Logger) DispatchService {
	return &dispatchService{jobs: jobs, log: log.With("service", "DispatchService")}
}

func (s *dispatchService) EnqueueSpreadsheetSync(dbc dbctx.Context, ld *types.Lead, merged form.Fragment) error {
	payload := SpreadsheetSyncPayload{
		LeadID:       ld.ID.String(),
		UserID:       ld.PrimaryID,
		PushName:     ld.PushName,
		Transport:    ld.Transport,
		Biodata:      merged.Biodata,
		SourceInfo:   merged.SourceInfo,
		BusinessType: merged.BusinessType,
		Budget:       merged.Budget,
		StartPlan:    merged.StartPlan,
		CompletedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	_, err := s.jobs.Enqueue(dbc, types.QueueSpreadsheetSync, JobTypeSpreadsheetSync, payload)
	if err != nil {
		return err
	}
	s.log.Info("enqueued spreadsheet sync", "lead_id", ld.ID, "user_id", ld.PrimaryID)
	return nil
}

func (s *dispatchService) EnqueueOperatorNotify(dbc dbctx.Context, p OperatorNotifyPayload) error {
	if p.Timestamp == "" {
		p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.jobs.Enqueue(dbc, types.QueueOperatorNotify, JobTypeOperatorNotify, p)
	if err != nil {
		return err
	}
	s.log.Info("enqueued operator notification", "kind", p.Kind, "user_id", p.UserID)
	return nil
}
