package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	redisstore "github.com/warungdigital/leadbot-backend/internal/clients/redis"
	leadrepo "github.com/warungdigital/leadbot-backend/internal/data/repos/lead"
	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/form"
	"github.com/warungdigital/leadbot-backend/internal/identity"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/statemachine"
)

// Result types reported back to the webhook layer.
const (
	ResultReplied    = "replied"
	ResultNoReply    = "no_reply"
	ResultDuplicate  = "duplicate"
	ResultOwnMessage = "own_message"
	ResultCooldown   = "cooldown"
	ResultLockFailed = "lock_failed"
	ResultError      = "error"
)

// Escalation reasons recorded on operator notifications.
const (
	ReasonMaxWarnings         = "max_warnings"
	ReasonPostFormContact     = "post_form_contact"
	ReasonPartnershipFollowup = "partnership_followup"
)

// HandleResult tells the webhook layer what to send, if anything. The core
// never talks to the transport directly.
type HandleResult struct {
	Success       bool
	ShouldReply   bool
	ReplyText     string
	SecondaryText string
	Type          string
}

// InboundConfig tunes the pipeline's guards.
type InboundConfig struct {
	// MarkProcessedAfterCommit defers the idempotency mark until the
	// transaction committed. The default (false) marks up front: a crash
	// mid-processing then loses the message to the dedup window, but a
	// redelivered duplicate can never double-reply.
	MarkProcessedAfterCommit bool
	LockAttempts             int
}

// TxRunner runs fn inside one atomic region. The gorm-backed runner is the
// production one; tests substitute a pass-through.
type TxRunner func(ctx context.Context, fn func(dbc dbctx.Context) error) error

// GormTxRunner wraps a gorm handle as a TxRunner.
func GormTxRunner(db *gorm.DB) TxRunner {
	return func(ctx context.Context, fn func(dbc dbctx.Context) error) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.WithTx(ctx, tx))
		})
	}
}

// InboundService runs the full inbound pipeline: idempotency, cooldown,
// per-user mutex, then a single transaction covering lead resolution,
// interaction logging, state dispatch and outbox enqueues.
type InboundService interface {
	Handle(ctx context.Context, msg identity.InboundMessage) (HandleResult, error)
}

type inboundService struct {
	tx           TxRunner
	log          *logger.Logger
	leads        leadrepo.LeadRepo
	interactions leadrepo.InteractionRepo
	forms        leadrepo.FormRepo
	dispatch     DispatchService
	templates    TemplateService
	dedup        redisstore.DedupStore
	lock         redisstore.UserLock
	cooldown     redisstore.CooldownStore
	cfg          InboundConfig
}

func NewInboundService(
	tx TxRunner,
	log *logger.Logger,
	leads leadrepo.LeadRepo,
	interactions leadrepo.InteractionRepo,
	forms leadrepo.FormRepo,
	dispatch DispatchService,
	templates TemplateService,
	dedup redisstore.DedupStore,
	lock redisstore.UserLock,
	cooldown redisstore.CooldownStore,
	cfg InboundConfig,
) InboundService {
	if cfg.LockAttempts < 1 {
		cfg.LockAttempts = 3
	}
	return &inboundService{
		tx:           tx,
		log:          log.With("service", "InboundService"),
		leads:        leads,
		interactions: interactions,
		forms:        forms,
		dispatch:     dispatch,
		templates:    templates,
		dedup:        dedup,
		lock:         lock,
		cooldown:     cooldown,
		cfg:          cfg,
	}
}

func (s *inboundService) Handle(ctx context.Context, msg identity.InboundMessage) (HandleResult, error) {
	log := s.log.With(
		"transport", msg.Transport,
		"user_id", msg.UserID,
		"message_id", msg.MessageID,
	)

	if s.dedup.Seen(ctx, msg.Transport, msg.MessageID) {
		log.Info("duplicate message, skipping")
		return HandleResult{Success: true, Type: ResultDuplicate}, nil
	}
	if !s.cfg.MarkProcessedAfterCommit {
		s.dedup.Mark(ctx, msg.Transport, msg.MessageID)
	}

	if msg.FromMe {
		return s.handleOwnMessage(ctx, msg, log)
	}

	if s.cooldown.InCooldown(ctx, msg.UserID) {
		return s.handleCooldown(ctx, msg, log)
	}

	token, err := s.lock.AcquireWithRetry(ctx, msg.UserID, s.cfg.LockAttempts)
	if err != nil {
		// Give the mark back so the transport's retry gets a clean run.
		if !s.cfg.MarkProcessedAfterCommit {
			s.dedup.Unmark(ctx, msg.Transport, msg.MessageID)
		}
		log.Warn("could not win user lock", "error", err)
		return HandleResult{Success: false, Type: ResultLockFailed}, err
	}
	defer s.lock.Release(ctx, msg.UserID, token)

	log.Info("processing inbound message", "intent", identity.DetectIntent(msg.Text))

	var res HandleResult
	err = s.tx(ctx, func(dbc dbctx.Context) error {
		ld, err := s.resolveLead(dbc, msg)
		if err != nil {
			return err
		}

		if _, err := s.interactions.Add(dbc, ld.ID, msg.MessageID, msg.Text, types.DirectionIn); err != nil {
			return err
		}

		state, err := statemachine.ParseState(ld.State)
		if err != nil {
			return err
		}

		res, err = s.dispatchState(dbc, ld, state, msg)
		return err
	})
	if err != nil {
		log.Error("inbound transaction failed", "error", err)
		return HandleResult{Success: false, Type: ResultError}, err
	}

	if s.cfg.MarkProcessedAfterCommit {
		s.dedup.Mark(ctx, msg.Transport, msg.MessageID)
	}
	if res.ShouldReply && res.ReplyText != "" {
		s.cooldown.SetCooldown(ctx, msg.UserID)
	}
	return res, nil
}

// handleOwnMessage records an outbound interaction for a message the business
// itself sent (echoed back by the transport) and flags the lead as already
// contacted so a later greeting does not trigger the welcome menu.
func (s *inboundService) handleOwnMessage(ctx context.Context, msg identity.InboundMessage, log *logger.Logger) (HandleResult, error) {
	err := s.tx(ctx, func(dbc dbctx.Context) error {
		ld, err := s.leads.MarkExisting(dbc, msg.UserID, msg.Transport)
		if err != nil {
			return err
		}
		if strings.TrimSpace(msg.Text) != "" {
			if _, err := s.interactions.Add(dbc, ld.ID, msg.MessageID, msg.Text, types.DirectionOut); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("own-message bookkeeping failed", "error", err)
		return HandleResult{Success: false, Type: ResultError}, err
	}
	if s.cfg.MarkProcessedAfterCommit {
		s.dedup.Mark(ctx, msg.Transport, msg.MessageID)
	}
	return HandleResult{Success: true, Type: ResultOwnMessage}, nil
}

// handleCooldown logs the interaction without replying so rapid-fire messages
// right after a bot reply are kept in history but not answered.
func (s *inboundService) handleCooldown(ctx context.Context, msg identity.InboundMessage, log *logger.Logger) (HandleResult, error) {
	err := s.tx(ctx, func(dbc dbctx.Context) error {
		ld, err := s.resolveLead(dbc, msg)
		if err != nil {
			return err
		}
		_, err = s.interactions.Add(dbc, ld.ID, msg.MessageID, msg.Text, types.DirectionIn)
		return err
	})
	if err != nil {
		log.Error("cooldown bookkeeping failed", "error", err)
		return HandleResult{Success: false, Type: ResultError}, err
	}
	if s.cfg.MarkProcessedAfterCommit {
		s.dedup.Mark(ctx, msg.Transport, msg.MessageID)
	}
	log.Info("user in cooldown, logged without reply")
	return HandleResult{Success: true, Type: ResultCooldown}, nil
}

// resolveLead reconciles identities first, then finds or creates the lead.
// Reconciling before creation matters: when only an alt-keyed lead exists it
// must be migrated, not shadowed by a fresh row.
func (s *inboundService) resolveLead(dbc dbctx.Context, msg identity.InboundMessage) (*types.Lead, error) {
	if msg.Metadata.AltID != "" {
		if _, err := s.leads.ResolveIdentity(dbc, msg.UserID, msg.Metadata.AltID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}
	ld, created, err := s.leads.GetOrCreate(dbc, msg.UserID, msg.Transport, leadrepo.CreateOptions{
		PushName: msg.Metadata.PushName,
		AltID:    msg.Metadata.AltID,
	})
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.dispatch.EnqueueOperatorNotify(dbc, OperatorNotifyPayload{
			Kind:      NotifyNewLead,
			UserID:    ld.PrimaryID,
			PushName:  ld.PushName,
			Transport: ld.Transport,
		}); err != nil {
			return nil, err
		}
	}
	return ld, nil
}

func (s *inboundService) dispatchState(dbc dbctx.Context, ld *types.Lead, state statemachine.State, msg identity.InboundMessage) (HandleResult, error) {
	switch state {
	case statemachine.StateNew:
		return s.onNew(dbc, ld)
	case statemachine.StateChooseOption:
		return s.onChooseOption(dbc, ld, msg)
	case statemachine.StateFormSent, statemachine.StateFormInProgress:
		return s.onFormContent(dbc, ld, state, msg)
	case statemachine.StateFormCompleted:
		return s.onTerminalContact(dbc, ld, msg, ReasonPostFormContact)
	case statemachine.StatePartnership:
		return s.onTerminalContact(dbc, ld, msg, ReasonPartnershipFollowup)
	}
	// EXISTING and MANUAL_INTERVENTION: keep history, stay silent.
	return HandleResult{Success: true, Type: ResultNoReply}, nil
}

func (s *inboundService) onNew(dbc dbctx.Context, ld *types.Lead) (HandleResult, error) {
	if _, err := s.leads.UpdateState(dbc, ld.ID, statemachine.StateChooseOption); err != nil {
		return HandleResult{}, err
	}
	return HandleResult{
		Success:     true,
		ShouldReply: true,
		ReplyText:   s.templates.Get(dbc.Ctx, TemplateWelcome),
		Type:        ResultReplied,
	}, nil
}

func (s *inboundService) onChooseOption(dbc dbctx.Context, ld *types.Lead, msg identity.InboundMessage) (HandleResult, error) {
	switch strings.TrimSpace(msg.Text) {
	case "1":
		if _, err := s.leads.UpdateState(dbc, ld.ID, statemachine.StateFormSent); err != nil {
			return HandleResult{}, err
		}
		return HandleResult{
			Success:       true,
			ShouldReply:   true,
			ReplyText:     s.templates.Get(dbc.Ctx, TemplateChooseOptionAck),
			SecondaryText: s.templates.Get(dbc.Ctx, TemplateFormTemplate),
			Type:          ResultReplied,
		}, nil

	case "2":
		if _, err := s.leads.UpdateState(dbc, ld.ID, statemachine.StateManualIntervention); err != nil {
			return HandleResult{}, err
		}
		if err := s.dispatch.EnqueueOperatorNotify(dbc, OperatorNotifyPayload{
			Kind:      NotifyPartnershipInterest,
			UserID:    ld.PrimaryID,
			PushName:  ld.PushName,
			Transport: ld.Transport,
		}); err != nil {
			return HandleResult{}, err
		}
		return HandleResult{
			Success:     true,
			ShouldReply: true,
			ReplyText:   s.templates.Get(dbc.Ctx, TemplatePartnershipAck),
			Type:        ResultReplied,
		}, nil

	case "3":
		if _, err := s.leads.UpdateState(dbc, ld.ID, statemachine.StateManualIntervention); err != nil {
			return HandleResult{}, err
		}
		if err := s.dispatch.EnqueueOperatorNotify(dbc, OperatorNotifyPayload{
			Kind:        NotifyOtherNeeds,
			UserID:      ld.PrimaryID,
			PushName:    ld.PushName,
			Transport:   ld.Transport,
			LastMessage: msg.Text,
		}); err != nil {
			return HandleResult{}, err
		}
		return HandleResult{
			Success:     true,
			ShouldReply: true,
			ReplyText:   s.templates.Get(dbc.Ctx, TemplateOtherNeedsAck),
			Type:        ResultReplied,
		}, nil
	}

	return s.warnOrEscalate(dbc, ld, msg, s.templates.Get(dbc.Ctx, TemplateInvalidOption))
}

func (s *inboundService) onFormContent(dbc dbctx.Context, ld *types.Lead, state statemachine.State, msg identity.InboundMessage) (HandleResult, error) {
	if state == statemachine.StateFormSent {
		if _, err := s.leads.UpdateState(dbc, ld.ID, statemachine.StateFormInProgress); err != nil {
			return HandleResult{}, err
		}
	}

	existing, err := s.forms.Get(dbc, ld.ID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return HandleResult{}, err
	}

	partial := form.Parse(msg.Text)
	vr := form.Validate(partial, leadrepo.FragmentOf(existing))

	if !partial.IsEmpty() {
		if _, err := s.forms.Upsert(dbc, ld.ID, partial); err != nil {
			return HandleResult{}, err
		}
	}

	if vr.Valid {
		if err := s.forms.MarkCompleted(dbc, ld.ID); err != nil {
			return HandleResult{}, err
		}
		if _, err := s.leads.UpdateState(dbc, ld.ID, statemachine.StateFormCompleted); err != nil {
			return HandleResult{}, err
		}
		if err := s.leads.ResetWarning(dbc, ld.ID); err != nil {
			return HandleResult{}, err
		}
		if err := s.dispatch.EnqueueSpreadsheetSync(dbc, ld, vr.Merged); err != nil {
			return HandleResult{}, err
		}
		if err := s.dispatch.EnqueueOperatorNotify(dbc, OperatorNotifyPayload{
			Kind:      NotifyFormCompleted,
			UserID:    ld.PrimaryID,
			PushName:  ld.PushName,
			Transport: ld.Transport,
		}); err != nil {
			return HandleResult{}, err
		}
		return HandleResult{
			Success:     true,
			ShouldReply: true,
			ReplyText:   s.templates.Get(dbc.Ctx, TemplateFormReceived),
			Type:        ResultReplied,
		}, nil
	}

	return s.warnOrEscalate(dbc, ld, msg, form.ExplainMissing(vr.Missing))
}

// onTerminalContact handles a user who writes again after the funnel closed
// for them: escalate to an operator and acknowledge without re-entering the
// funnel.
func (s *inboundService) onTerminalContact(dbc dbctx.Context, ld *types.Lead, msg identity.InboundMessage, reason string) (HandleResult, error) {
	if err := s.escalate(dbc, ld, msg, reason); err != nil {
		return HandleResult{}, err
	}
	return HandleResult{
		Success:     true,
		ShouldReply: true,
		ReplyText:   s.templates.Get(dbc.Ctx, TemplateQuestionReceived),
		Type:        ResultReplied,
	}, nil
}

// warnOrEscalate bumps the warning counter; under the threshold the caller's
// retry prompt goes out, at the threshold the lead is handed to an operator.
func (s *inboundService) warnOrEscalate(dbc dbctx.Context, ld *types.Lead, msg identity.InboundMessage, retryPrompt string) (HandleResult, error) {
	updated, shouldEscalate, err := s.leads.IncrementWarning(dbc, ld.ID)
	if err != nil {
		return HandleResult{}, err
	}

	if !shouldEscalate {
		return HandleResult{
			Success:     true,
			ShouldReply: true,
			ReplyText:   retryPrompt,
			Type:        ResultReplied,
		}, nil
	}

	if err := s.escalate(dbc, updated, msg, ReasonMaxWarnings); err != nil {
		return HandleResult{}, err
	}
	return HandleResult{
		Success:     true,
		ShouldReply: true,
		ReplyText:   s.templates.Get(dbc.Ctx, TemplateEscalationNotice),
		Type:        ResultReplied,
	}, nil
}

// escalate moves the lead to MANUAL_INTERVENTION where the machine permits it
// and always queues the operator notification. A lead already out of the
// funnel keeps its state.
func (s *inboundService) escalate(dbc dbctx.Context, ld *types.Lead, msg identity.InboundMessage, reason string) error {
	updated, err := s.leads.UpdateState(dbc, ld.ID, statemachine.StateManualIntervention)
	if err != nil && !errors.Is(err, apperrors.ErrInvalidTransition) {
		return err
	}
	currentState := ld.State
	if updated != nil {
		currentState = updated.State
	}

	return s.dispatch.EnqueueOperatorNotify(dbc, OperatorNotifyPayload{
		Kind:         NotifyEscalation,
		UserID:       ld.PrimaryID,
		PushName:     ld.PushName,
		Transport:    ld.Transport,
		LastMessage:  msg.Text,
		CurrentState: currentState,
		WarningCount: ld.WarningCount,
		Reason:       reason,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}
