package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	leadrepo "github.com/warungdigital/leadbot-backend/internal/data/repos/lead"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

// Template keys the pipeline fetches by name.
const (
	TemplateWelcome          = "WELCOME"
	TemplateChooseOptionAck  = "CHOOSE_OPTION_ACK"
	TemplateFormTemplate     = "FORM_TEMPLATE"
	TemplateFormReceived     = "FORM_RECEIVED"
	TemplatePartnershipAck   = "PARTNERSHIP_ACK"
	TemplateOtherNeedsAck    = "OTHER_NEEDS_ACK"
	TemplateQuestionReceived = "QUESTION_RECEIVED"
	TemplateInvalidOption    = "INVALID_OPTION"
	TemplateEscalationNotice = "ESCALATION_NOTICE"
)

var defaultTemplates = map[string]string{
	TemplateWelcome: "Halo! Terima kasih sudah menghubungi kami \U0001F44B\n" +
		"Silakan balas dengan angka sesuai kebutuhan Anda:\n" +
		"1. Saya ingin bertanya tentang kemitraan usaha\n" +
		"2. Saya ingin mengajukan kerja sama / partnership\n" +
		"3. Kebutuhan lainnya",
	TemplateChooseOptionAck: "Siap! Mohon isi data berikut agar tim kami bisa membantu Anda lebih cepat.",
	TemplateFormTemplate: "Nama, Domisili:\n" +
		"Sumber info:\n" +
		"Jenis bisnis:\n" +
		"Budget:\n" +
		"Rencana mulai:",
	TemplateFormReceived: "Terima kasih! Data Anda sudah kami terima. " +
		"Tim kami akan segera menghubungi Anda.",
	TemplatePartnershipAck: "Terima kasih atas minat kerja samanya! " +
		"Tim partnership kami akan menghubungi Anda segera.",
	TemplateOtherNeedsAck: "Baik, pesan Anda sudah kami teruskan ke tim kami. " +
		"Mohon ditunggu ya.",
	TemplateQuestionReceived: "Pesan Anda sudah kami terima dan teruskan ke tim kami. " +
		"Mohon ditunggu ya.",
	TemplateInvalidOption: "Mohon balas dengan angka 1, 2, atau 3 sesuai menu di atas ya.",
	TemplateEscalationNotice: "Sepertinya Anda membutuhkan bantuan langsung. " +
		"Tim kami akan segera menghubungi Anda.",
}

// TemplateService resolves reply texts: persisted override first, then the
// overrides file, then the built-in default. Lookup failures fall through so
// a degraded database never silences the bot.
type TemplateService interface {
	Get(ctx context.Context, key string) string
	SetOverride(ctx context.Context, key, body string) error
}

type templateService struct {
	repo      leadrepo.TemplateRepo
	log       *logger.Logger
	overrides map[string]string
}

func NewTemplateService(repo leadrepo.TemplateRepo, log *logger.Logger, overridesFile string) (TemplateService, error) {
	svc := &templateService{
		repo:      repo,
		log:       log.With("service", "TemplateService"),
		overrides: map[string]string{},
	}
	if overridesFile != "" {
		raw, err := os.ReadFile(overridesFile)
		if err != nil {
			return nil, fmt.Errorf("read templates file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &svc.overrides); err != nil {
			return nil, fmt.Errorf("parse templates file: %w", err)
		}
	}
	return svc, nil
}

func (s *templateService) Get(ctx context.Context, key string) string {
	if s.repo != nil {
		row, err := s.repo.Get(dbctx.New(ctx), key)
		if err == nil && row.Body != "" {
			return row.Body
		}
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			s.log.Warn("template lookup failed, using fallback", "key", key, "error", err)
		}
	}
	if body, ok := s.overrides[key]; ok && body != "" {
		return body
	}
	if body, ok := defaultTemplates[key]; ok {
		return body
	}
	s.log.Warn("unknown template key", "key", key)
	return ""
}

func (s *templateService) SetOverride(ctx context.Context, key, body string) error {
	if s.repo == nil {
		return fmt.Errorf("template overrides require a repo: %w", apperrors.ErrInvalidArgument)
	}
	_, err := s.repo.Upsert(dbctx.New(ctx), key, body)
	return err
}

// DefaultTemplateKeys lists every key the pipeline may request.
func DefaultTemplateKeys() []string {
	return []string{
		TemplateWelcome,
		TemplateChooseOptionAck,
		TemplateFormTemplate,
		TemplateFormReceived,
		TemplatePartnershipAck,
		TemplateOtherNeedsAck,
		TemplateQuestionReceived,
		TemplateInvalidOption,
		TemplateEscalationNotice,
	}
}
