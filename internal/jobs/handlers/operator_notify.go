package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warungdigital/leadbot-backend/internal/clients/telegram"
	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/services"
)

var notifyTitles = map[string]string{
	services.NotifyEscalation:          "⚠️ Eskalasi",
	services.NotifyNewLead:             "\U0001F195 Lead baru",
	services.NotifyFormCompleted:       "✅ Form lengkap",
	services.NotifyPartnershipInterest: "\U0001F91D Minat partnership",
	services.NotifyOtherNeeds:          "\U0001F4AC Kebutuhan lain",
	services.NotifyGeneralInquiry:      "❓ Pertanyaan umum",
}

// OperatorNotify relays pipeline alerts to the operator's Telegram chat.
type OperatorNotify struct {
	tg  telegram.Client
	log *logger.Logger
}

func NewOperatorNotify(tg telegram.Client, log *logger.Logger) *OperatorNotify {
	return &OperatorNotify{
		tg:  tg,
		log: log.With("handler", "OperatorNotify"),
	}
}

func (h *OperatorNotify) Type() string { return services.JobTypeOperatorNotify }

func (h *OperatorNotify) Run(ctx context.Context, job *types.JobRun) error {
	var p services.OperatorNotifyPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode notify payload: %w", err)
	}

	if err := h.tg.NotifyOperator(ctx, formatNotification(p)); err != nil {
		return err
	}
	h.log.Info("notified operator", "kind", p.Kind, "user_id", p.UserID)
	return nil
}

func formatNotification(p services.OperatorNotifyPayload) string {
	title, ok := notifyTitles[p.Kind]
	if !ok {
		title = p.Kind
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	if p.PushName != "" {
		fmt.Fprintf(&b, "Nama: %s\n", p.PushName)
	}
	fmt.Fprintf(&b, "Kontak: %s (%s)\n", p.UserID, p.Transport)
	if p.CurrentState != "" {
		fmt.Fprintf(&b, "Status: %s\n", p.CurrentState)
	}
	if p.Reason != "" {
		fmt.Fprintf(&b, "Alasan: %s\n", p.Reason)
	}
	if p.WarningCount > 0 {
		fmt.Fprintf(&b, "Jumlah peringatan: %d\n", p.WarningCount)
	}
	if p.LastMessage != "" {
		fmt.Fprintf(&b, "Pesan terakhir: %s\n", p.LastMessage)
	}
	if p.Timestamp != "" {
		fmt.Fprintf(&b, "Waktu: %s\n", p.Timestamp)
	}
	return strings.TrimRight(b.String(), "\n")
}
