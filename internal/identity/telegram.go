package identity

import (
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/warungdigital/leadbot-backend/internal/domain"
)

// FromTelegramUpdate normalizes a bot API update. Only private-chat text
// messages from human authors are accepted; everything else comes back with
// ok=false and is acknowledged upstream with no effect.
func FromTelegramUpdate(update tgbotapi.Update) (InboundMessage, bool) {
	m := update.Message
	if m == nil || m.Text == "" {
		return InboundMessage{}, false
	}
	if m.Chat == nil || !m.Chat.IsPrivate() {
		return InboundMessage{}, false
	}
	if m.From == nil || m.From.IsBot {
		return InboundMessage{}, false
	}

	return InboundMessage{
		Transport: domain.TransportTelegram,
		MessageID: strconv.Itoa(m.MessageID),
		UserID:    strconv.FormatInt(m.Chat.ID, 10),
		Text:      m.Text,
		Timestamp: time.Unix(int64(m.Date), 0).UTC(),
		Metadata: Metadata{
			PushName: m.From.FirstName,
		},
	}, true
}
