package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/platform/envutil"
)

// Client wraps the Telegram Bot API for the two things the system needs:
// replying to a lead and alerting the operator group.
type Client interface {
	SendText(ctx context.Context, chatID, text string) error
	NotifyOperator(ctx context.Context, text string) error
}

type Config struct {
	BotToken       string
	OperatorChatID int64
}

func ConfigFromEnv() Config {
	operatorChat, _ := strconv.ParseInt(strings.TrimSpace(envutil.Str("OPERATOR_CHAT_ID", "")), 10, 64)
	return Config{
		BotToken:       strings.TrimSpace(envutil.Str("TELEGRAM_BOT_TOKEN", "")),
		OperatorChatID: operatorChat,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

type client struct {
	bot *tgbotapi.BotAPI
	cfg Config
	log *logger.Logger
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("missing TELEGRAM_BOT_TOKEN")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &client{
		bot: bot,
		cfg: cfg,
		log: log.With("client", "TelegramClient"),
	}, nil
}

func (c *client) SendText(ctx context.Context, chatID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", chatID, err)
	}
	return c.send(ctx, id, text)
}

func (c *client) NotifyOperator(ctx context.Context, text string) error {
	if c.cfg.OperatorChatID == 0 {
		return fmt.Errorf("missing OPERATOR_CHAT_ID")
	}
	return c.send(ctx, c.cfg.OperatorChatID, text)
}

// send honors ctx deadline around the blocking bot-api call.
func (c *client) send(ctx context.Context, chatID int64, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(tgbotapi.NewMessage(chatID, text))
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			c.log.Warn("telegram send failed", "chat_id", strconv.FormatInt(chatID, 10), "error", err)
		}
		return err
	case <-time.After(30 * time.Second):
		return fmt.Errorf("telegram send timed out")
	}
}
