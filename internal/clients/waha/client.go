package waha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/platform/envutil"
)

// Client sends messages through a WAHA (WhatsApp HTTP API) instance.
type Client interface {
	SendText(ctx context.Context, chatID, text string) error
	// SendTextPair sends two messages in order with a short settle delay in
	// between so the transport delivers them in sequence.
	SendTextPair(ctx context.Context, chatID, first, second string) error
	StartTyping(ctx context.Context, chatID string) error
	StopTyping(ctx context.Context, chatID string) error
}

type Config struct {
	BaseURL     string
	APIKey      string
	Session     string
	Timeout     time.Duration
	MaxRetries  int
	SettleDelay time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:     strings.TrimSpace(envutil.Str("WAHA_BASE_URL", "")),
		APIKey:      strings.TrimSpace(envutil.Str("WAHA_API_KEY", "")),
		Session:     strings.TrimSpace(envutil.Str("WAHA_SESSION", "default")),
		Timeout:     envutil.Seconds("WAHA_TIMEOUT_SECONDS", 15),
		MaxRetries:  envutil.Int("WAHA_MAX_RETRIES", 3),
		SettleDelay: 500 * time.Millisecond,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

type client struct {
	cfg  Config
	log  *logger.Logger
	http *http.Client
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing WAHA_BASE_URL")
	}
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	return &client{
		cfg:  cfg,
		log:  log.With("client", "WAHAClient"),
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type sendTextRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
}

type chatRequest struct {
	ChatID  string `json:"chatId"`
	Session string `json:"session"`
}

func (c *client) SendText(ctx context.Context, chatID, text string) error {
	if strings.TrimSpace(chatID) == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("chatId and text are required")
	}
	return c.post(ctx, "/api/sendText", sendTextRequest{
		ChatID:  chatID,
		Text:    text,
		Session: c.cfg.Session,
	})
}

func (c *client) SendTextPair(ctx context.Context, chatID, first, second string) error {
	if err := c.SendText(ctx, chatID, first); err != nil {
		return err
	}
	if strings.TrimSpace(second) == "" {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.SettleDelay):
	}
	return c.SendText(ctx, chatID, second)
}

func (c *client) StartTyping(ctx context.Context, chatID string) error {
	return c.post(ctx, "/api/startTyping", chatRequest{ChatID: chatID, Session: c.cfg.Session})
}

func (c *client) StopTyping(ctx context.Context, chatID string) error {
	return c.post(ctx, "/api/stopTyping", chatRequest{ChatID: chatID, Session: c.cfg.Session})
}

func (c *client) post(ctx context.Context, path string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal waha request: %w", err)
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			if c.cfg.APIKey != "" {
				req.Header.Set("X-Api-Key", c.cfg.APIKey)
			}

			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err = fmt.Errorf("waha %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxRetries)),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("waha request retrying", "path", path, "attempt", n+1, "error", err)
		}),
	)
}
