package sheets

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/platform/envutil"
)

// Client appends qualified-lead rows to the sales spreadsheet.
type Client interface {
	AppendRow(ctx context.Context, values []interface{}) error
}

type Config struct {
	SpreadsheetID   string
	Range           string
	CredentialsFile string
}

func ConfigFromEnv() Config {
	return Config{
		SpreadsheetID:   strings.TrimSpace(envutil.Str("SPREADSHEET_ID", "")),
		Range:           strings.TrimSpace(envutil.Str("SPREADSHEET_RANGE", "Leads!A:J")),
		CredentialsFile: strings.TrimSpace(envutil.Str("GOOGLE_CREDENTIALS_FILE", "")),
	}
}

func NewFromEnv(ctx context.Context, log *logger.Logger) (Client, error) {
	return New(ctx, log, ConfigFromEnv())
}

type client struct {
	svc *gsheets.Service
	cfg Config
	log *logger.Logger
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("missing SPREADSHEET_ID")
	}
	if cfg.Range == "" {
		cfg.Range = "Leads!A:J"
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(gsheets.SpreadsheetsScope))

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init sheets service: %w", err)
	}
	return &client{
		svc: svc,
		cfg: cfg,
		log: log.With("client", "SheetsClient"),
	}, nil
}

func (c *client) AppendRow(ctx context.Context, values []interface{}) error {
	if len(values) == 0 {
		return fmt.Errorf("empty row")
	}
	_, err := c.svc.Spreadsheets.Values.
		Append(c.cfg.SpreadsheetID, c.cfg.Range, &gsheets.ValueRange{
			Values: [][]interface{}{values},
		}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append spreadsheet row: %w", err)
	}
	c.log.Info("appended spreadsheet row", "range", c.cfg.Range)
	return nil
}
