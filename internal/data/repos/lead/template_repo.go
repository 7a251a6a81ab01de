package lead

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

type TemplateRepo interface {
	Get(dbc dbctx.Context, key string) (*types.MessageTemplate, error)
	Upsert(dbc dbctx.Context, key, body string) (*types.MessageTemplate, error)
}

type templateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateRepo(db *gorm.DB, log *logger.Logger) TemplateRepo {
	return &templateRepo{db: db, log: log.With("repo", "TemplateRepo")}
}

func (r *templateRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *templateRepo) Get(dbc dbctx.Context, key string) (*types.MessageTemplate, error) {
	if key == "" {
		return nil, fmt.Errorf("missing template key: %w", apperrors.ErrInvalidArgument)
	}
	var out types.MessageTemplate
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("key = ?", key).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *templateRepo) Upsert(dbc dbctx.Context, key, body string) (*types.MessageTemplate, error) {
	if key == "" {
		return nil, fmt.Errorf("missing template key: %w", apperrors.ErrInvalidArgument)
	}
	existing, err := r.Get(dbc, key)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	txx := r.handle(dbc).WithContext(dbc.Ctx)
	if existing == nil {
		row := &types.MessageTemplate{ID: uuid.New(), Key: key, Body: body}
		if err := txx.Create(row).Error; err != nil {
			return nil, err
		}
		return row, nil
	}
	if err := txx.Model(&types.MessageTemplate{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{
			"body":       body,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return nil, err
	}
	existing.Body = body
	return existing, nil
}
