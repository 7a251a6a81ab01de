package lead

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

type InteractionRepo interface {
	Add(dbc dbctx.Context, leadID uuid.UUID, messageID, text, direction string) (*types.LeadInteraction, error)
	ListRecent(dbc dbctx.Context, leadID uuid.UUID, limit int) ([]*types.LeadInteraction, error)
	CountByLead(dbc dbctx.Context, leadID uuid.UUID) (int64, error)
}

type interactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInteractionRepo(db *gorm.DB, log *logger.Logger) InteractionRepo {
	return &interactionRepo{db: db, log: log.With("repo", "InteractionRepo")}
}

func (r *interactionRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *interactionRepo) Add(dbc dbctx.Context, leadID uuid.UUID, messageID, text, direction string) (*types.LeadInteraction, error) {
	if leadID == uuid.Nil {
		return nil, fmt.Errorf("missing lead_id: %w", apperrors.ErrInvalidArgument)
	}
	if direction != types.DirectionIn && direction != types.DirectionOut {
		return nil, fmt.Errorf("direction %q: %w", direction, apperrors.ErrInvalidArgument)
	}
	row := &types.LeadInteraction{
		ID:        uuid.New(),
		LeadID:    leadID,
		MessageID: messageID,
		Text:      text,
		Direction: direction,
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *interactionRepo) ListRecent(dbc dbctx.Context, leadID uuid.UUID, limit int) ([]*types.LeadInteraction, error) {
	if leadID == uuid.Nil {
		return nil, fmt.Errorf("missing lead_id: %w", apperrors.ErrInvalidArgument)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.LeadInteraction
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("lead_id = ?", leadID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *interactionRepo) CountByLead(dbc dbctx.Context, leadID uuid.UUID) (int64, error) {
	var n int64
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.LeadInteraction{}).
		Where("lead_id = ?", leadID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
