package lead

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/form"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
)

type FormRepo interface {
	Get(dbc dbctx.Context, leadID uuid.UUID) (*types.LeadFormData, error)
	// Upsert merges the parsed fragment into the stored row field-wise:
	// captured values win, empty ones preserve what was there.
	Upsert(dbc dbctx.Context, leadID uuid.UUID, partial form.Fragment) (*types.LeadFormData, error)
	MarkCompleted(dbc dbctx.Context, leadID uuid.UUID) error
}

type formRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFormRepo(db *gorm.DB, log *logger.Logger) FormRepo {
	return &formRepo{db: db, log: log.With("repo", "FormRepo")}
}

func (r *formRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *formRepo) Get(dbc dbctx.Context, leadID uuid.UUID) (*types.LeadFormData, error) {
	if leadID == uuid.Nil {
		return nil, fmt.Errorf("missing lead_id: %w", apperrors.ErrInvalidArgument)
	}
	var out types.LeadFormData
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("lead_id = ?", leadID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *formRepo) Upsert(dbc dbctx.Context, leadID uuid.UUID, partial form.Fragment) (*types.LeadFormData, error) {
	if leadID == uuid.Nil {
		return nil, fmt.Errorf("missing lead_id: %w", apperrors.ErrInvalidArgument)
	}

	existing, err := r.Get(dbc, leadID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	txx := r.handle(dbc).WithContext(dbc.Ctx)

	if existing == nil {
		row := &types.LeadFormData{
			ID:           uuid.New(),
			LeadID:       leadID,
			Biodata:      partial.Biodata,
			SourceInfo:   partial.SourceInfo,
			BusinessType: partial.BusinessType,
			Budget:       partial.Budget,
			StartPlan:    partial.StartPlan,
		}
		if err := txx.Create(row).Error; err != nil {
			return nil, err
		}
		return row, nil
	}

	merged := form.Merge(FragmentOf(existing), partial)
	if err := txx.Model(&types.LeadFormData{}).
		Where("lead_id = ?", leadID).
		Updates(map[string]interface{}{
			"biodata":       merged.Biodata,
			"source_info":   merged.SourceInfo,
			"business_type": merged.BusinessType,
			"budget":        merged.Budget,
			"start_plan":    merged.StartPlan,
			"updated_at":    time.Now().UTC(),
		}).Error; err != nil {
		return nil, err
	}
	existing.Biodata = merged.Biodata
	existing.SourceInfo = merged.SourceInfo
	existing.BusinessType = merged.BusinessType
	existing.Budget = merged.Budget
	existing.StartPlan = merged.StartPlan
	return existing, nil
}

func (r *formRepo) MarkCompleted(dbc dbctx.Context, leadID uuid.UUID) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.LeadFormData{}).
		Where("lead_id = ?", leadID).
		Updates(map[string]interface{}{
			"completed":  true,
			"updated_at": time.Now().UTC(),
		}).Error
}

// FragmentOf views a stored row as a parser fragment.
func FragmentOf(row *types.LeadFormData) form.Fragment {
	if row == nil {
		return form.Fragment{}
	}
	return form.Fragment{
		Biodata:      row.Biodata,
		SourceInfo:   row.SourceInfo,
		BusinessType: row.BusinessType,
		Budget:       row.Budget,
		StartPlan:    row.StartPlan,
	}
}
