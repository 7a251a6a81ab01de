package lead

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/warungdigital/leadbot-backend/internal/domain"
	"github.com/warungdigital/leadbot-backend/internal/form"
	"github.com/warungdigital/leadbot-backend/internal/pkg/dbctx"
	apperrors "github.com/warungdigital/leadbot-backend/internal/pkg/errors"
	"github.com/warungdigital/leadbot-backend/internal/pkg/logger"
	"github.com/warungdigital/leadbot-backend/internal/statemachine"
)

// CreateOptions carries the optional identity metadata a transport may attach
// to an inbound message.
type CreateOptions struct {
	PushName string
	AltID    string
}

type LeadRepo interface {
	GetByPrimary(dbc dbctx.Context, primaryID string) (*types.Lead, error)
	GetByAlt(dbc dbctx.Context, altID string) (*types.Lead, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lead, error)
	Create(dbc dbctx.Context, primaryID, transport string, state statemachine.State, opts CreateOptions) (*types.Lead, error)
	GetOrCreate(dbc dbctx.Context, primaryID, transport string, opts CreateOptions) (*types.Lead, bool, error)
	MarkExisting(dbc dbctx.Context, primaryID, transport string) (*types.Lead, error)
	UpdateState(dbc dbctx.Context, id uuid.UUID, to statemachine.State) (*types.Lead, error)
	IncrementWarning(dbc dbctx.Context, id uuid.UUID) (*types.Lead, bool, error)
	ResetWarning(dbc dbctx.Context, id uuid.UUID) error
	ResolveIdentity(dbc dbctx.Context, primaryID, altID string) (*types.Lead, error)
}

type leadRepo struct {
	db          *gorm.DB
	log         *logger.Logger
	maxWarnings int
}

func NewLeadRepo(db *gorm.DB, log *logger.Logger, maxWarnings int) LeadRepo {
	if maxWarnings < 1 {
		maxWarnings = 3
	}
	return &leadRepo{db: db, log: log.With("repo", "LeadRepo"), maxWarnings: maxWarnings}
}

func (r *leadRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *leadRepo) GetByPrimary(dbc dbctx.Context, primaryID string) (*types.Lead, error) {
	if primaryID == "" {
		return nil, fmt.Errorf("missing primary_id: %w", apperrors.ErrInvalidArgument)
	}
	var out types.Lead
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("primary_id = ?", primaryID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByAlt matches either column: a lead imported by a sync job may carry the
// alternate identifier as its primary_id until ResolveIdentity migrates it.
func (r *leadRepo) GetByAlt(dbc dbctx.Context, altID string) (*types.Lead, error) {
	if altID == "" {
		return nil, fmt.Errorf("missing alt_id: %w", apperrors.ErrInvalidArgument)
	}
	var out types.Lead
	txx := r.handle(dbc).WithContext(dbc.Ctx)
	err := txx.Where("alt_id = ?", altID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = txx.Where("primary_id = ?", altID).First(&out).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *leadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lead, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing lead id: %w", apperrors.ErrInvalidArgument)
	}
	var out types.Lead
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *leadRepo) Create(dbc dbctx.Context, primaryID, transport string, state statemachine.State, opts CreateOptions) (*types.Lead, error) {
	if primaryID == "" || transport == "" {
		return nil, fmt.Errorf("missing primary_id or transport: %w", apperrors.ErrInvalidArgument)
	}
	if !statemachine.IsValid(state) {
		return nil, fmt.Errorf("state %q: %w", state, apperrors.ErrInvalidArgument)
	}
	row := &types.Lead{
		ID:        uuid.New(),
		PrimaryID: primaryID,
		AltID:     opts.AltID,
		PushName:  opts.PushName,
		Transport: transport,
		State:     string(state),
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *leadRepo) GetOrCreate(dbc dbctx.Context, primaryID, transport string, opts CreateOptions) (*types.Lead, bool, error) {
	existing, err := r.GetByPrimary(dbc, primaryID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		updates := map[string]interface{}{}
		if opts.PushName != "" && opts.PushName != existing.PushName {
			updates["push_name"] = opts.PushName
			existing.PushName = opts.PushName
		}
		if opts.AltID != "" && existing.AltID == "" {
			updates["alt_id"] = opts.AltID
			existing.AltID = opts.AltID
		}
		if len(updates) > 0 {
			updates["updated_at"] = time.Now().UTC()
			if err := r.handle(dbc).WithContext(dbc.Ctx).
				Model(&types.Lead{}).
				Where("id = ?", existing.ID).
				Updates(updates).Error; err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	created, err := r.Create(dbc, primaryID, transport, statemachine.Initial, opts)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// MarkExisting records that we contacted this identity ourselves before it
// ever wrote to us. Creates the lead as EXISTING, promotes NEW to EXISTING,
// and leaves any further progressed lead alone.
func (r *leadRepo) MarkExisting(dbc dbctx.Context, primaryID, transport string) (*types.Lead, error) {
	existing, err := r.GetByPrimary(dbc, primaryID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return r.Create(dbc, primaryID, transport, statemachine.StateExisting, CreateOptions{})
	}
	if err != nil {
		return nil, err
	}
	if existing.State != string(statemachine.StateNew) {
		return existing, nil
	}
	now := time.Now().UTC()
	if err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Lead{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"state":      string(statemachine.StateExisting),
			"updated_at": now,
		}).Error; err != nil {
		return nil, err
	}
	existing.State = string(statemachine.StateExisting)
	return existing, nil
}

// UpdateState takes a row-level exclusive lock on the lead, validates the
// transition against the machine and persists the new state.
func (r *leadRepo) UpdateState(dbc dbctx.Context, id uuid.UUID, to statemachine.State) (*types.Lead, error) {
	var row types.Lead
	txx := r.handle(dbc).WithContext(dbc.Ctx)
	err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	from, err := statemachine.ParseState(row.State)
	if err != nil {
		return nil, err
	}
	next, err := statemachine.Transition(from, to)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := txx.Model(&types.Lead{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":      string(next),
			"updated_at": now,
		}).Error; err != nil {
		return nil, err
	}
	row.State = string(next)
	row.UpdatedAt = now
	return &row, nil
}

// IncrementWarning bumps the counter atomically and reports whether the new
// value reached the escalation threshold.
func (r *leadRepo) IncrementWarning(dbc dbctx.Context, id uuid.UUID) (*types.Lead, bool, error) {
	txx := r.handle(dbc).WithContext(dbc.Ctx)
	if err := txx.Model(&types.Lead{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"warning_count": gorm.Expr("warning_count + 1"),
			"updated_at":    time.Now().UTC(),
		}).Error; err != nil {
		return nil, false, err
	}
	row, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, false, err
	}
	return row, row.WarningCount >= r.maxWarnings, nil
}

func (r *leadRepo) ResetWarning(dbc dbctx.Context, id uuid.UUID) error {
	return r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Lead{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"warning_count": 0,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// ResolveIdentity reconciles the two identifier shapes the transport may
// present for one human, guaranteeing at most one lead per observed pair.
// Must run inside the caller's transaction.
func (r *leadRepo) ResolveIdentity(dbc dbctx.Context, primaryID, altID string) (*types.Lead, error) {
	byPrimary, err := r.GetByPrimary(dbc, primaryID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if altID == "" {
		if byPrimary == nil {
			return nil, apperrors.ErrNotFound
		}
		return byPrimary, nil
	}

	byAlt, err := r.GetByAlt(dbc, altID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	txx := r.handle(dbc).WithContext(dbc.Ctx)
	now := time.Now().UTC()

	switch {
	case byPrimary != nil && byAlt != nil && byPrimary.ID != byAlt.ID:
		// Split-brain: a sync import created a second lead keyed by the
		// alternate id. Re-parent its interactions and fold its form answers
		// into the survivor before deleting it, then attach the alt id.
		if err := txx.Model(&types.LeadInteraction{}).
			Where("lead_id = ?", byAlt.ID).
			Update("lead_id", byPrimary.ID).Error; err != nil {
			return nil, err
		}
		if err := r.absorbFormData(dbc, byAlt.ID, byPrimary.ID, now); err != nil {
			return nil, err
		}
		if err := txx.Where("id = ?", byAlt.ID).
			Delete(&types.Lead{}).Error; err != nil {
			return nil, err
		}
		if byPrimary.AltID == "" {
			if err := txx.Model(&types.Lead{}).
				Where("id = ?", byPrimary.ID).
				Updates(map[string]interface{}{"alt_id": altID, "updated_at": now}).Error; err != nil {
				return nil, err
			}
			byPrimary.AltID = altID
		}
		r.log.Info("merged split-brain leads", "lead_id", byPrimary.ID, "merged_lead_id", byAlt.ID)
		return byPrimary, nil

	case byPrimary != nil:
		if byPrimary.AltID == "" {
			if err := txx.Model(&types.Lead{}).
				Where("id = ?", byPrimary.ID).
				Updates(map[string]interface{}{"alt_id": altID, "updated_at": now}).Error; err != nil {
				return nil, err
			}
			byPrimary.AltID = altID
		}
		return byPrimary, nil

	case byAlt != nil:
		// Only the alt-keyed lead exists: migrate it onto the canonical
		// primary identifier.
		if err := txx.Model(&types.Lead{}).
			Where("id = ?", byAlt.ID).
			Updates(map[string]interface{}{
				"primary_id": primaryID,
				"alt_id":     altID,
				"updated_at": now,
			}).Error; err != nil {
			return nil, err
		}
		byAlt.PrimaryID = primaryID
		byAlt.AltID = altID
		return byAlt, nil
	}

	return nil, apperrors.ErrNotFound
}

// absorbFormData moves captured form answers from a lead about to be merged
// away onto the surviving lead. With no row on the survivor the source row is
// re-parented wholesale; otherwise the answers merge field-wise with the
// survivor's values winning, and a completed flag on either side survives.
func (r *leadRepo) absorbFormData(dbc dbctx.Context, fromID, toID uuid.UUID, now time.Time) error {
	txx := r.handle(dbc).WithContext(dbc.Ctx)

	var source types.LeadFormData
	err := txx.Where("lead_id = ?", fromID).First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var target types.LeadFormData
	err = txx.Where("lead_id = ?", toID).First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return txx.Model(&types.LeadFormData{}).
			Where("id = ?", source.ID).
			Updates(map[string]interface{}{"lead_id": toID, "updated_at": now}).Error
	}
	if err != nil {
		return err
	}

	merged := form.Merge(FragmentOf(&source), FragmentOf(&target))
	if err := txx.Model(&types.LeadFormData{}).
		Where("id = ?", target.ID).
		Updates(map[string]interface{}{
			"biodata":       merged.Biodata,
			"source_info":   merged.SourceInfo,
			"business_type": merged.BusinessType,
			"budget":        merged.Budget,
			"start_plan":    merged.StartPlan,
			"completed":     target.Completed || source.Completed,
			"updated_at":    now,
		}).Error; err != nil {
		return err
	}
	return txx.Where("id = ?", source.ID).Delete(&types.LeadFormData{}).Error
}
