package strategy

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

type PlanRepo interface {
	Create(dbc dbctx.Context, plan *types.StrategyPlan) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StrategyPlan, error)
	GetByBrandMonth(dbc dbctx.Context, brandID uuid.UUID, month string) (*types.StrategyPlan, error)
	ListByBrand(dbc dbctx.Context, brandID uuid.UUID) ([]*types.StrategyPlan, error)
	Save(dbc dbctx.Context, plan *types.StrategyPlan) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfStatus applies updates only while the row is in one of
	// allowed. It reports whether a row changed.
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error)
}

type planRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return &planRepo{db: db, log: baseLog.With("repo", "PlanRepo")}
}

func (r *planRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *planRepo) Create(dbc dbctx.Context, plan *types.StrategyPlan) error {
	return r.tx(dbc).Create(plan).Error
}

func (r *planRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.StrategyPlan, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var plan types.StrategyPlan
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&plan).Error; err != nil {
		return nil, err
	}
	if plan.ID == uuid.Nil {
		return nil, nil
	}
	return &plan, nil
}

func (r *planRepo) GetByBrandMonth(dbc dbctx.Context, brandID uuid.UUID, month string) (*types.StrategyPlan, error) {
	var plan types.StrategyPlan
	err := r.tx(dbc).
		Where("brand_id = ? AND month = ?", brandID, month).
		Limit(1).
		Find(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == uuid.Nil {
		return nil, nil
	}
	return &plan, nil
}

func (r *planRepo) ListByBrand(dbc dbctx.Context, brandID uuid.UUID) ([]*types.StrategyPlan, error) {
	var out []*types.StrategyPlan
	err := r.tx(dbc).Where("brand_id = ?", brandID).Order("month DESC").Find(&out).Error
	return out, err
}

func (r *planRepo) Save(dbc dbctx.Context, plan *types.StrategyPlan) error {
	plan.UpdatedAt = time.Now().UTC()
	return r.tx(dbc).Save(plan).Error
}

func (r *planRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.tx(dbc).Model(&types.StrategyPlan{}).Where("id = ?", id).Updates(updates).Error
}

func (r *planRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.tx(dbc).Model(&types.StrategyPlan{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
