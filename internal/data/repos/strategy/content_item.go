package strategy

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

type ContentItemRepo interface {
	// Create validates the item and inserts it.
	Create(dbc dbctx.Context, item *types.ContentItem) error
	// CreateUnchecked inserts without model validation; storage constraints
	// still apply.
	CreateUnchecked(dbc dbctx.Context, item *types.ContentItem) error
	// Save validates the item and writes every column.
	Save(dbc dbctx.Context, item *types.ContentItem) error
	GetByContentID(dbc dbctx.Context, contentID string) (*types.ContentItem, error)
	GetInPlanByContentID(dbc dbctx.Context, planID uuid.UUID, contentID string) (*types.ContentItem, error)
	GetInPlanByOriginID(dbc dbctx.Context, planID uuid.UUID, originID string) (*types.ContentItem, error)
	ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.ContentItem, error)
	ListByPlanWeek(dbc dbctx.Context, planID uuid.UUID, week int, statuses []string) ([]*types.ContentItem, error)
	ListRecentByBrand(dbc dbctx.Context, brandID uuid.UUID, excludePlanID uuid.UUID, limit int) ([]*types.ContentItem, error)
	CountByPlan(dbc dbctx.Context, planID uuid.UUID) (int64, error)
	CountByPlanStatus(dbc dbctx.Context, planID uuid.UUID, status string) (int64, error)
	NameExists(dbc dbctx.Context, brandID uuid.UUID, name string) (bool, error)
	UpdateStatusByIDs(dbc dbctx.Context, ids []uuid.UUID, fromStatuses []string, to string) (int64, error)
	UpdateStatusInPlan(dbc dbctx.Context, planID uuid.UUID, fromStatus string, to string) (int64, error)
	EnsureAssociations(dbc dbctx.Context, id uuid.UUID, planID uuid.UUID, brandID uuid.UUID) error
}

type contentItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentItemRepo(db *gorm.DB, baseLog *logger.Logger) ContentItemRepo {
	return &contentItemRepo{db: db, log: baseLog.With("repo", "ContentItemRepo")}
}

func (r *contentItemRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *contentItemRepo) Create(dbc dbctx.Context, item *types.ContentItem) error {
	if item.Status == "" {
		item.Status = types.ItemDraft
	}
	if err := item.Validate(); err != nil {
		return err
	}
	return r.CreateUnchecked(dbc, item)
}

func (r *contentItemRepo) CreateUnchecked(dbc dbctx.Context, item *types.ContentItem) error {
	return r.tx(dbc).Create(item).Error
}

func (r *contentItemRepo) Save(dbc dbctx.Context, item *types.ContentItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	item.UpdatedAt = time.Now().UTC()
	return r.tx(dbc).Save(item).Error
}

func (r *contentItemRepo) first(q *gorm.DB) (*types.ContentItem, error) {
	var item types.ContentItem
	if err := q.Limit(1).Find(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == uuid.Nil {
		return nil, nil
	}
	return &item, nil
}

func (r *contentItemRepo) GetByContentID(dbc dbctx.Context, contentID string) (*types.ContentItem, error) {
	if contentID == "" {
		return nil, nil
	}
	return r.first(r.tx(dbc).Where("content_id = ?", contentID))
}

func (r *contentItemRepo) GetInPlanByContentID(dbc dbctx.Context, planID uuid.UUID, contentID string) (*types.ContentItem, error) {
	if contentID == "" {
		return nil, nil
	}
	return r.first(r.tx(dbc).Where("plan_id = ? AND content_id = ?", planID, contentID))
}

func (r *contentItemRepo) GetInPlanByOriginID(dbc dbctx.Context, planID uuid.UUID, originID string) (*types.ContentItem, error) {
	if originID == "" {
		return nil, nil
	}
	return r.first(r.tx(dbc).Where("plan_id = ? AND origin_id = ?", planID, originID).Order("created_at ASC"))
}

func (r *contentItemRepo) ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	err := r.tx(dbc).Where("plan_id = ?", planID).Order("week ASC, content_id ASC").Find(&out).Error
	return out, err
}

func (r *contentItemRepo) ListByPlanWeek(dbc dbctx.Context, planID uuid.UUID, week int, statuses []string) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	q := r.tx(dbc).Where("plan_id = ? AND week = ?", planID, week)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("content_id ASC").Find(&out).Error
	return out, err
}

func (r *contentItemRepo) ListRecentByBrand(dbc dbctx.Context, brandID uuid.UUID, excludePlanID uuid.UUID, limit int) ([]*types.ContentItem, error) {
	var out []*types.ContentItem
	if limit <= 0 {
		limit = 30
	}
	err := r.tx(dbc).
		Where("brand_id = ? AND plan_id <> ?", brandID, excludePlanID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *contentItemRepo) CountByPlan(dbc dbctx.Context, planID uuid.UUID) (int64, error) {
	var n int64
	err := r.tx(dbc).Model(&types.ContentItem{}).Where("plan_id = ?", planID).Count(&n).Error
	return n, err
}

func (r *contentItemRepo) CountByPlanStatus(dbc dbctx.Context, planID uuid.UUID, status string) (int64, error) {
	var n int64
	err := r.tx(dbc).Model(&types.ContentItem{}).Where("plan_id = ? AND status = ?", planID, status).Count(&n).Error
	return n, err
}

func (r *contentItemRepo) NameExists(dbc dbctx.Context, brandID uuid.UUID, name string) (bool, error) {
	var n int64
	err := r.tx(dbc).Model(&types.ContentItem{}).
		Where("brand_id = ? AND content_name = ?", brandID, name).
		Count(&n).Error
	return n > 0, err
}

func (r *contentItemRepo) UpdateStatusByIDs(dbc dbctx.Context, ids []uuid.UUID, fromStatuses []string, to string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := r.tx(dbc).Model(&types.ContentItem{}).Where("id IN ?", ids)
	if len(fromStatuses) > 0 {
		q = q.Where("status IN ?", fromStatuses)
	}
	res := q.Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *contentItemRepo) UpdateStatusInPlan(dbc dbctx.Context, planID uuid.UUID, fromStatus string, to string) (int64, error) {
	res := r.tx(dbc).Model(&types.ContentItem{}).
		Where("plan_id = ? AND status = ?", planID, fromStatus).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *contentItemRepo) EnsureAssociations(dbc dbctx.Context, id uuid.UUID, planID uuid.UUID, brandID uuid.UUID) error {
	return r.tx(dbc).Model(&types.ContentItem{}).
		Where("id = ? AND (plan_id <> ? OR brand_id <> ?)", id, planID, brandID).
		Updates(map[string]interface{}{"plan_id": planID, "brand_id": brandID, "updated_at": time.Now().UTC()}).Error
}
