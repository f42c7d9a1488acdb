package strategy

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

type PillarDistributionRepo interface {
	Upsert(dbc dbctx.Context, rows []*types.PillarDistribution) error
	GetByIdeaID(dbc dbctx.Context, planID uuid.UUID, ideaID string) (*types.PillarDistribution, error)
	ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.PillarDistribution, error)
}

type pillarDistributionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPillarDistributionRepo(db *gorm.DB, baseLog *logger.Logger) PillarDistributionRepo {
	return &pillarDistributionRepo{db: db, log: baseLog.With("repo", "PillarDistributionRepo")}
}

func (r *pillarDistributionRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *pillarDistributionRepo) Upsert(dbc dbctx.Context, rows []*types.PillarDistribution) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.UpdatedAt = now
	}
	return r.tx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plan_id"}, {Name: "idea_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pillar", "week", "position", "idea", "updated_at"}),
	}).Create(&rows).Error
}

func (r *pillarDistributionRepo) GetByIdeaID(dbc dbctx.Context, planID uuid.UUID, ideaID string) (*types.PillarDistribution, error) {
	var row types.PillarDistribution
	err := r.tx(dbc).Where("plan_id = ? AND idea_id = ?", planID, ideaID).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *pillarDistributionRepo) ListByPlan(dbc dbctx.Context, planID uuid.UUID) ([]*types.PillarDistribution, error) {
	var out []*types.PillarDistribution
	err := r.tx(dbc).Where("plan_id = ?", planID).Order("pillar ASC, week ASC, position ASC").Find(&out).Error
	return out, err
}
