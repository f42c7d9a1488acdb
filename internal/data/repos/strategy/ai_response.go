package strategy

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

// AiResponseRepo is append-only.
type AiResponseRepo interface {
	Create(dbc dbctx.Context, row *types.AiResponse) error
	ListByPlan(dbc dbctx.Context, planID uuid.UUID, limit int) ([]*types.AiResponse, error)
}

type aiResponseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAiResponseRepo(db *gorm.DB, baseLog *logger.Logger) AiResponseRepo {
	return &aiResponseRepo{db: db, log: baseLog.With("repo", "AiResponseRepo")}
}

func (r *aiResponseRepo) Create(dbc dbctx.Context, row *types.AiResponse) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(row).Error
}

func (r *aiResponseRepo) ListByPlan(dbc dbctx.Context, planID uuid.UUID, limit int) ([]*types.AiResponse, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.AiResponse
	err := transaction.WithContext(dbc.Ctx).
		Where("plan_id = ?", planID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
