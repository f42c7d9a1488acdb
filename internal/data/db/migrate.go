package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/contentplan-backend/internal/domain/jobs"
	"github.com/yungbote/contentplan-backend/internal/domain/strategy"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Job queue
		&jobs.JobRun{},

		// Strategy
		&strategy.StrategyPlan{},
		&strategy.PillarDistribution{},
		&strategy.ContentItem{},
		&strategy.AiResponse{},
	)
}
