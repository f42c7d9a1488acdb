package app

import (
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/contentplan-backend/internal/data/repos/jobs"
	strategyrepo "github.com/yungbote/contentplan-backend/internal/data/repos/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

type Repos struct {
	Plans  strategyrepo.PlanRepo
	Items  strategyrepo.ContentItemRepo
	Dist   strategyrepo.PillarDistributionRepo
	Audit  strategyrepo.AiResponseRepo
	JobRun jobrepo.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Plans:  strategyrepo.NewPlanRepo(db, log),
		Items:  strategyrepo.NewContentItemRepo(db, log),
		Dist:   strategyrepo.NewPillarDistributionRepo(db, log),
		Audit:  strategyrepo.NewAiResponseRepo(db, log),
		JobRun: jobrepo.NewJobRunRepo(db, log),
	}
}
