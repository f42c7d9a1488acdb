package strategy

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	strategyrepo "github.com/yungbote/contentplan-backend/internal/data/repos/strategy"
	types "github.com/yungbote/contentplan-backend/internal/domain/strategy"
	"github.com/yungbote/contentplan-backend/internal/platform/dbctx"
	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

// IdeaEnricher resolves bare idea references against the plan's pillar
// distribution.
type IdeaEnricher struct {
	log  *logger.Logger
	dist strategyrepo.PillarDistributionRepo
}

func NewIdeaEnricher(log *logger.Logger, dist strategyrepo.PillarDistributionRepo) *IdeaEnricher {
	return &IdeaEnricher{log: log.With("component", "IdeaEnricher"), dist: dist}
}

// Enrich returns idea unchanged when it already carries content. A reference
// is filled from the stored idea; fields present on the reference win. An
// unresolvable reference is returned with whatever its ID encodes.
func (e *IdeaEnricher) Enrich(dbc dbctx.Context, planID uuid.UUID, idea types.Idea) (types.Idea, error) {
	if !idea.IsReference() {
		return idea, nil
	}
	row, err := e.dist.GetByIdeaID(dbc, planID, idea.ID)
	if err != nil {
		return idea, fmt.Errorf("lookup idea %s: %w", idea.ID, err)
	}
	if row == nil {
		if key, ok := types.ParseIdeaID(idea.ID); ok && idea.Pillar == "" {
			idea.Pillar = key.Pillar
		}
		e.log.Warn("Idea reference not found in distribution", "plan_id", planID, "idea_id", idea.ID)
		return idea, nil
	}
	stored := row.Idea.Data()
	merged := stored
	merged.ID = idea.ID
	if idea.Platform != "" {
		merged.Platform = idea.Platform
	}
	if idea.Pillar != "" {
		merged.Pillar = idea.Pillar
	}
	if merged.Pillar == "" {
		merged.Pillar = row.Pillar
	}
	if idea.Template != "" {
		merged.Template = idea.Template
	}
	if len(idea.NarrativeBeats) > 0 {
		merged.NarrativeBeats = idea.NarrativeBeats
	}
	return merged, nil
}

// DistributionRows indexes a weekly plan by pillar for later enrichment.
func DistributionRows(planID uuid.UUID, weeks []types.WeekPlan) []*types.PillarDistribution {
	var rows []*types.PillarDistribution
	for _, w := range weeks {
		for i, idea := range w.Ideas {
			if idea.ID == "" || idea.IsReference() {
				continue
			}
			pillar := idea.Pillar
			if !pillar.Valid() {
				pillar = types.PillarContent
			}
			rows = append(rows, &types.PillarDistribution{
				PlanID:   planID,
				IdeaID:   idea.ID,
				Pillar:   pillar,
				Week:     w.Week,
				Position: i + 1,
				Idea:     datatypes.NewJSONType(idea),
			})
		}
	}
	return rows
}
