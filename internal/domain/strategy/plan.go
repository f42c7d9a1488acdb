package strategy

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StrategyPlan is one brand's content strategy for one month.
type StrategyPlan struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BrandID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_strategy_plan_brand_month,priority:1" json:"brand_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	BrandName   string    `gorm:"column:brand_name;not null" json:"brand_name"`
	Month       string    `gorm:"column:month;size:7;not null;uniqueIndex:idx_strategy_plan_brand_month,priority:2" json:"month"`

	Brief      string                       `gorm:"column:brief" json:"brief,omitempty"`
	BrandVoice string                       `gorm:"column:brand_voice" json:"brand_voice,omitempty"`
	Guardrails string                       `gorm:"column:guardrails" json:"guardrails,omitempty"`
	Platforms  datatypes.JSONType[[]string] `gorm:"column:platforms" json:"platforms"`

	Status           string `gorm:"column:status;not null;index" json:"status"`
	Phase            string `gorm:"column:phase;not null" json:"phase"`
	FrequencyPerWeek int    `gorm:"column:frequency_per_week;not null" json:"frequency_per_week"`

	WeeklyPlan        datatypes.JSONType[[]WeekPlan]       `gorm:"column:weekly_plan" json:"weekly_plan"`
	StrategistBatches datatypes.JSONType[BatchAccumulator] `gorm:"column:strategist_batches" json:"strategist_batches"`
	CreatorBatches    datatypes.JSONType[BatchAccumulator] `gorm:"column:creator_batches" json:"creator_batches"`

	StrategyName      string  `gorm:"column:strategy_name" json:"strategy_name,omitempty"`
	Objective         string  `gorm:"column:objective" json:"objective,omitempty"`
	TotalIdeas        int     `gorm:"column:total_ideas;not null;default:0" json:"total_ideas"`
	InferredFrequency int     `gorm:"column:inferred_frequency;not null;default:0" json:"inferred_frequency"`
	ItemsExpected     int     `gorm:"column:items_expected;not null;default:0" json:"items_expected"`
	ItemsProcessed    int     `gorm:"column:items_processed;not null;default:0" json:"items_processed"`
	CompletionRate    float64 `gorm:"column:completion_rate;not null;default:0" json:"completion_rate"`

	ErrorMessage string `gorm:"column:error_message" json:"error_message,omitempty"`
	FailedBatch  int    `gorm:"column:failed_batch;not null;default:0" json:"failed_batch,omitempty"`
	FailedPhase  string `gorm:"column:failed_phase" json:"failed_phase,omitempty"`

	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (StrategyPlan) TableName() string { return "strategy_plan" }

func (p *StrategyPlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PlanPending
	}
	if p.Phase == "" {
		p.Phase = PhaseStrategist
	}
	return nil
}

// ExpectedIdeas is the contractual item count for the month.
// BrandKey is the brand segment used in this plan's idea IDs.
func (p *StrategyPlan) BrandKey() string {
	return BrandKey(p.BrandName, p.BrandID)
}

func (p *StrategyPlan) ExpectedIdeas() int {
	return p.FrequencyPerWeek * WeeksPerPlan
}

func (p *StrategyPlan) Accumulator(phase string) BatchAccumulator {
	if phase == PhaseCreator {
		return p.CreatorBatches.Data()
	}
	return p.StrategistBatches.Data()
}

func (p *StrategyPlan) Terminal() bool {
	return p.Status == PlanFailed
}
