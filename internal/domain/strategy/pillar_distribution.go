package strategy

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PillarDistribution indexes a plan's ideas by pillar so that bare idea
// references can be resolved back to full records.
type PillarDistribution struct {
	ID        uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID    uuid.UUID                `gorm:"type:uuid;not null;uniqueIndex:idx_pillar_distribution_plan_idea,priority:1" json:"plan_id"`
	IdeaID    string                   `gorm:"column:idea_id;not null;uniqueIndex:idx_pillar_distribution_plan_idea,priority:2" json:"idea_id"`
	Pillar    Pillar                   `gorm:"column:pillar;not null;index" json:"pillar"`
	Week      int                      `gorm:"column:week;not null" json:"week"`
	Position  int                      `gorm:"column:position;not null" json:"position"`
	Idea      datatypes.JSONType[Idea] `gorm:"column:idea" json:"idea"`
	CreatedAt time.Time                `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time                `gorm:"not null" json:"updated_at"`
}

func (PillarDistribution) TableName() string { return "pillar_distribution" }

func (d *PillarDistribution) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
