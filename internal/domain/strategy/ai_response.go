package strategy

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AiResponse is the immutable audit record of one model call.
type AiResponse struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID        *uuid.UUID     `gorm:"type:uuid;index" json:"plan_id,omitempty"`
	Service       string         `gorm:"column:service;not null;index" json:"service"`
	Provider      string         `gorm:"column:provider" json:"provider"`
	Model         string         `gorm:"column:model" json:"model"`
	PromptName    string         `gorm:"column:prompt_name" json:"prompt_name"`
	PromptVersion int            `gorm:"column:prompt_version" json:"prompt_version"`
	BatchNumber   int            `gorm:"column:batch_number" json:"batch_number"`
	TotalBatches  int            `gorm:"column:total_batches" json:"total_batches"`
	BatchID       string         `gorm:"column:batch_id;index" json:"batch_id"`
	Request       datatypes.JSON `gorm:"column:request" json:"request"`
	Response      string         `gorm:"column:response" json:"response"`
	Metadata      datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
}

func (AiResponse) TableName() string { return "ai_response" }

func (r *AiResponse) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// BeforeUpdate rejects any mutation of an audit row.
func (r *AiResponse) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditImmutable
}

func (r *AiResponse) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditImmutable
}
