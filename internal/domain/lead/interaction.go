package lead

import (
	"time"

	"github.com/google/uuid"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// LeadInteraction is one inbound or outbound message recorded against a lead.
// Rows are append-only; direction and lead_id never change after insert.
type LeadInteraction struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LeadID    uuid.UUID `gorm:"type:uuid;column:lead_id;not null;index" json:"lead_id"`
	MessageID string    `gorm:"column:message_id;not null;default:'';index" json:"message_id,omitempty"`
	Text      string    `gorm:"column:text;type:text;not null;default:''" json:"text"`
	Direction string    `gorm:"column:direction;not null;index" json:"direction"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (LeadInteraction) TableName() string { return "lead_interactions" }
