package lead

import (
	"time"

	"github.com/google/uuid"
)

// MessageTemplate is a persisted override for one bot reply text.
// Built-in defaults apply when no row exists for a key.
type MessageTemplate struct {
	ID   uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Key  string    `gorm:"column:key;not null;uniqueIndex" json:"key"`
	Body string    `gorm:"column:body;type:text;not null" json:"body"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (MessageTemplate) TableName() string { return "message_templates" }
