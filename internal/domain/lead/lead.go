package lead

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransportWhatsApp = "whatsapp"
	TransportTelegram = "telegram"
)

// Lead is one human contact moving through the qualification flow.
// PrimaryID is the normalized transport identifier and is the lookup key;
// AltID is the occasional linked-device identifier used for fallback lookup.
type Lead struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PrimaryID    string    `gorm:"column:primary_id;not null;uniqueIndex" json:"primary_id"`
	AltID        string    `gorm:"column:alt_id;not null;default:'';index" json:"alt_id,omitempty"`
	PushName     string    `gorm:"column:push_name;not null;default:''" json:"push_name,omitempty"`
	Transport    string    `gorm:"column:transport;not null;index" json:"transport"`
	State        string    `gorm:"column:state;not null;index" json:"state"`
	WarningCount int       `gorm:"column:warning_count;not null;default:0" json:"warning_count"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now();index" json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }
