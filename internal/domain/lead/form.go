package lead

import (
	"time"

	"github.com/google/uuid"
)

// LeadFormData accumulates the five qualification answers for a lead.
// Fields fill monotonically: a parse pass only replaces a value when it
// extracted a non-empty one. Completed implies all five are non-empty.
type LeadFormData struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LeadID uuid.UUID `gorm:"type:uuid;column:lead_id;not null;uniqueIndex" json:"lead_id"`

	Biodata      string `gorm:"column:biodata;type:text;not null;default:''" json:"biodata,omitempty"`
	SourceInfo   string `gorm:"column:source_info;type:text;not null;default:''" json:"source_info,omitempty"`
	BusinessType string `gorm:"column:business_type;type:text;not null;default:''" json:"business_type,omitempty"`
	Budget       string `gorm:"column:budget;type:text;not null;default:''" json:"budget,omitempty"`
	StartPlan    string `gorm:"column:start_plan;type:text;not null;default:''" json:"start_plan,omitempty"`
	Completed    bool   `gorm:"column:completed;not null;default:false;index" json:"completed"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (LeadFormData) TableName() string { return "lead_form_data" }
