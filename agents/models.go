package agents

import (
	"time"

	"gorm.io/datatypes"
)

// Agent statuses. Inactive agents keep their configuration and knowledge
// base but refuse chat traffic.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusError    = "error"
)

// Agent stores one conversational agent's configuration.
type Agent struct {
	ID           string         `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string         `gorm:"size:255;not null" json:"name"`
	Type         string         `gorm:"size:50;not null;default:'chat'" json:"type"`
	APIProvider  string         `gorm:"size:50;not null" json:"api_provider"`
	Model        string         `gorm:"size:100;not null" json:"model"`
	SystemPrompt *string        `gorm:"type:text" json:"system_prompt,omitempty"`
	ConfigJSON   datatypes.JSON `gorm:"type:json" json:"config_json,omitempty"`
	Status       string         `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName pins the storage table for Agent.
func (Agent) TableName() string {
	return "agents"
}
