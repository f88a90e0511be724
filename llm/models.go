package llm

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation logs one chat turn: the user message, the agent's reply, and
// the retrieved context that grounded it.
type Conversation struct {
	ID             string         `gorm:"type:uuid;primaryKey" json:"id"`
	AgentID        string         `gorm:"type:uuid;not null;index" json:"agent_id"`
	UserMessage    string         `gorm:"type:text;not null" json:"user_message"`
	AgentResponse  string         `gorm:"type:text;not null" json:"agent_response"`
	TokensUsed     int            `json:"tokens_used"`
	ResponseTimeMs int            `json:"response_time_ms"`
	RagContext     datatypes.JSON `gorm:"type:json" json:"rag_context,omitempty"`
	Timestamp      time.Time      `gorm:"autoCreateTime" json:"timestamp"`
}

// TableName pins the storage table for Conversation.
func (Conversation) TableName() string {
	return "conversations"
}

// APIUsage tracks provider spend per chat call.
type APIUsage struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	AgentID     string    `gorm:"type:uuid;not null;index" json:"agent_id"`
	APIProvider string    `gorm:"size:50;not null" json:"api_provider"`
	Model       string    `gorm:"size:100;not null" json:"model"`
	TokensUsed  int       `json:"tokens_used"`
	CostUSD     string    `gorm:"size:32" json:"cost_usd"`
	Timestamp   time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

// TableName pins the storage table for APIUsage.
func (APIUsage) TableName() string {
	return "api_usage"
}
