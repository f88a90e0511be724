package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"agentsandbox_back/agents"
	"agentsandbox_back/rag"
)

const (
	defaultSystemPrompt = "You are a helpful AI assistant."
	defaultAuditLimit   = 50
	maxAuditLimit       = 200
)

// Module serves chat turns: it loads the agent, pulls knowledge-base context
// through the retrieval pipeline, calls the completion provider, and logs
// the conversation with its token spend.
type Module struct {
	db       *gorm.DB
	client   *ChatClient
	pipeline *rag.Pipeline
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

// RegisterRoutes migrates the audit tables and mounts the chat endpoints.
func RegisterRoutes(router *gin.Engine, db *gorm.DB, client *ChatClient, pipeline *rag.Pipeline) (*Module, error) {
	if router == nil {
		return nil, errors.New("llm: router is required")
	}
	if db == nil {
		return nil, errors.New("llm: database connection is required")
	}
	if client == nil {
		return nil, errors.New("llm: chat client is required")
	}
	if pipeline == nil {
		return nil, errors.New("llm: retrieval pipeline is required")
	}

	if err := db.AutoMigrate(&Conversation{}, &APIUsage{}); err != nil {
		return nil, err
	}

	m := &Module{db: db, client: client, pipeline: pipeline}

	router.POST("/agents/:agent_id/chat", m.handleChat)
	router.GET("/agents/:agent_id/status", m.handleStatus)
	router.GET("/audit/logs", m.handleAuditLogs)
	router.GET("/audit/conversations/:agent_id", m.handleAgentConversations)

	return m, nil
}

func (m *Module) handleChat(c *gin.Context) {
	started := time.Now()

	agent, ok := m.loadAgent(c)
	if !ok {
		return
	}
	if agent.Status != agents.StatusActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "AGENT_INACTIVE",
			"message": fmt.Sprintf("agent is not active (status: %s)", agent.Status),
		}})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_BODY", "message": err.Error()}})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_BODY", "message": "message cannot be empty"}})
		return
	}

	ctx := c.Request.Context()

	// Retrieval only runs when the agent actually has a knowledge base; an
	// empty store is a normal state, not a failure.
	var ragContext []string
	size, err := m.pipeline.KnowledgeBaseSize(ctx, agent.ID)
	if err != nil {
		log.Printf("llm: knowledge base check for agent %s failed: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "CHAT_FAILED", "message": "failed to inspect knowledge base"}})
		return
	}
	if size > 0 {
		ragContext, err = m.pipeline.RetrieveContext(ctx, message, agent.ID, 0)
		if err != nil {
			// Retrieval does not silently degrade; an agent with a knowledge
			// base answers grounded or not at all.
			log.Printf("llm: retrieval for agent %s failed: %v", agent.ID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "RETRIEVAL_FAILED", "message": "failed to retrieve knowledge base context"}})
			return
		}
	}

	systemPrompt := defaultSystemPrompt
	if agent.SystemPrompt != nil && strings.TrimSpace(*agent.SystemPrompt) != "" {
		systemPrompt = *agent.SystemPrompt
	}

	messages := []ChatMessage{
		{Role: "system", Content: buildSystemContent(systemPrompt, ragContext)},
		{Role: "user", Content: message},
	}

	result, err := m.client.Complete(ctx, agent.Model, messages)
	if err != nil {
		log.Printf("llm: completion for agent %s failed: %v", agent.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "CHAT_FAILED", "message": "completion provider request failed"}})
		return
	}

	responseTimeMs := int(time.Since(started).Milliseconds())

	var contextJSON datatypes.JSON
	if len(ragContext) > 0 {
		if raw, err := json.Marshal(ragContext); err == nil {
			contextJSON = datatypes.JSON(raw)
		}
	}

	conversation := Conversation{
		ID:             uuid.NewString(),
		AgentID:        agent.ID,
		UserMessage:    message,
		AgentResponse:  result.Content,
		TokensUsed:     result.TokensUsed,
		ResponseTimeMs: responseTimeMs,
		RagContext:     contextJSON,
	}
	usage := APIUsage{
		ID:          uuid.NewString(),
		AgentID:     agent.ID,
		APIProvider: agent.APIProvider,
		Model:       agent.Model,
		TokensUsed:  result.TokensUsed,
		CostUSD:     result.EstimatedCost,
	}
	if err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conversation).Error; err != nil {
			return err
		}
		return tx.Create(&usage).Error
	}); err != nil {
		log.Printf("llm: audit log for agent %s failed: %v", agent.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"response":         result.Content,
		"tokens_used":      result.TokensUsed,
		"response_time_ms": responseTimeMs,
		"rag_context":      ragContext,
	})
}

// buildSystemContent appends retrieved snippets to the agent's system prompt
// as numbered document blocks.
func buildSystemContent(systemPrompt string, ragContext []string) string {
	if len(ragContext) == 0 {
		return systemPrompt
	}

	var builder strings.Builder
	builder.WriteString(systemPrompt)
	builder.WriteString("\n\nUse the following context to answer questions accurately:\n")
	for i, snippet := range ragContext {
		builder.WriteString(fmt.Sprintf("\n[Document %d]\n%s\n", i+1, snippet))
	}
	return builder.String()
}

func (m *Module) handleStatus(c *gin.Context) {
	agent, ok := m.loadAgent(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var conversationCount int64
	if err := m.db.WithContext(ctx).Model(&Conversation{}).Where("agent_id = ?", agent.ID).Count(&conversationCount).Error; err != nil {
		log.Printf("llm: conversation count for agent %s failed: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STATUS_FAILED", "message": "failed to load agent metrics"}})
		return
	}

	var totalTokens int64
	if err := m.db.WithContext(ctx).Model(&APIUsage{}).
		Where("agent_id = ?", agent.ID).
		Select("COALESCE(SUM(tokens_used), 0)").
		Scan(&totalTokens).Error; err != nil {
		log.Printf("llm: token total for agent %s failed: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STATUS_FAILED", "message": "failed to load agent metrics"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent_id":           agent.ID,
		"name":               agent.Name,
		"status":             agent.Status,
		"conversation_count": conversationCount,
		"total_tokens_used":  totalTokens,
		"created_at":         agent.CreatedAt,
	})
}

func (m *Module) handleAuditLogs(c *gin.Context) {
	limit := defaultAuditLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= maxAuditLimit {
			limit = parsed
		}
	}
	offset := 0
	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	query := m.db.WithContext(c.Request.Context()).
		Model(&Conversation{}).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset)
	if agentID := strings.TrimSpace(c.Query("agent_id")); agentID != "" {
		query = query.Where("agent_id = ?", agentID)
	}

	var conversations []Conversation
	if err := query.Find(&conversations).Error; err != nil {
		log.Printf("llm: audit log query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "LOGS_FAILED", "message": "failed to retrieve logs"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": conversations,
		"total":         len(conversations),
		"limit":         limit,
		"offset":        offset,
	})
}

// handleAgentConversations lists one agent's chat history, newest first.
func (m *Module) handleAgentConversations(c *gin.Context) {
	agent, ok := m.loadAgent(c)
	if !ok {
		return
	}

	limit := defaultAuditLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= maxAuditLimit {
			limit = parsed
		}
	}

	var conversations []Conversation
	if err := m.db.WithContext(c.Request.Context()).
		Where("agent_id = ?", agent.ID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&conversations).Error; err != nil {
		log.Printf("llm: conversation history for agent %s failed: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "LOGS_FAILED", "message": "failed to retrieve conversations"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent_id":      agent.ID,
		"conversations": conversations,
		"total":         len(conversations),
	})
}

func (m *Module) loadAgent(c *gin.Context) (*agents.Agent, bool) {
	agentID := c.Param("agent_id")
	if _, err := uuid.Parse(agentID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_UUID", "message": "invalid agent ID format"}})
		return nil, false
	}

	var agent agents.Agent
	if err := m.db.WithContext(c.Request.Context()).Take(&agent, "id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "AGENT_NOT_FOUND", "message": "agent not found"}})
		} else {
			log.Printf("llm: load agent %s failed: %v", agentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "LOAD_FAILED", "message": "failed to load agent"}})
		}
		return nil, false
	}
	return &agent, true
}
