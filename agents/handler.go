package agents

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"agentsandbox_back/rag"
)

const maxListLimit = 100

// Module aggregates the agent CRUD surface with the vector store it must
// cascade into when an agent is deleted.
type Module struct {
	db      *gorm.DB
	vectors rag.Store
}

type createAgentRequest struct {
	Name         string          `json:"name" binding:"required"`
	Type         string          `json:"type"`
	APIProvider  string          `json:"api_provider" binding:"required"`
	Model        string          `json:"model" binding:"required"`
	SystemPrompt *string         `json:"system_prompt"`
	ConfigJSON   json.RawMessage `json:"config_json"`
}

type updateAgentRequest struct {
	Name         *string         `json:"name"`
	APIProvider  *string         `json:"api_provider"`
	Model        *string         `json:"model"`
	SystemPrompt *string         `json:"system_prompt"`
	ConfigJSON   json.RawMessage `json:"config_json"`
	Status       *string         `json:"status"`
}

// RegisterRoutes migrates the agents table and mounts the CRUD endpoints.
func RegisterRoutes(router *gin.Engine, db *gorm.DB, vectors rag.Store) (*Module, error) {
	if router == nil {
		return nil, errors.New("agents: router is required")
	}
	if db == nil {
		return nil, errors.New("agents: database connection is required")
	}
	if vectors == nil {
		return nil, errors.New("agents: vector store is required")
	}

	if err := db.AutoMigrate(&Agent{}); err != nil {
		return nil, err
	}

	m := &Module{db: db, vectors: vectors}

	group := router.Group("/agents")
	group.POST("", m.handleCreate)
	group.GET("", m.handleList)
	group.GET("/:agent_id", m.handleGet)
	group.PUT("/:agent_id", m.handleUpdate)
	group.DELETE("/:agent_id", m.handleDelete)

	return m, nil
}

func (m *Module) handleCreate(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_BODY", "message": err.Error()}})
		return
	}

	agentType := strings.TrimSpace(req.Type)
	if agentType == "" {
		agentType = "chat"
	}

	agent := Agent{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Type:         agentType,
		APIProvider:  strings.ToLower(strings.TrimSpace(req.APIProvider)),
		Model:        strings.TrimSpace(req.Model),
		SystemPrompt: req.SystemPrompt,
		Status:       StatusActive,
	}
	if agent.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_NAME", "message": "name is required"}})
		return
	}
	if len(req.ConfigJSON) > 0 {
		if !json.Valid(req.ConfigJSON) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_CONFIG", "message": "config_json must be valid JSON"}})
			return
		}
		agent.ConfigJSON = datatypes.JSON(req.ConfigJSON)
	}

	if err := m.db.WithContext(c.Request.Context()).Create(&agent).Error; err != nil {
		log.Printf("agents: create failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "CREATE_FAILED", "message": "failed to create agent"}})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"agent": agent})
}

func (m *Module) handleList(c *gin.Context) {
	limit := maxListLimit
	var list []Agent
	if err := m.db.WithContext(c.Request.Context()).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		log.Printf("agents: list failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "LIST_FAILED", "message": "failed to list agents"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agents": list, "total": len(list)})
}

func (m *Module) handleGet(c *gin.Context) {
	agent, ok := m.loadAgent(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent})
}

func (m *Module) handleUpdate(c *gin.Context) {
	agent, ok := m.loadAgent(c)
	if !ok {
		return
	}

	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_BODY", "message": err.Error()}})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_NAME", "message": "name cannot be empty"}})
			return
		}
		updates["name"] = name
	}
	if req.APIProvider != nil {
		updates["api_provider"] = strings.ToLower(strings.TrimSpace(*req.APIProvider))
	}
	if req.Model != nil {
		updates["model"] = strings.TrimSpace(*req.Model)
	}
	if req.SystemPrompt != nil {
		updates["system_prompt"] = *req.SystemPrompt
	}
	if len(req.ConfigJSON) > 0 {
		if !json.Valid(req.ConfigJSON) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_CONFIG", "message": "config_json must be valid JSON"}})
			return
		}
		updates["config_json"] = datatypes.JSON(req.ConfigJSON)
	}
	if req.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Status))
		if status != StatusActive && status != StatusInactive && status != StatusError {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_STATUS", "message": "status must be active, inactive or error"}})
			return
		}
		updates["status"] = status
	}

	if err := m.db.WithContext(c.Request.Context()).
		Model(&Agent{}).
		Where("id = ?", agent.ID).
		Updates(updates).Error; err != nil {
		log.Printf("agents: update %s failed: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "UPDATE_FAILED", "message": "failed to update agent"}})
		return
	}

	var updated Agent
	if err := m.db.WithContext(c.Request.Context()).Take(&updated, "id = ?", agent.ID).Error; err != nil {
		log.Printf("agents: reload %s failed: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "UPDATE_FAILED", "message": "failed to load agent"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agent": updated})
}

// handleDelete removes the agent row and cascades into its knowledge base.
func (m *Module) handleDelete(c *gin.Context) {
	agent, ok := m.loadAgent(c)
	if !ok {
		return
	}

	if err := m.db.WithContext(c.Request.Context()).Delete(&Agent{}, "id = ?", agent.ID).Error; err != nil {
		log.Printf("agents: delete %s failed: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "DELETE_FAILED", "message": "failed to delete agent"}})
		return
	}

	if err := m.vectors.DeleteAll(c.Request.Context(), agent.ID); err != nil {
		log.Printf("agents: cascade vector delete for %s failed: %v", agent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "DELETE_FAILED", "message": "agent deleted but knowledge base cleanup failed"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "agent deleted", "agent_id": agent.ID})
}

func (m *Module) loadAgent(c *gin.Context) (*Agent, bool) {
	agentID := c.Param("agent_id")
	if _, err := uuid.Parse(agentID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_UUID", "message": "invalid agent ID format"}})
		return nil, false
	}

	var agent Agent
	if err := m.db.WithContext(c.Request.Context()).Take(&agent, "id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "AGENT_NOT_FOUND", "message": "agent not found"}})
		} else {
			log.Printf("agents: load %s failed: %v", agentID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "LOAD_FAILED", "message": "failed to load agent"}})
		}
		return nil, false
	}
	return &agent, true
}
