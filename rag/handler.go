package rag

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// MaxUploadBytes caps knowledge-base uploads. Oversized payloads are
// rejected at the transport before ingestion ever runs.
const MaxUploadBytes = 1 << 20

// Module exposes the RAG pipeline over HTTP and serializes ingestion per
// agent: concurrent uploads for distinct agents proceed independently, a
// second upload for the same agent waits for the first to finish.
type Module struct {
	pipeline *Pipeline

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// RegisterRoutes mounts the knowledge-base endpoints under /rag.
func RegisterRoutes(router *gin.Engine, pipeline *Pipeline) (*Module, error) {
	if router == nil {
		return nil, errors.New("rag: router is required")
	}
	if pipeline == nil {
		return nil, errors.New("rag: pipeline is required")
	}

	m := &Module{
		pipeline: pipeline,
		locks:    make(map[string]*sync.Mutex),
	}

	group := router.Group("/rag")
	group.POST("/upload", m.handleUpload)
	group.GET("/documents/:agent_id", m.handleDocuments)
	group.DELETE("/documents/:agent_id", m.handleDelete)

	return m, nil
}

// Pipeline returns the underlying pipeline for other modules (chat) to
// retrieve context through.
func (m *Module) Pipeline() *Pipeline {
	return m.pipeline
}

func (m *Module) ingestLock(agentID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[agentID] = lock
	}
	return lock
}

func (m *Module) handleUpload(c *gin.Context) {
	agentID := strings.TrimSpace(c.PostForm("agent_id"))
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "MISSING_AGENT_ID", "message": "agent_id form field is required"}})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "MISSING_FILE", "message": "file form field is required"}})
		return
	}
	defer file.Close()

	if header.Size > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": gin.H{"code": "FILE_TOO_LARGE", "message": "uploads are limited to 1 MiB"}})
		return
	}

	format, ok := FormatFromFilename(header.Filename)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "INVALID_FILE_TYPE",
			"message": "allowed file types: txt, json, pdf, docx",
		}})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "READ_FAILED", "message": "failed to read upload"}})
		return
	}
	if len(data) > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": gin.H{"code": "FILE_TOO_LARGE", "message": "uploads are limited to 1 MiB"}})
		return
	}

	doc := Document{Name: header.Filename, Format: format, Data: data}

	lock := m.ingestLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	count, err := m.pipeline.Ingest(c.Request.Context(), doc, agentID)
	if err != nil {
		log.Printf("rag: ingest for agent %s failed: %v", agentID, err)
		switch {
		case errors.Is(err, ErrExtraction):
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "EXTRACTION_FAILED", "message": err.Error()}})
		case errors.Is(err, ErrTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": gin.H{"code": "UPLOAD_TIMEOUT", "message": "ingestion deadline exceeded"}})
		case errors.Is(err, ErrEmbedding):
			c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "EMBEDDING_FAILED", "message": "embedding provider rejected the request"}})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "UPLOAD_FAILED", "message": "failed to store knowledge base"}})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document_id":    "doc_" + agentID + "_" + header.Filename,
		"filename":       header.Filename,
		"chunks_created": count,
		"status":         "processed",
	})
}

func (m *Module) handleDocuments(c *gin.Context) {
	agentID := c.Param("agent_id")

	count, err := m.pipeline.KnowledgeBaseSize(c.Request.Context(), agentID)
	if err != nil {
		log.Printf("rag: count for agent %s failed: %v", agentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "LIST_FAILED", "message": "failed to inspect knowledge base"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent_id":           agentID,
		"has_knowledge_base": count > 0,
		"chunk_count":        count,
	})
}

func (m *Module) handleDelete(c *gin.Context) {
	agentID := c.Param("agent_id")

	if err := m.pipeline.DeleteKnowledgeBase(c.Request.Context(), agentID); err != nil {
		log.Printf("rag: delete for agent %s failed: %v", agentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "DELETE_FAILED", "message": "failed to delete knowledge base"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "knowledge base deleted successfully",
		"agent_id": agentID,
	})
}
