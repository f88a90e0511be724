package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"agentsandbox_back/rag"
)

func newTestModule(t *testing.T) (*gin.Engine, *rag.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	store := rag.NewMemoryStore(3)
	router := gin.New()
	_, err = RegisterRoutes(router, db, store)
	require.NoError(t, err)
	return router, store
}

func createTestAgent(t *testing.T, router *gin.Engine) string {
	t.Helper()

	body, _ := json.Marshal(map[string]any{
		"name":         "support bot",
		"api_provider": "openai",
		"model":        "gpt-4o-mini",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/agents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var payload struct {
		Agent Agent `json:"agent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.NotEmpty(t, payload.Agent.ID)
	return payload.Agent.ID
}

func TestAgentCreateAndGet(t *testing.T) {
	router, _ := newTestModule(t)
	id := createTestAgent(t, router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agents/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Agent Agent `json:"agent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "support bot", payload.Agent.Name)
	assert.Equal(t, StatusActive, payload.Agent.Status)
	assert.Equal(t, "chat", payload.Agent.Type)
}

func TestAgentGetInvalidID(t *testing.T) {
	router, _ := newTestModule(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agents/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentCreateRejectsInvalidConfig(t *testing.T) {
	router, _ := newTestModule(t)

	body := []byte(`{"name":"x","api_provider":"openai","model":"gpt-4o","config_json":{bad}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/agents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentUpdateStatus(t *testing.T) {
	router, _ := newTestModule(t)
	id := createTestAgent(t, router)

	body := []byte(`{"status":"inactive"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/agents/"+id, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Agent Agent `json:"agent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, StatusInactive, payload.Agent.Status)
}

func TestAgentUpdateRejectsUnknownStatus(t *testing.T) {
	router, _ := newTestModule(t)
	id := createTestAgent(t, router)

	body := []byte(`{"status":"sleeping"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/agents/"+id, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentDeleteCascadesVectors(t *testing.T) {
	router, store := newTestModule(t)
	id := createTestAgent(t, router)

	ctx := context.Background()
	require.NoError(t, store.ReplaceAll(ctx, id, []rag.VectorRecord{
		{ID: "v1", Owner: id, ChunkText: "chunk", Embedding: []float32{1, 0, 0}},
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/agents/"+id, nil))
	require.Equal(t, http.StatusOK, w.Code)

	count, err := store.Count(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, count)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agents/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
