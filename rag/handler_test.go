package rag

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, embedder Embedder) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pipeline, _ := newTestPipeline(embedder, PipelineConfig{})
	router := gin.New()
	_, err := RegisterRoutes(router, pipeline)
	require.NoError(t, err)
	return router
}

func multipartUpload(t *testing.T, agentID, filename string, content []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if agentID != "" {
		require.NoError(t, writer.WriteField("agent_id", agentID))
	}
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/rag/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func TestUploadSuccess(t *testing.T) {
	router := newTestRouter(t, &stubEmbedder{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "agent-1", "notes.txt", []byte("Some useful knowledge.")))

	require.Equal(t, http.StatusCreated, w.Code)
	payload := decodeBody(t, w)
	assert.Equal(t, "notes.txt", payload["filename"])
	assert.Equal(t, "processed", payload["status"])
	assert.Equal(t, float64(1), payload["chunks_created"])
	assert.Equal(t, "doc_agent-1_notes.txt", payload["document_id"])
}

func TestUploadMissingAgentID(t *testing.T) {
	router := newTestRouter(t, &stubEmbedder{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "", "notes.txt", []byte("text")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	router := newTestRouter(t, &stubEmbedder{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "agent-1", "malware.exe", []byte("MZ")))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_FILE_TYPE")
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	router := newTestRouter(t, &stubEmbedder{})

	oversized := bytes.Repeat([]byte("a"), MaxUploadBytes+1)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "agent-1", "big.txt", oversized))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestUploadExtractionFailure(t *testing.T) {
	router := newTestRouter(t, &stubEmbedder{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "agent-1", "empty.txt", []byte("   ")))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "EXTRACTION_FAILED")
}

func TestUploadEmbeddingFailure(t *testing.T) {
	router := newTestRouter(t, &stubEmbedder{err: assert.AnError})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "agent-1", "notes.txt", []byte("text body")))

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "EMBEDDING_FAILED")
}

func TestDocumentsAndDeleteLifecycle(t *testing.T) {
	router := newTestRouter(t, &stubEmbedder{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartUpload(t, "agent-1", "notes.txt", []byte("Some useful knowledge.")))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rag/documents/agent-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	payload := decodeBody(t, w)
	assert.Equal(t, true, payload["has_knowledge_base"])
	assert.Equal(t, float64(1), payload["chunk_count"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/rag/documents/agent-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rag/documents/agent-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	payload = decodeBody(t, w)
	assert.Equal(t, false, payload["has_knowledge_base"])
}
