package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultEmbeddingBaseURL = "https://api.openai.com/v1"
	defaultEmbeddingModel   = "text-embedding-3-small"
	defaultEmbeddingDim     = 1536
	defaultMaxBatch         = 16
	defaultRetryAttempts    = 3
)

// Embedder converts text into fixed-length float vectors. Embed serves the
// low-latency query path; EmbedBatch serves ingestion and returns vectors
// aligned by index with its input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingConfig configures the HTTP embedding client.
type EmbeddingConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Dimensions    int // expected vector length; mismatches are fatal
	MaxBatch      int // provider cap on items per call
	RetryAttempts int // bounded retry budget, rate limits only
	HTTPClient    *http.Client
}

// EmbeddingClient calls an OpenAI-compatible /embeddings endpoint. It is
// stateless and safe for concurrent use.
type EmbeddingClient struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	model         string
	dimensions    int
	maxBatch      int
	retryAttempts int
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     *int     `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewEmbeddingClient validates cfg and constructs a client. Zero-valued
// fields fall back to the deployment defaults.
func NewEmbeddingClient(cfg EmbeddingConfig) (*EmbeddingClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("rag: embedding API key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultEmbeddingBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("rag: invalid embedding base URL %q", baseURL)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultEmbeddingModel
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = defaultEmbeddingDim
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &EmbeddingClient{
		httpClient:    httpClient,
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		model:         model,
		dimensions:    dimensions,
		maxBatch:      maxBatch,
		retryAttempts: attempts,
	}, nil
}

// NewEmbeddingClientFromEnv constructs a client from environment variables.
//
// Expected variables:
//   - EMBEDDING_API_KEY: required provider API key
//   - EMBEDDING_BASE_URL: optional endpoint override
//   - EMBEDDING_MODEL_ID: optional model override
//   - EMBEDDING_DIMENSIONS, EMBEDDING_MAX_BATCH, EMBEDDING_RETRY_ATTEMPTS: optional tuning
func NewEmbeddingClientFromEnv() (*EmbeddingClient, error) {
	cfg := EmbeddingConfig{
		APIKey:        strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")),
		BaseURL:       strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")),
		Model:         strings.TrimSpace(os.Getenv("EMBEDDING_MODEL_ID")),
		Dimensions:    readIntEnv("EMBEDDING_DIMENSIONS", 0),
		MaxBatch:      readIntEnv("EMBEDDING_MAX_BATCH", 0),
		RetryAttempts: readIntEnv("EMBEDDING_RETRY_ATTEMPTS", 0),
	}
	return NewEmbeddingClient(cfg)
}

func readIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// Dimensions reports the fixed vector length this client produces.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

// ModelID reports the embedding model this client calls.
func (c *EmbeddingClient) ModelID() string {
	return c.model
}

// Embed generates a vector for a single text in one round trip.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates vectors for texts, splitting into sub-batches no
// larger than the provider cap and preserving overall order. Empty inputs
// are malformed and rejected up front.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &ProviderError{StatusCode: http.StatusBadRequest, Reason: "no input texts"}
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &ProviderError{StatusCode: http.StatusBadRequest, Reason: fmt.Sprintf("empty input at index %d", i)}
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.maxBatch {
		end := start + c.maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		batchVectors, err := c.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batchVectors...)
	}
	return vectors, nil
}

// embedWithRetry is an explicit bounded loop: rate-limit responses back off
// exponentially up to the attempt cap, every other failure propagates
// immediately. Cancellation interrupts the wait.
func (c *EmbeddingClient) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	delay := backoff.NewExponentialBackOff()
	delay.InitialInterval = 500 * time.Millisecond
	delay.MaxInterval = 8 * time.Second
	delay.MaxElapsedTime = 0

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		vectors, err := c.embedBatch(ctx, batch)
		if err == nil {
			return vectors, nil
		}

		var provErr *ProviderError
		if !errors.As(err, &provErr) || provErr.StatusCode != http.StatusTooManyRequests {
			return nil, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay.NextBackOff()):
		}
	}
	return nil, lastErr
}

func (c *EmbeddingClient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	payload := embeddingRequest{
		Model:          c.model,
		Input:          batch,
		EncodingFormat: "float",
	}
	if c.dimensions > 0 {
		dim := c.dimensions
		payload.Dimensions = &dim
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, fmt.Errorf("rag: encode embedding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("rag: create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Reason:     strings.TrimSpace(string(snippet)),
		}
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("rag: decode embedding response: %w", err)
	}
	if len(decoded.Data) != len(batch) {
		return nil, fmt.Errorf("rag: embedding response count mismatch (expected %d, got %d)", len(batch), len(decoded.Data))
	}

	vectors := make([][]float32, len(batch))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(batch) {
			return nil, fmt.Errorf("rag: embedding response index %d out of range", item.Index)
		}
		vector := make([]float32, len(item.Embedding))
		for i, value := range item.Embedding {
			vector[i] = float32(value)
		}
		if c.dimensions > 0 && len(vector) != c.dimensions {
			return nil, fmt.Errorf("rag: embedding length %d does not match configured dimension %d", len(vector), c.dimensions)
		}
		vectors[item.Index] = vector
	}
	for i, vector := range vectors {
		if vector == nil {
			return nil, fmt.Errorf("rag: embedding response missing index %d", i)
		}
	}
	return vectors, nil
}
