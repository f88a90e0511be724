package llm

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
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModelID     = "gpt-4o-mini"
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
)

// ChatClient wraps the HTTP calls to an OpenAI-compatible chat completions
// API. The model is chosen per call from the agent's configuration.
type ChatClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
}

// NewChatClientFromEnv constructs a ChatClient using environment variables.
//
// Expected variables:
//   - LLM_API_KEY: required API key for the provider
//   - LLM_BASE_URL: optional override for the API base URL
//   - LLM_MODEL_ID: optional fallback model for agents without one
func NewChatClientFromEnv() (*ChatClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("llm: LLM_API_KEY environment variable is required")
	}

	baseURL := strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("llm: invalid base URL %q", baseURL)
	}

	modelID := strings.TrimSpace(os.Getenv("LLM_MODEL_ID"))
	if modelID == "" {
		modelID = defaultModelID
	}

	return &ChatClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		modelID:    modelID,
	}, nil
}

// ChatMessage represents a single turn in a chat conversation payload.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatResult carries the generated answer plus token and cost accounting.
type ChatResult struct {
	Content       string
	TokensUsed    int
	EstimatedCost string
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete issues one non-streaming completion call. An empty model falls
// back to the client's configured default.
func (c *ChatClient) Complete(ctx context.Context, model string, messages []ChatMessage) (*ChatResult, error) {
	if c == nil {
		return nil, errors.New("llm: chat client is not configured")
	}
	if len(messages) == 0 {
		return nil, errors.New("llm: at least one message is required")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = c.modelID
	}

	payload := chatCompletionRequest{
		Model:       model,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Messages:    make([]chatCompletionMessage, len(messages)),
	}
	for i, msg := range messages {
		payload.Messages[i] = chatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, fmt.Errorf("llm: encode completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, fmt.Errorf("llm: create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llm: completion API status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("llm: decode completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("llm: completion response contains no choices")
	}

	tokensUsed := 0
	if decoded.Usage != nil {
		tokensUsed = decoded.Usage.TotalTokens
	}

	return &ChatResult{
		Content:       decoded.Choices[0].Message.Content,
		TokensUsed:    tokensUsed,
		EstimatedCost: estimateCost(model, tokensUsed),
	}, nil
}

// costPer1KTokens holds approximate blended rates in USD. Unknown models use
// a middle-of-the-road fallback; the figure is advisory, for audit logs only.
var costPer1KTokens = map[string]float64{
	"gpt-4":         0.06,
	"gpt-4-turbo":   0.03,
	"gpt-4o":        0.01,
	"gpt-4o-mini":   0.001,
	"gpt-3.5-turbo": 0.002,
}

func estimateCost(model string, tokens int) string {
	rate, ok := costPer1KTokens[model]
	if !ok {
		rate = 0.03
	}
	cost := float64(tokens) / 1000 * rate
	return strconv.FormatFloat(cost, 'f', 6, 64)
}
