package rag

import (
	"context"
	"errors"
	"fmt"
)

// Extraction-level failures.
var (
	ErrDecode            = errors.New("rag: invalid text encoding")
	ErrParse             = errors.New("rag: malformed structured document")
	ErrUnsupportedFormat = errors.New("rag: unsupported document format")
	ErrEmptyDocument     = errors.New("rag: document contains no extractable text")
)

// Store-level failures.
var (
	ErrInvalidVector = errors.New("rag: cosine distance undefined for zero vector")
)

// Stage sentinels surfaced by the pipelines. Each wraps the underlying cause
// so callers can match both the stage and the root failure with errors.Is.
var (
	ErrExtraction = errors.New("rag: extraction failed")
	ErrEmbedding  = errors.New("rag: embedding failed")
	ErrStore      = errors.New("rag: vector store failed")
	ErrRetrieval  = errors.New("rag: retrieval failed")
	ErrTimeout    = errors.New("rag: operation deadline exceeded")
)

// ProviderError carries the embedding provider's status and reason for
// authentication failures, rate limiting, and malformed input.
type ProviderError struct {
	StatusCode int
	Reason     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("rag: embedding provider status %d: %s", e.StatusCode, e.Reason)
}

// stageErr tags err with the failing pipeline stage. Deadline expiry is
// additionally tagged with ErrTimeout so callers need not inspect context
// internals.
func stageErr(stage error, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", stage, ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", stage, err)
}
