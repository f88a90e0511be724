package rag

import (
	"context"
	"fmt"
	"math"
	"time"
)

// DefaultTopK is the number of results a search returns when the caller
// passes a non-positive limit.
const DefaultTopK = 3

// VectorRecord is one stored chunk with its embedding. Records are owned
// exclusively by one agent, created during ingestion, and never mutated —
// only replaced wholesale or deleted.
type VectorRecord struct {
	ID        string
	Owner     string
	ChunkText string
	Embedding []float32
	Metadata  map[string]any
	CreatedAt time.Time
}

// RetrievalResult is one search hit, ordered ascending by cosine distance
// (smaller is more similar). Produced transiently per query, never persisted.
type RetrievalResult struct {
	ChunkText string
	Distance  float64
	Metadata  map[string]any
}

// Store persists vector records scoped by owner and answers nearest-neighbor
// queries by cosine distance.
//
// ReplaceAll deletes every record for owner and installs the new batch as one
// generation; concurrent readers observe either the old generation or the new
// one, never an empty or mixed state. Search returns at most topK results
// ascending by distance with ties broken by insertion order; an owner with
// zero records yields an empty result, not an error. A search issued after
// ReplaceAll returns must observe only the new generation.
type Store interface {
	ReplaceAll(ctx context.Context, owner string, records []VectorRecord) error
	Search(ctx context.Context, owner string, query []float32, topK int) ([]RetrievalResult, error)
	DeleteAll(ctx context.Context, owner string) error
	Count(ctx context.Context, owner string) (int64, error)
}

// CosineDistance computes 1 - (a·b)/(|a||b|), in [0, 2]. Zero vectors have
// no defined direction and are rejected with ErrInvalidVector.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("rag: vector length mismatch (%d vs %d)", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, ErrInvalidVector
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
