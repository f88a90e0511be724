package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an exact brute-force Store kept entirely in memory. It is
// the reference implementation for correctness: a linear cosine scan over one
// owner's records, with each ReplaceAll swapping the owner's slice in a
// single critical section so readers see whole generations only.
//
// MemoryStore is safe for concurrent use by multiple goroutines.
type MemoryStore struct {
	mu         sync.RWMutex
	owners     map[string][]VectorRecord
	dimensions int
}

// NewMemoryStore creates an empty store. A positive dimensions value makes
// ReplaceAll reject records whose embedding length differs — a mismatched
// dimensionality is a fatal ingestion error, not a silent truncation.
func NewMemoryStore(dimensions int) *MemoryStore {
	return &MemoryStore{
		owners:     make(map[string][]VectorRecord),
		dimensions: dimensions,
	}
}

// ReplaceAll atomically supersedes owner's previous generation with records.
// An empty batch leaves the owner with no records.
func (s *MemoryStore) ReplaceAll(ctx context.Context, owner string, records []VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, record := range records {
		if len(record.Embedding) == 0 || isZeroVector(record.Embedding) {
			return fmt.Errorf("%w: record %d", ErrInvalidVector, i)
		}
		if s.dimensions > 0 && len(record.Embedding) != s.dimensions {
			return fmt.Errorf("rag: record %d has dimension %d, store expects %d", i, len(record.Embedding), s.dimensions)
		}
	}

	generation := make([]VectorRecord, len(records))
	copy(generation, records)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(generation) == 0 {
		delete(s.owners, owner)
		return nil
	}
	s.owners[owner] = generation
	return nil
}

// Search scans owner's records and returns the topK nearest by cosine
// distance, ascending, ties broken by insertion order.
func (s *MemoryStore) Search(ctx context.Context, owner string, query []float32, topK int) ([]RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) == 0 || isZeroVector(query) {
		return nil, ErrInvalidVector
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	s.mu.RLock()
	generation := s.owners[owner]
	s.mu.RUnlock()

	if len(generation) == 0 {
		return []RetrievalResult{}, nil
	}

	results := make([]RetrievalResult, 0, len(generation))
	for _, record := range generation {
		distance, err := CosineDistance(query, record.Embedding)
		if err != nil {
			return nil, err
		}
		results = append(results, RetrievalResult{
			ChunkText: record.ChunkText,
			Distance:  distance,
			Metadata:  record.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteAll removes every record for owner.
func (s *MemoryStore) DeleteAll(ctx context.Context, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, owner)
	return nil
}

// Count reports the number of records owner currently holds.
func (s *MemoryStore) Count(ctx context.Context, owner string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.owners[owner])), nil
}
