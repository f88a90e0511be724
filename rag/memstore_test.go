package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRecords(owner string, embeddings ...[]float32) []VectorRecord {
	records := make([]VectorRecord, len(embeddings))
	for i, embedding := range embeddings {
		records[i] = VectorRecord{
			ID:        fmt.Sprintf("%s-%d", owner, i),
			Owner:     owner,
			ChunkText: fmt.Sprintf("chunk %d", i),
			Embedding: embedding,
			Metadata:  map[string]any{"ordinal": i},
		}
	}
	return records
}

func TestMemoryStoreReplaceAndCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	require.NoError(t, store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1",
		[]float32{1, 0}, []float32{0, 1}, []float32{1, 1})))

	count, err := store.Count(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestMemoryStoreReplaceSupersedesGeneration(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	require.NoError(t, store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1",
		[]float32{1, 0}, []float32{0, 1}, []float32{1, 1})))
	require.NoError(t, store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1",
		[]float32{1, 0}, []float32{0, 1}, []float32{1, 1}, []float32{2, 1}, []float32{1, 2})))

	count, err := store.Count(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestMemoryStoreReplaceWithEmptyBatchClears(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	require.NoError(t, store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1", []float32{1, 0})))
	require.NoError(t, store.ReplaceAll(ctx, "agent-1", nil))

	count, err := store.Count(ctx, "agent-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStoreRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	err := store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1", []float32{0, 0}))
	assert.ErrorIs(t, err, ErrInvalidVector)

	err = store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1", []float32{1, 2, 3}))
	assert.Error(t, err)

	// A rejected batch must not leave partial state behind.
	count, err := store.Count(ctx, "agent-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStoreSearchRanksByDistance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	require.NoError(t, store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1",
		[]float32{0, 1},    // orthogonal to query, distance 1
		[]float32{1, 0},    // identical direction, distance 0
		[]float32{-1, 0}))) // opposite, distance 2

	results, err := store.Search(ctx, "agent-1", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "chunk 1", results[0].ChunkText)
	assert.Equal(t, "chunk 0", results[1].ChunkText)
	assert.Equal(t, "chunk 2", results[2].ChunkText)
	assert.InDelta(t, 0, results[0].Distance, 1e-9)
	assert.InDelta(t, 2, results[2].Distance, 1e-9)
	assert.Equal(t, 1, results[0].Metadata["ordinal"])
}

func TestMemoryStoreSearchTopKTruncates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	require.NoError(t, store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1",
		[]float32{1, 0}, []float32{0, 1}, []float32{1, 1}, []float32{2, 1})))

	results, err := store.Search(ctx, "agent-1", []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// topK larger than the record count returns everything.
	results, err = store.Search(ctx, "agent-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 4)

	// Non-positive topK falls back to the default.
	results, err = store.Search(ctx, "agent-1", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
}

func TestMemoryStoreSearchUnknownOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	results, err := store.Search(ctx, "nobody", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStoreSearchRejectsZeroQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	_, err := store.Search(ctx, "agent-1", []float32{0, 0}, 3)
	assert.ErrorIs(t, err, ErrInvalidVector)

	_, err = store.Search(ctx, "agent-1", nil, 3)
	assert.ErrorIs(t, err, ErrInvalidVector)
}

func TestMemoryStoreSearchStableTieBreak(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	// Both records are equidistant from the query; insertion order decides.
	require.NoError(t, store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1",
		[]float32{1, 0}, []float32{2, 0})))

	results, err := store.Search(ctx, "agent-1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk 0", results[0].ChunkText)
	assert.Equal(t, "chunk 1", results[1].ChunkText)
}

func TestMemoryStoreOwnersAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	require.NoError(t, store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1", []float32{1, 0})))
	require.NoError(t, store.ReplaceAll(ctx, "agent-2", makeRecords("agent-2", []float32{0, 1}, []float32{1, 1})))

	results, err := store.Search(ctx, "agent-1", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, store.DeleteAll(ctx, "agent-1"))

	count, err := store.Count(ctx, "agent-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemoryStoreDeleteAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	require.NoError(t, store.ReplaceAll(ctx, "agent-1", makeRecords("agent-1", []float32{1, 0})))
	require.NoError(t, store.DeleteAll(ctx, "agent-1"))
	require.NoError(t, store.DeleteAll(ctx, "agent-1"))

	results, err := store.Search(ctx, "agent-1", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}
