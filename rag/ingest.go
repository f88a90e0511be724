package rag

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultPipelineTimeout = 60 * time.Second

// PipelineConfig tunes chunking and retrieval policy. Zero values fall back
// to the deployment defaults.
type PipelineConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	Timeout      time.Duration
}

// Pipeline orchestrates ingestion (extract, chunk, batch-embed, replace) and
// retrieval (embed, search, format). Extractor and chunker are pure; the
// embedder and store are the only collaborators that touch I/O.
//
// Pipeline is stateless and safe for concurrent use. Callers must not run
// two Ingest calls for the same owner concurrently; the HTTP layer holds a
// per-agent lock for the duration of one upload.
type Pipeline struct {
	embedder Embedder
	store    Store
	cfg      PipelineConfig
}

// NewPipeline wires a pipeline over an embedder and a store.
func NewPipeline(embedder Embedder, store Store, cfg PipelineConfig) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPipelineTimeout
	}
	return &Pipeline{embedder: embedder, store: store, cfg: cfg}
}

// PipelineConfigFromEnv reads chunking policy from the environment:
// RAG_CHUNK_SIZE, RAG_CHUNK_OVERLAP, RAG_TOP_K, RAG_TIMEOUT_SECONDS.
func PipelineConfigFromEnv() PipelineConfig {
	cfg := PipelineConfig{
		ChunkSize: readIntEnv("RAG_CHUNK_SIZE", DefaultChunkSize),
		TopK:      readIntEnv("RAG_TOP_K", DefaultTopK),
		Timeout:   time.Duration(readIntEnv("RAG_TIMEOUT_SECONDS", 60)) * time.Second,
	}
	cfg.ChunkOverlap = DefaultChunkOverlap
	if raw := strings.TrimSpace(os.Getenv("RAG_CHUNK_OVERLAP")); raw != "" {
		cfg.ChunkOverlap = readIntEnv("RAG_CHUNK_OVERLAP", DefaultChunkOverlap)
	}
	return cfg
}

// Ingest runs one knowledge-base upload as a single unit: extract, chunk,
// batch-embed, then replace owner's previous generation in the store. If any
// stage before the store fails, the store is not touched and owner's prior
// generation remains fully intact. Returns the number of chunks stored.
func (p *Pipeline) Ingest(ctx context.Context, doc Document, owner string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	text, err := Extract(doc)
	if err != nil {
		return 0, stageErr(ErrExtraction, err)
	}

	chunks := ChunkText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, stageErr(ErrExtraction, ErrEmptyDocument)
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, stageErr(ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return 0, stageErr(ErrEmbedding, fmt.Errorf("vector count mismatch (expected %d, got %d)", len(chunks), len(vectors)))
	}

	now := time.Now().UTC()
	records := make([]VectorRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = VectorRecord{
			ID:        uuid.NewString(),
			Owner:     owner,
			ChunkText: chunk.Text,
			Embedding: vectors[i],
			Metadata: map[string]any{
				"filename":    doc.Name,
				"file_type":   string(doc.Format),
				"ordinal":     chunk.Ordinal,
				"chunk_count": len(chunks),
			},
			CreatedAt: now,
		}
	}

	if err := p.store.ReplaceAll(ctx, owner, records); err != nil {
		return 0, stageErr(ErrStore, err)
	}
	return len(records), nil
}

// DeleteKnowledgeBase removes every stored vector for owner.
func (p *Pipeline) DeleteKnowledgeBase(ctx context.Context, owner string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.store.DeleteAll(ctx, owner); err != nil {
		return stageErr(ErrStore, err)
	}
	return nil
}

// KnowledgeBaseSize reports how many chunks owner currently has stored.
func (p *Pipeline) KnowledgeBaseSize(ctx context.Context, owner string) (int64, error) {
	count, err := p.store.Count(ctx, owner)
	if err != nil {
		return 0, stageErr(ErrStore, err)
	}
	return count, nil
}
