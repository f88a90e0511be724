package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ivfflat probe/list sizing targets the low thousands of vectors per agent
// this system is built for; the index is an internal latency optimization and
// must agree with the exact scan on ranking at that scale.
const ivfflatLists = 100

// knowledgeVector is the persisted row shape. Position is monotonic within
// one generation and backs the stable tie-break on equal distances.
type knowledgeVector struct {
	ID        string          `gorm:"column:id;type:uuid;primaryKey"`
	AgentID   string          `gorm:"column:agent_id;type:uuid;not null;index"`
	ChunkText string          `gorm:"column:chunk_text;type:text;not null"`
	Embedding pgvector.Vector `gorm:"column:embedding"`
	Metadata  datatypes.JSON  `gorm:"column:metadata;type:jsonb"`
	Position  int64           `gorm:"column:position;not null"`
	CreatedAt time.Time       `gorm:"column:created_at"`
}

func (knowledgeVector) TableName() string {
	return "knowledge_vectors"
}

// PGStore is the production Store backed by PostgreSQL with the pgvector
// extension. ReplaceAll runs delete-then-insert inside one transaction, so
// concurrent readers see either the prior generation or the new one.
//
// PGStore is safe for concurrent use; per-owner ingest serialization is the
// request layer's concern.
type PGStore struct {
	db         *gorm.DB
	dimensions int
}

// NewPGStore wires a store over an open gorm connection. The fixed embedding
// dimensionality must be positive; it sizes the vector column and gates every
// write.
func NewPGStore(db *gorm.DB, dimensions int) (*PGStore, error) {
	if db == nil {
		return nil, errors.New("rag: database connection is required")
	}
	if dimensions <= 0 {
		return nil, errors.New("rag: vector dimensionality must be positive")
	}
	return &PGStore{db: db, dimensions: dimensions}, nil
}

// Migrate creates the vector extension, the knowledge_vectors table, and an
// ivfflat cosine index. Idempotent.
func (s *PGStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_vectors (
			id uuid PRIMARY KEY,
			agent_id uuid NOT NULL,
			chunk_text text NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata jsonb,
			position bigint NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_knowledge_vectors_agent ON knowledge_vectors (agent_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_knowledge_vectors_embedding
			ON knowledge_vectors USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, ivfflatLists),
	}
	for _, stmt := range statements {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("rag: migrate vector schema: %w", err)
		}
	}
	return nil
}

// ReplaceAll atomically supersedes owner's generation with records.
func (s *PGStore) ReplaceAll(ctx context.Context, owner string, records []VectorRecord) error {
	rows := make([]knowledgeVector, len(records))
	for i, record := range records {
		if len(record.Embedding) == 0 || isZeroVector(record.Embedding) {
			return fmt.Errorf("%w: record %d", ErrInvalidVector, i)
		}
		if len(record.Embedding) != s.dimensions {
			return fmt.Errorf("rag: record %d has dimension %d, store expects %d", i, len(record.Embedding), s.dimensions)
		}

		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("rag: encode record metadata: %w", err)
		}
		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		rows[i] = knowledgeVector{
			ID:        record.ID,
			AgentID:   owner,
			ChunkText: record.ChunkText,
			Embedding: pgvector.NewVector(record.Embedding),
			Metadata:  datatypes.JSON(metadata),
			Position:  int64(i),
			CreatedAt: createdAt,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("agent_id = ?", owner).Delete(&knowledgeVector{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
	if err != nil {
		return fmt.Errorf("rag: replace vectors for agent %s: %w", owner, err)
	}
	return nil
}

// Search runs a cosine nearest-neighbor query scoped to owner, ascending by
// distance with position as the stable tie-break.
func (s *PGStore) Search(ctx context.Context, owner string, query []float32, topK int) ([]RetrievalResult, error) {
	if len(query) == 0 || isZeroVector(query) {
		return nil, ErrInvalidVector
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("rag: query has dimension %d, store expects %d", len(query), s.dimensions)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	var rows []struct {
		ChunkText string         `gorm:"column:chunk_text"`
		Distance  float64        `gorm:"column:distance"`
		Metadata  datatypes.JSON `gorm:"column:metadata"`
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT chunk_text, embedding <=> ? AS distance, metadata
		 FROM knowledge_vectors
		 WHERE agent_id = ?
		 ORDER BY distance ASC, position ASC
		 LIMIT ?`,
		pgvector.NewVector(query), owner, topK,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("rag: vector search for agent %s: %w", owner, err)
	}

	results := make([]RetrievalResult, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]any
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
				metadata = nil
			}
		}
		results = append(results, RetrievalResult{
			ChunkText: row.ChunkText,
			Distance:  row.Distance,
			Metadata:  metadata,
		})
	}
	return results, nil
}

// DeleteAll removes every record for owner. Used when the agent itself is
// deleted.
func (s *PGStore) DeleteAll(ctx context.Context, owner string) error {
	if err := s.db.WithContext(ctx).Where("agent_id = ?", owner).Delete(&knowledgeVector{}).Error; err != nil {
		return fmt.Errorf("rag: delete vectors for agent %s: %w", owner, err)
	}
	return nil
}

// Count reports owner's stored record count.
func (s *PGStore) Count(ctx context.Context, owner string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&knowledgeVector{}).Where("agent_id = ?", owner).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("rag: count vectors for agent %s: %w", owner, err)
	}
	return count, nil
}
