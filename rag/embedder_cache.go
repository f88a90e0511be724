package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultEmbeddingCacheTTL = 24 * time.Hour

// CachedEmbedder memoizes single-text embeddings in Redis. Only the
// query-time path is cached; batch ingestion always embeds fresh content.
// Cache failures degrade to the inner embedder, never to an error — the
// cache is an optimization, not a correctness dependency.
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
}

// NewCachedEmbedder wraps inner with a Redis cache. The model name is part
// of the key so switching models never serves stale vectors.
func NewCachedEmbedder(inner Embedder, client *redis.Client, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = defaultEmbeddingCacheTTL
	}
	return &CachedEmbedder{inner: inner, client: client, model: model, ttl: ttl}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var vector []float32
		if err := json.Unmarshal(raw, &vector); err == nil && len(vector) > 0 {
			return vector, nil
		}
	} else if err != redis.Nil {
		log.Printf("rag: embedding cache read failed: %v", err)
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(vector); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			log.Printf("rag: embedding cache write failed: %v", err)
		}
	}
	return vector, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return "rag:embed:" + hex.EncodeToString(sum[:])
}
