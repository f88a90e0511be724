package rag

import "context"

// Retrieve embeds the query, searches owner's vectors, and returns ranked
// results. An embedding failure fails the whole retrieval; whether to answer
// without context is the caller's policy, not this pipeline's. Fewer than
// topK matches — including none at all — is a successful outcome.
func (p *Pipeline) Retrieve(ctx context.Context, query, owner string, topK int) ([]RetrievalResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if topK <= 0 {
		topK = p.cfg.TopK
	}

	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, stageErr(ErrRetrieval, stageErr(ErrEmbedding, err))
	}

	results, err := p.store.Search(ctx, owner, vector, topK)
	if err != nil {
		return nil, stageErr(ErrRetrieval, stageErr(ErrStore, err))
	}
	return results, nil
}

// RetrieveContext returns ready-to-insert context snippets in rank order.
func (p *Pipeline) RetrieveContext(ctx context.Context, query, owner string, topK int) ([]string, error) {
	results, err := p.Retrieve(ctx, query, owner, topK)
	if err != nil {
		return nil, err
	}

	snippets := make([]string, len(results))
	for i, result := range results {
		snippets[i] = result.ChunkText
	}
	return snippets, nil
}
