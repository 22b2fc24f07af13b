package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/logger"
)

// Retriever ranks the chunks of an indexed document against a question.
type Retriever struct {
	embedder *BatchEmbedder
}

// NewRetriever creates a retriever that embeds questions with embedder.
func NewRetriever(embedder *BatchEmbedder) *Retriever {
	return &Retriever{embedder: embedder}
}

// Retrieve returns up to cfg.TopK chunks by descending similarity.
// A document with zero chunks yields outcome no_content with
// domain.ErrNoContent. When cfg.MinScore removes every hit the result has
// outcome no_match and a nil error.
func (r *Retriever) Retrieve(
	ctx context.Context, h *domain.DocumentHandle, question string, cfg domain.PipelineConfig,
) (*domain.RetrievalResult, error) {
	question = strings.TrimSpace(question)
	if h == nil {
		return nil, fmt.Errorf("%w: document handle is required", domain.ErrInvalidInput)
	}
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidConfig, cfg.TopK)
	}
	if h.Closed() {
		return nil, domain.ErrHandleClosed
	}

	result := &domain.RetrievalResult{Question: question, Chunks: []domain.ScoredChunk{}}
	if h.Empty() || h.Index == nil || h.Index.Len() == 0 {
		result.Outcome = domain.OutcomeNoContent
		return result, fmt.Errorf("%w: %s has no indexed text", domain.ErrNoContent, h.Document.Path)
	}

	model := r.embedder.ModelName()
	if model == "" {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if model != h.EmbeddingModel {
		return nil, fmt.Errorf("%w: document was indexed with %q but questions are embedded with %q",
			domain.ErrConfigurationMismatch, h.EmbeddingModel, model)
	}
	if cfg.EmbeddingModel != "" && cfg.EmbeddingModel != h.EmbeddingModel {
		return nil, fmt.Errorf("%w: document was indexed with %q, configuration asks for %q",
			domain.ErrConfigurationMismatch, h.EmbeddingModel, cfg.EmbeddingModel)
	}

	query, err := r.embedder.EmbedQuery(ctx, question, cfg)
	if err != nil {
		return nil, err
	}
	if len(query) != h.Index.Dimensions() {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrConfigurationMismatch, len(query), h.Index.Dimensions())
	}

	k := min(cfg.TopK, h.Index.Len())
	hits, err := h.Index.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	for _, hit := range hits {
		if hit.Similarity < cfg.MinScore {
			continue
		}
		chunk, ok := h.Chunk(hit.ChunkIndex)
		if !ok {
			return nil, fmt.Errorf("%w: index references chunk %d of %d",
				domain.ErrConfigurationMismatch, hit.ChunkIndex, len(h.Chunks))
		}
		result.Chunks = append(result.Chunks, domain.ScoredChunk{Chunk: chunk, Score: hit.Similarity})
	}

	if len(result.Chunks) == 0 {
		logger.Debug("No chunk scored at least %.3f", cfg.MinScore)
		result.Outcome = domain.OutcomeNoMatch
		return result, nil
	}
	result.Outcome = domain.OutcomeMatched
	logger.Debug("Retrieved %d of %d chunks (top score %.3f)", len(result.Chunks), h.Index.Len(), result.Chunks[0].Score)
	return result, nil
}
