package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/logger"
	"github.com/custodia-labs/scanqa/internal/util"
)

// BatchEmbedder embeds chunks in batches against an embedding provider.
// Batches run concurrently, are paced by a rate limiter and retried with
// backoff. A batch that still fails excludes its chunks instead of failing
// the document.
type BatchEmbedder struct {
	svc     driven.EmbeddingService
	retry   domain.RetryPolicy
	limiter *rate.Limiter
}

// NewBatchEmbedder creates a batch embedder. A non-positive
// requestsPerSecond disables pacing.
func NewBatchEmbedder(svc driven.EmbeddingService, retry domain.RetryPolicy, requestsPerSecond float64) *BatchEmbedder {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	return &BatchEmbedder{
		svc:     svc,
		retry:   retry,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// ModelName returns the provider's model, or "" if no provider is configured.
func (e *BatchEmbedder) ModelName() string {
	if e == nil || e.svc == nil {
		return ""
	}
	return e.svc.ModelName()
}

// Dimensions returns the provider's vector length, or 0 if unknown.
func (e *BatchEmbedder) Dimensions() int {
	if e == nil || e.svc == nil {
		return 0
	}
	return e.svc.Dimensions()
}

func (e *BatchEmbedder) ready(cfg domain.PipelineConfig) error {
	if e == nil || e.svc == nil {
		return domain.ErrEmbeddingUnavailable
	}
	if cfg.EmbeddingModel != "" && cfg.EmbeddingModel != e.svc.ModelName() {
		return fmt.Errorf("%w: pipeline expects embedding model %q but the provider serves %q",
			domain.ErrConfigurationMismatch, cfg.EmbeddingModel, e.svc.ModelName())
	}
	return nil
}

// EmbedChunks returns one vector per embeddable chunk, ordered by chunk index.
// Vectors in previous are reused when they were produced by the same model.
func (e *BatchEmbedder) EmbedChunks(
	ctx context.Context,
	chunks []domain.Chunk,
	cfg domain.PipelineConfig,
	previous *domain.EmbeddingSet,
) (domain.EmbeddingSet, []domain.Warning, error) {
	if err := e.ready(cfg); err != nil {
		return domain.EmbeddingSet{}, nil, err
	}
	defer logger.Timed("embedding")()

	model := e.svc.ModelName()
	set := domain.EmbeddingSet{Model: model, Dimensions: e.svc.Dimensions()}
	if len(chunks) == 0 {
		return set, nil, nil
	}

	reused := e.reusable(previous, model)
	var pending []domain.Chunk
	for _, c := range chunks {
		if v, ok := reused[c.Index]; ok {
			set.Vectors = append(set.Vectors, domain.ChunkVector{ChunkIndex: c.Index, Vector: v})
			continue
		}
		pending = append(pending, c)
	}
	logger.Debug("Embedding %d chunks (%d reused) with %s", len(pending), len(set.Vectors), model)

	batches := splitBatches(pending, max(1, cfg.EmbeddingBatchSize))
	results := make([][][]float32, len(batches))
	batchErrs := make([]error, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.EmbeddingConcurrency))
	for i, batch := range batches {
		g.Go(func() error {
			vecs, err := e.embedBatch(gctx, batch)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if errors.Is(err, domain.ErrConfigurationMismatch) {
					return err
				}
				batchErrs[i] = err
				return nil
			}
			results[i] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.EmbeddingSet{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingSet{}, nil, err
	}

	var excluded []int
	var firstErr error
	for i, batch := range batches {
		if batchErrs[i] != nil {
			if firstErr == nil {
				firstErr = batchErrs[i]
			}
			for _, c := range batch {
				excluded = append(excluded, c.Index)
			}
			continue
		}
		for j, c := range batch {
			set.Vectors = append(set.Vectors, domain.ChunkVector{ChunkIndex: c.Index, Vector: results[i][j]})
		}
	}

	if len(set.Vectors) == 0 && firstErr != nil {
		return domain.EmbeddingSet{}, nil, classify(domain.ErrEmbeddingProvider, firstErr)
	}

	sort.Slice(set.Vectors, func(a, b int) bool {
		return set.Vectors[a].ChunkIndex < set.Vectors[b].ChunkIndex
	})
	dims, err := checkDimensions(set.Vectors, set.Dimensions)
	if err != nil {
		return domain.EmbeddingSet{}, nil, err
	}
	set.Dimensions = dims

	var warnings []domain.Warning
	if len(excluded) > 0 {
		sort.Ints(excluded)
		w := domain.Warning{
			Kind: domain.WarningEmbeddingExcluded,
			Message: fmt.Sprintf("embedding failed for %d of %d chunks, excluded from retrieval: %v",
				len(excluded), len(chunks), firstErr),
			Chunks: excluded,
		}
		logger.Warn("%s", w.Message)
		warnings = append(warnings, w)
	}
	return set, warnings, nil
}

// EmbedQuery embeds a question under the same retry policy and pacing.
func (e *BatchEmbedder) EmbedQuery(ctx context.Context, text string, cfg domain.PipelineConfig) ([]float32, error) {
	if err := e.ready(cfg); err != nil {
		return nil, err
	}

	var vec []float32
	err := util.Do(ctx, e.retry, isRetryable, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		v, err := e.svc.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, classify(domain.ErrEmbeddingProvider, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty query vector", domain.ErrEmbeddingProvider)
	}
	return vec, nil
}

func (e *BatchEmbedder) embedBatch(ctx context.Context, batch []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	var out [][]float32
	err := util.Do(ctx, e.retry, isRetryable, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		vecs, err := e.svc.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("%w: provider returned %d vectors for %d inputs",
				domain.ErrEmbeddingProvider, len(vecs), len(texts))
		}
		out = vecs
		return nil
	})
	return out, err
}

// reusable returns the vectors of previous that can stand in for fresh ones.
func (e *BatchEmbedder) reusable(previous *domain.EmbeddingSet, model string) map[int][]float32 {
	if previous == nil || previous.Model != model {
		return nil
	}
	if dims := e.svc.Dimensions(); dims > 0 && previous.Dimensions != dims {
		return nil
	}
	return previous.Lookup()
}

func splitBatches(chunks []domain.Chunk, size int) [][]domain.Chunk {
	var batches [][]domain.Chunk
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		batches = append(batches, chunks[start:end])
	}
	return batches
}

// checkDimensions verifies all vectors share one length, matching want
// when want is known, and returns that length.
func checkDimensions(vectors []domain.ChunkVector, want int) (int, error) {
	dims := want
	for _, v := range vectors {
		if len(v.Vector) == 0 {
			return 0, fmt.Errorf("%w: empty vector for chunk %d", domain.ErrConfigurationMismatch, v.ChunkIndex)
		}
		if dims == 0 {
			dims = len(v.Vector)
			continue
		}
		if len(v.Vector) != dims {
			return 0, fmt.Errorf("%w: vector for chunk %d has %d dimensions, expected %d",
				domain.ErrConfigurationMismatch, v.ChunkIndex, len(v.Vector), dims)
		}
	}
	return dims, nil
}
