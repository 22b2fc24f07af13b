package driving

import (
	"context"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// PipelineService is the public entry point for indexing a scanned document
// and answering questions over it.
type PipelineService interface {
	// IndexDocument fingerprints the document at path and runs or restores
	// extract, chunk, embed and index. A document with no extractable text
	// returns a usable empty handle together with domain.ErrEmptyDocument.
	IndexDocument(ctx context.Context, path string, cfg domain.PipelineConfig) (*domain.DocumentHandle, error)

	// AnswerQuestion retrieves the top-k chunks and synthesises an answer.
	// An empty document yields an Answer with outcome no_content together
	// with domain.ErrNoContent.
	AnswerQuestion(
		ctx context.Context,
		handle *domain.DocumentHandle,
		question string,
		cfg domain.PipelineConfig,
	) (*domain.Answer, error)

	// Retrieve returns the ranked chunks for a question without synthesis.
	Retrieve(
		ctx context.Context,
		handle *domain.DocumentHandle,
		question string,
		cfg domain.PipelineConfig,
	) (*domain.RetrievalResult, error)
}

// CacheService enumerates and clears cached artifacts.
type CacheService interface {
	// Fingerprint returns the cache key of the document at path.
	Fingerprint(path string, mode domain.FingerprintMode) (domain.Fingerprint, error)

	// Artifacts lists the cache entries of one document, or all entries if fp is empty.
	Artifacts(ctx context.Context, fp domain.Fingerprint) ([]domain.ArtifactInfo, error)

	// Invalidate removes every cache entry of one document.
	Invalidate(ctx context.Context, fp domain.Fingerprint) (int, error)
}
