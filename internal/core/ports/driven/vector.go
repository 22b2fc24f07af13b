package driven

import (
	"context"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// VectorIndex is a read-only nearest-neighbour structure over one document.
// It is built once and never mutated; Search must be safe for concurrent use.
// An approximate index can replace the exact one without changing callers.
type VectorIndex interface {
	domain.VectorSearcher

	// Kind names the implementation, e.g. "flat". Part of the cache key.
	Kind() string

	// MarshalBinary serialises the index for the artifact cache.
	MarshalBinary() ([]byte, error)
}

// IndexBuilder constructs vector indexes of one kind.
type IndexBuilder interface {
	// Kind names the indexes this builder produces.
	Kind() string

	// Build indexes the vectors. All vectors must be dims long.
	Build(ctx context.Context, dims int, vectors []domain.ChunkVector) (VectorIndex, error)

	// Load restores an index produced by MarshalBinary.
	// Returns domain.ErrCacheCorruption if data is malformed.
	Load(data []byte) (VectorIndex, error)
}
