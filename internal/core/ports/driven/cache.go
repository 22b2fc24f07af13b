package driven

import (
	"context"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// ArtifactCache persists serialized stage outputs.
// Entries are keyed by (fingerprint, stage, configuration hash) and must
// survive process restart for durable implementations.
type ArtifactCache interface {
	// Get returns the stored payload.
	// Returns domain.ErrNotFound if absent and domain.ErrCacheCorruption
	// if the entry exists but cannot be read back intact.
	Get(ctx context.Context, key domain.ArtifactKey) ([]byte, error)

	// Put stores or replaces the payload for key.
	Put(ctx context.Context, key domain.ArtifactKey, payload []byte) error

	// List enumerates the entries of one document.
	List(ctx context.Context, fp domain.Fingerprint) ([]domain.ArtifactInfo, error)

	// ListAll enumerates every entry.
	ListAll(ctx context.Context) ([]domain.ArtifactInfo, error)

	// Delete removes every entry of one document and returns how many were removed.
	Delete(ctx context.Context, fp domain.Fingerprint) (int, error)

	// Close releases resources.
	Close() error
}
