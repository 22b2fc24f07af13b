package domain

import (
	"context"
	"sync"
	"time"
)

// Stage identifies a pipeline stage whose output is cached.
type Stage string

// Pipeline stages in execution order.
const (
	StageExtract Stage = "extract"
	StageChunk   Stage = "chunk"
	StageEmbed   Stage = "embed"
	StageIndex   Stage = "index"
)

// AllStages returns the stages in execution order.
func AllStages() []Stage {
	return []Stage{StageExtract, StageChunk, StageEmbed, StageIndex}
}

// IsValid returns true if the stage is recognised.
func (s Stage) IsValid() bool {
	switch s {
	case StageExtract, StageChunk, StageEmbed, StageIndex:
		return true
	default:
		return false
	}
}

// StageStatus records how a stage's output was obtained.
type StageStatus string

// Available stage statuses.
const (
	StageComputed StageStatus = "computed"
	StageCached   StageStatus = "cached"
	StageSkipped  StageStatus = "skipped"
)

// ArtifactKey identifies one cache entry.
type ArtifactKey struct {
	Fingerprint Fingerprint
	Stage       Stage
	ConfigHash  string
}

// ArtifactInfo describes a stored cache entry without its payload.
type ArtifactInfo struct {
	Key       ArtifactKey
	Size      int
	CreatedAt time.Time
}

// VectorSearcher is the read-only query side of a vector index.
// Implementations must be safe for concurrent Search calls.
type VectorSearcher interface {
	// Search returns up to k hits by descending similarity,
	// ties broken by ascending chunk index.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Dimensions returns the vector length.
	Dimensions() int
}

// DocumentHandle is an indexed document ready for questions.
// It is built by IndexDocument and must not be mutated afterwards.
type DocumentHandle struct {
	// ID is a unique identifier for this handle.
	ID string

	Document Document
	Config   PipelineConfig

	// Chunks is the authoritative chunk sequence.
	Chunks []Chunk

	// Index searches the chunks that have embeddings. Nil for empty documents.
	Index VectorSearcher

	// EmbeddingModel and Dimensions describe the vectors in Index.
	EmbeddingModel string
	Dimensions     int

	// PageCount and FailedPages come from extraction.
	PageCount   int
	FailedPages []int

	// Warnings are recoverable conditions recorded while indexing.
	Warnings []Warning

	// Stages records whether each stage was computed or restored.
	Stages map[Stage]StageStatus

	IndexedAt time.Time

	closeOnce sync.Once
	closed    bool
}

// Empty returns true if the document produced zero chunks.
func (h *DocumentHandle) Empty() bool {
	return len(h.Chunks) == 0
}

// Closed returns true after Close.
func (h *DocumentHandle) Closed() bool {
	return h.closed
}

// Chunk returns the chunk at sequence index i.
func (h *DocumentHandle) Chunk(i int) (Chunk, bool) {
	if i < 0 || i >= len(h.Chunks) {
		return Chunk{}, false
	}
	return h.Chunks[i], true
}

// Close drops the index. Retrieval against a closed handle fails with ErrHandleClosed.
func (h *DocumentHandle) Close() error {
	h.closeOnce.Do(func() {
		h.Index = nil
		h.closed = true
	})
	return nil
}
