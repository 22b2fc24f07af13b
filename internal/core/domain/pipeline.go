package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// ChunkBoundary selects how chunk windows end.
type ChunkBoundary string

// Available chunk boundary modes.
const (
	// BoundaryChar cuts windows at exact character offsets.
	BoundaryChar ChunkBoundary = "char"

	// BoundarySeparator pulls a window end back to the nearest paragraph,
	// sentence (including the Bangla danda), line or word separator.
	BoundarySeparator ChunkBoundary = "separator"
)

// IsValid returns true if the boundary mode is recognised.
func (b ChunkBoundary) IsValid() bool {
	return b == BoundaryChar || b == BoundarySeparator
}

// BudgetUnit selects how the context budget is measured.
type BudgetUnit string

// Available budget units.
const (
	// BudgetChars counts characters (runes).
	BudgetChars BudgetUnit = "chars"

	// BudgetTokens counts tokens with the language model's tokenizer.
	BudgetTokens BudgetUnit = "tokens"
)

// IsValid returns true if the unit is recognised.
func (u BudgetUnit) IsValid() bool {
	return u == BudgetChars || u == BudgetTokens
}

// Default pipeline values.
const (
	DefaultChunkSize            = 500
	DefaultChunkOverlap         = 100
	DefaultTopK                 = 3
	DefaultContextBudget        = 4000
	DefaultEmbeddingModel       = "text-embedding-3-small"
	DefaultEmbeddingBatchSize   = 64
	DefaultEmbeddingConcurrency = 4
	DefaultOCREngine            = "tesseract"
	DefaultOCRLanguage          = "ben"
	DefaultOCRDPI               = 300
	DefaultOCRConcurrency       = 4
	DefaultIndexKind            = "flat"

	// DefaultMinScore keeps every hit; cosine similarity is never below -1.
	DefaultMinScore = -1.0
)

// PipelineConfig enumerates every option recognised by the pipeline.
// Call Validate before use; the pipeline entry points reject invalid values.
type PipelineConfig struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by adjacent chunks.
	// Must be strictly less than ChunkSize.
	ChunkOverlap int

	// ChunkBoundary selects exact or separator-aware window ends.
	ChunkBoundary ChunkBoundary

	// EmbeddingModel identifies the embedding model. Part of the cache key.
	EmbeddingModel string

	// EmbeddingBatchSize bounds the number of texts per embedding request.
	EmbeddingBatchSize int

	// EmbeddingConcurrency bounds in-flight embedding requests.
	EmbeddingConcurrency int

	// TopK is the number of chunks retrieved per question.
	TopK int

	// MinScore drops retrieved chunks scoring below it. Zero keeps all.
	MinScore float64

	// ContextBudget is the maximum combined size of prompt context.
	ContextBudget int

	// BudgetUnit selects characters or tokens for ContextBudget.
	BudgetUnit BudgetUnit

	// OCREngine names the OCR engine. Part of the cache key.
	OCREngine string

	// OCRLanguage is the OCR language code, e.g. "ben" or "eng".
	OCRLanguage string

	// OCRDPI is the page raster resolution.
	OCRDPI int

	// OCRConcurrency bounds pages recognised in parallel.
	OCRConcurrency int

	// IndexKind names the vector index implementation.
	IndexKind string

	// FingerprintMode selects content or stat hashing.
	FingerprintMode FingerprintMode
}

// DefaultPipelineConfig returns the defaults used for Bangla scans.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ChunkSize:            DefaultChunkSize,
		ChunkOverlap:         DefaultChunkOverlap,
		ChunkBoundary:        BoundaryChar,
		EmbeddingModel:       DefaultEmbeddingModel,
		EmbeddingBatchSize:   DefaultEmbeddingBatchSize,
		EmbeddingConcurrency: DefaultEmbeddingConcurrency,
		TopK:                 DefaultTopK,
		MinScore:             DefaultMinScore,
		ContextBudget:        DefaultContextBudget,
		BudgetUnit:           BudgetChars,
		OCREngine:            DefaultOCREngine,
		OCRLanguage:          DefaultOCRLanguage,
		OCRDPI:               DefaultOCRDPI,
		OCRConcurrency:       DefaultOCRConcurrency,
		IndexKind:            DefaultIndexKind,
		FingerprintMode:      FingerprintContent,
	}
}

// Validate rejects non-positive sizes and overlap >= chunk size.
func (c PipelineConfig) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"chunk_size", c.ChunkSize},
		{"top_k", c.TopK},
		{"context_budget", c.ContextBudget},
		{"embedding_batch_size", c.EmbeddingBatchSize},
		{"embedding_concurrency", c.EmbeddingConcurrency},
		{"ocr_dpi", c.OCRDPI},
		{"ocr_concurrency", c.OCRConcurrency},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.value)
		}
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap (%d) must be less than chunk_size (%d)",
			ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model is required", ErrInvalidConfig)
	}
	if c.OCREngine == "" || c.OCRLanguage == "" {
		return fmt.Errorf("%w: ocr engine and language are required", ErrInvalidConfig)
	}
	if !c.ChunkBoundary.IsValid() {
		return fmt.Errorf("%w: unknown chunk boundary %q", ErrInvalidConfig, c.ChunkBoundary)
	}
	if !c.BudgetUnit.IsValid() {
		return fmt.Errorf("%w: unknown budget unit %q", ErrInvalidConfig, c.BudgetUnit)
	}
	if !c.FingerprintMode.IsValid() {
		return fmt.Errorf("%w: unknown fingerprint mode %q", ErrInvalidConfig, c.FingerprintMode)
	}
	if c.MinScore < -1 || c.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be within [-1, 1], got %g", ErrInvalidConfig, c.MinScore)
	}
	if c.IndexKind == "" {
		return fmt.Errorf("%w: index kind is required", ErrInvalidConfig)
	}
	return nil
}

// StageHash returns the configuration hash for a stage's cache entry.
// Hashes are chained so a change to an upstream option invalidates every
// downstream stage, while a change to the embedding model leaves the
// extract and chunk hashes untouched.
func (c PipelineConfig) StageHash(stage Stage) string {
	extract := hashParts("extract", c.OCREngine, c.OCRLanguage, strconv.Itoa(c.OCRDPI))
	if stage == StageExtract {
		return extract
	}
	chunk := hashParts("chunk", extract,
		strconv.Itoa(c.ChunkSize), strconv.Itoa(c.ChunkOverlap), string(c.ChunkBoundary))
	if stage == StageChunk {
		return chunk
	}
	embed := hashParts("embed", chunk, c.EmbeddingModel)
	if stage == StageEmbed {
		return embed
	}
	return hashParts("index", embed, c.IndexKind)
}

func hashParts(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Default retry values for external calls.
const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultCallTimeout  = 60 * time.Second
)

// RetryPolicy bounds an external call. Every OCR, embedding and language
// model call runs under one.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int

	// BaseDelay is the initial backoff, doubled on each retry.
	BaseDelay time.Duration

	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// DefaultRetryPolicy returns 3 retries, 500ms base backoff and a 60s timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultRetryBackoff,
		Timeout:    DefaultCallTimeout,
	}
}

// Validate rejects negative retries and non-positive timeouts.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("%w: retry backoff must not be negative", ErrInvalidConfig)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Attempts returns the total number of attempts allowed.
func (p RetryPolicy) Attempts() int {
	return p.MaxRetries + 1
}
