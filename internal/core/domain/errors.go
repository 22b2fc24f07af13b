package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent pipeline failures.
// Callers branch on them with errors.Is; adapters wrap them with the cause.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates a pipeline configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// OCR Errors.

	// ErrOCRUnavailable indicates the OCR engine or rasterizer cannot run at all.
	// Fatal for the document, recoverable by reconfiguration.
	ErrOCRUnavailable = errors.New("ocr unavailable")

	// ErrOCRLanguageMissing indicates the engine is installed but lacks the
	// requested language data. Always reported together with ErrOCRUnavailable.
	ErrOCRLanguageMissing = errors.New("ocr language data missing")

	// ErrOCRPartialFailure indicates some pages failed OCR.
	// Recorded as a warning; the document is still indexed.
	ErrOCRPartialFailure = errors.New("ocr partial failure")

	// Content Errors.

	// ErrEmptyDocument indicates no text could be extracted from the document.
	ErrEmptyDocument = errors.New("empty document")

	// ErrNoContent indicates a question was asked of a document with zero chunks.
	ErrNoContent = errors.New("no content")

	// ErrNoMatch indicates no chunk scored above the configured minimum.
	ErrNoMatch = errors.New("no relevant match")

	// ErrHandleClosed indicates a question was asked of a closed handle.
	ErrHandleClosed = errors.New("document handle closed")

	// Dependency Errors.

	// ErrConfigurationMismatch indicates vectors from different embedding
	// models or dimensions were mixed. The index must be rebuilt.
	ErrConfigurationMismatch = errors.New("configuration mismatch")

	// ErrEmbeddingProvider indicates the embedding provider failed after retries.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrLanguageModel indicates the language model failed after retries.
	ErrLanguageModel = errors.New("language model error")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates an external call exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Cache Errors.

	// ErrCacheCorruption indicates a cache entry could not be decoded or failed
	// its checksum. Treated as a miss by the pipeline, never fatal.
	ErrCacheCorruption = errors.New("cache corruption")
)

// PageError records an OCR failure for a single page.
type PageError struct {
	// Page is the zero-based page index.
	Page int

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page+1, e.Err)
}

// Unwrap returns the underlying error.
func (e *PageError) Unwrap() error {
	return e.Err
}
