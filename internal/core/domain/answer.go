package domain

import "time"

// WarningKind classifies a non-fatal condition recorded against a result.
type WarningKind string

// Available warning kinds.
const (
	WarningOCRPartialFailure   WarningKind = "ocr_partial_failure"
	WarningOCRLanguageFallback WarningKind = "ocr_language_fallback"
	WarningEmptyDocument       WarningKind = "empty_document"
	WarningEmbeddingExcluded   WarningKind = "embedding_excluded"
	WarningCacheCorruption     WarningKind = "cache_corruption"
	WarningContextTruncated    WarningKind = "context_truncated"
)

// Warning is a recoverable condition absorbed by a pipeline stage.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`

	// Pages lists affected page indices, if any.
	Pages []int `json:"pages,omitempty"`

	// Chunks lists affected chunk indices, if any.
	Chunks []int `json:"chunks,omitempty"`
}

// Answer is the result of asking a question of an indexed document.
type Answer struct {
	Question string `json:"question"`

	// Text is the language model completion. Empty unless Outcome is matched.
	Text string `json:"text"`

	// Citations are the chunks included in the prompt, by descending score.
	Citations []ScoredChunk `json:"citations"`

	// Warnings carries document warnings plus any raised while answering.
	Warnings []Warning `json:"warnings,omitempty"`

	Outcome RetrievalOutcome `json:"outcome"`

	// Model is the language model that produced Text.
	Model string `json:"model,omitempty"`

	// Duration is the wall time spent answering.
	Duration time.Duration `json:"duration"`
}
