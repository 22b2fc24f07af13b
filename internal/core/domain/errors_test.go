package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrInvalidConfig", ErrInvalidConfig},
		{"ErrOCRUnavailable", ErrOCRUnavailable},
		{"ErrOCRLanguageMissing", ErrOCRLanguageMissing},
		{"ErrOCRPartialFailure", ErrOCRPartialFailure},
		{"ErrEmptyDocument", ErrEmptyDocument},
		{"ErrNoContent", ErrNoContent},
		{"ErrNoMatch", ErrNoMatch},
		{"ErrHandleClosed", ErrHandleClosed},
		{"ErrConfigurationMismatch", ErrConfigurationMismatch},
		{"ErrEmbeddingProvider", ErrEmbeddingProvider},
		{"ErrLanguageModel", ErrLanguageModel},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrTimeout", ErrTimeout},
		{"ErrCacheCorruption", ErrCacheCorruption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrors_NoContentDistinctFromNoMatch(t *testing.T) {
	assert.False(t, errors.Is(ErrNoContent, ErrNoMatch))
	assert.False(t, errors.Is(ErrNoMatch, ErrNoContent))
}

func TestErrors_WrappedCausePreserved(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("%w: %w", ErrLanguageModel, cause)

	assert.True(t, errors.Is(err, ErrLanguageModel))
	assert.True(t, errors.Is(err, cause))
}

func TestPageError(t *testing.T) {
	cause := errors.New("tesseract exited 1")
	err := &PageError{Page: 2, Err: cause}

	assert.Equal(t, "page 3: tesseract exited 1", err.Error())
	assert.True(t, errors.Is(err, cause))

	var pe *PageError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &pe))
	assert.Equal(t, 2, pe.Page)
}
