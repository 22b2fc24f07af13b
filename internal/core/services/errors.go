package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
)

// classify wraps a provider failure with kind and, where recognisable,
// with domain.ErrTimeout or domain.ErrRateLimited. The cause is preserved.
func classify(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}

	var se driven.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout):
		return fmt.Errorf("%w: %w: %w", kind, domain.ErrTimeout, err)
	case errors.As(err, &se) && se.StatusCode() == http.StatusTooManyRequests && !errors.Is(err, domain.ErrRateLimited):
		return fmt.Errorf("%w: %w: %w", kind, domain.ErrRateLimited, err)
	default:
		return fmt.Errorf("%w: %w", kind, err)
	}
}

// isRetryable reports whether a provider call is worth repeating.
// Client errors, mismatches and open breakers are permanent.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrConfigurationMismatch) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrInvalidConfig) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var se driven.StatusError
	if errors.As(err, &se) {
		switch se.StatusCode() {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
			http.StatusNotFound, http.StatusUnprocessableEntity:
			return false
		}
	}
	return true
}
