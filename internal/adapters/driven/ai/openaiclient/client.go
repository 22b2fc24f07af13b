// Package openaiclient builds go-openai clients shared by the OpenAI
// embedding and LLM adapters and maps their errors onto util.HTTPError.
package openaiclient

import (
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/scanqa/internal/util"
)

// Provider is the provider name used in error messages.
const Provider = "openai"

// DefaultBaseURL is the OpenAI API base URL.
const DefaultBaseURL = "https://api.openai.com/v1"

// New creates a client for apiKey. An empty baseURL keeps the OpenAI default;
// any OpenAI-compatible endpoint can be used instead.
func New(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(cfg)
}

// WrapError converts go-openai API and request errors into *util.HTTPError
// so callers can classify them by status. Other errors are returned as is.
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &util.HTTPError{
			Provider: Provider,
			Code:     apiErr.HTTPStatusCode,
			Message:  apiErr.Message,
			Err:      err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &util.HTTPError{
			Provider: Provider,
			Code:     reqErr.HTTPStatusCode,
			Message:  reqErr.HTTPStatus,
			Err:      err,
		}
	}
	return err
}
