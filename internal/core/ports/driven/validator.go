package driven

import (
	"context"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// AIConfigValidator checks that configured AI providers are reachable.
// Used by the doctor command before any document is indexed.
type AIConfigValidator interface {
	// ValidateEmbedding pings the embedding provider for model.
	// Unconfigured settings are not an error.
	ValidateEmbedding(ctx context.Context, settings *domain.EmbeddingSettings, model string) error

	// ValidateLLM pings the language model provider.
	// Unconfigured settings are not an error.
	ValidateLLM(ctx context.Context, settings *domain.LLMSettings) error
}
