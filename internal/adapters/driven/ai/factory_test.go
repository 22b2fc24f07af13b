package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

func TestInitResult_Close(t *testing.T) {
	t.Run("close with nil services", func(t *testing.T) {
		result := &InitResult{}
		// Should not panic
		result.Close()
	})
}

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.EmbeddingSettings
		model       string
		wantNil     bool
		wantErr     bool
		errContains string
		wantDims    int
	}{
		{
			name:     "nil settings returns nil",
			settings: nil,
			wantNil:  true,
		},
		{
			name:     "unconfigured settings returns nil",
			settings: &domain.EmbeddingSettings{},
			wantNil:  true,
		},
		{
			name:     "openai without key returns nil",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI},
			wantNil:  true,
		},
		{
			name: "ollama provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				BaseURL:  "http://localhost:11434",
			},
			model:    "nomic-embed-text",
			wantDims: 768,
		},
		{
			name: "openai provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				APIKey:   "test-key",
			},
			model:    "text-embedding-3-large",
			wantDims: 3072,
		},
		{
			name: "dimensions override",
			settings: &domain.EmbeddingSettings{
				Provider:   domain.AIProviderOpenAI,
				APIKey:     "test-key",
				Dimensions: 512,
			},
			model:    "text-embedding-3-small",
			wantDims: 512,
		},
		{
			name: "anthropic provider returns error",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderAnthropic,
				APIKey:   "test-key",
			},
			wantNil:     true,
			wantErr:     true,
			errContains: "anthropic does not support embeddings",
		},
		{
			name: "unknown provider returns nil (not configured)",
			settings: &domain.EmbeddingSettings{
				Provider: "unknown",
				APIKey:   "test-key",
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings, tt.model)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				require.NoError(t, err)
			}

			if tt.wantNil {
				assert.Nil(t, svc)
				return
			}
			require.NotNil(t, svc)
			defer svc.Close()
			assert.Equal(t, tt.model, svc.ModelName())
			assert.Equal(t, tt.wantDims, svc.Dimensions())
		})
	}
}

func TestCreateLLMService(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.LLMSettings
		wantNil  bool
		wantErr  bool
	}{
		{name: "nil settings returns nil", settings: nil, wantNil: true},
		{name: "unconfigured settings returns nil", settings: &domain.LLMSettings{}, wantNil: true},
		{
			name:     "openai without key returns nil",
			settings: &domain.LLMSettings{Provider: domain.AIProviderOpenAI, Model: "gpt-4o"},
			wantNil:  true,
		},
		{
			name:     "ollama provider creates service",
			settings: &domain.LLMSettings{Provider: domain.AIProviderOllama, Model: "llama3.2"},
		},
		{
			name:     "openai provider creates service",
			settings: &domain.LLMSettings{Provider: domain.AIProviderOpenAI, APIKey: "test-key", Model: "gpt-4o"},
		},
		{
			name:     "anthropic provider creates service",
			settings: &domain.LLMSettings{Provider: domain.AIProviderAnthropic, APIKey: "test-key", Model: "claude-3-haiku"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateLLMService(tt.settings)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			if tt.wantNil {
				assert.Nil(t, svc)
				return
			}
			require.NotNil(t, svc)
			defer svc.Close()
			assert.Equal(t, tt.settings.Model, svc.ModelName())
		})
	}
}

func TestInit(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.Embedding.APIKey = "sk-test"

	result, err := Init(settings)
	require.NoError(t, err)
	defer result.Close()

	require.NotNil(t, result.EmbeddingService)
	assert.Equal(t, domain.DefaultEmbeddingModel, result.EmbeddingService.ModelName())
	assert.Nil(t, result.LLMService)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "only retrieval is available")
}

func TestInit_EmbeddingError(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.Embedding.Provider = domain.AIProviderAnthropic

	_, err := Init(settings)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

// newOllamaServer answers /api/tags with the given status.
func newOllamaServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateAndValidateEmbeddingService(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable", func(t *testing.T) {
		srv := newOllamaServer(t, http.StatusOK)
		settings := &domain.EmbeddingSettings{Provider: domain.AIProviderOllama, BaseURL: srv.URL}

		svc, err := CreateAndValidateEmbeddingService(ctx, settings, "bge-m3")
		require.NoError(t, err)
		require.NotNil(t, svc)
		assert.Equal(t, 1024, svc.Dimensions())
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := newOllamaServer(t, http.StatusInternalServerError)
		settings := &domain.EmbeddingSettings{Provider: domain.AIProviderOllama, BaseURL: srv.URL}

		svc, err := CreateAndValidateEmbeddingService(ctx, settings, "bge-m3")
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.Nil(t, svc)
	})

	t.Run("unconfigured", func(t *testing.T) {
		svc, err := CreateAndValidateEmbeddingService(ctx, &domain.EmbeddingSettings{}, "m")
		assert.NoError(t, err)
		assert.Nil(t, svc)
	})
}

func TestCreateAndValidateLLMService(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable", func(t *testing.T) {
		srv := newOllamaServer(t, http.StatusOK)
		settings := &domain.LLMSettings{Provider: domain.AIProviderOllama, BaseURL: srv.URL, Model: "llama3.2"}

		svc, err := CreateAndValidateLLMService(ctx, settings)
		require.NoError(t, err)
		require.NotNil(t, svc)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := newOllamaServer(t, http.StatusBadGateway)
		settings := &domain.LLMSettings{Provider: domain.AIProviderOllama, BaseURL: srv.URL}

		svc, err := CreateAndValidateLLMService(ctx, settings)
		assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
		assert.Nil(t, svc)
	})
}

func TestValidateConfig_Ollama(t *testing.T) {
	srv := newOllamaServer(t, http.StatusOK)
	ctx := context.Background()

	assert.NoError(t, ValidateEmbeddingConfig(ctx,
		&domain.EmbeddingSettings{Provider: domain.AIProviderOllama, BaseURL: srv.URL}, "nomic-embed-text"))
	assert.NoError(t, ValidateLLMConfig(ctx,
		&domain.LLMSettings{Provider: domain.AIProviderOllama, BaseURL: srv.URL}))
	assert.NoError(t, ValidateLLMConfig(ctx, nil))
}
