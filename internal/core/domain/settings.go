package domain

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or a compatible endpoint.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic Messages API. LLM only.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// SupportsEmbeddings returns true if this provider offers an embedding API.
func (p AIProvider) SupportsEmbeddings() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// OCREngineKind identifies an OCR engine implementation.
type OCREngineKind string

// Available OCR engines.
const (
	// OCREngineTesseract rasterises pages and runs the tesseract binary.
	OCREngineTesseract OCREngineKind = "tesseract"

	// OCREngineTextLayer reads the embedded text layer of born-digital PDFs.
	OCREngineTextLayer OCREngineKind = "textlayer"
)

// IsValid returns true if the engine is recognised.
func (k OCREngineKind) IsValid() bool {
	return k == OCREngineTesseract || k == OCREngineTextLayer
}

// OCRSettings holds OCR engine configuration.
type OCRSettings struct {
	// Engine selects the OCR implementation.
	Engine OCREngineKind

	// Command is the tesseract executable (default: tesseract on PATH).
	Command string

	// RasterCommand is the pdftoppm executable (default: pdftoppm on PATH).
	RasterCommand string

	// FallbackLanguage is tried when the configured language data is missing.
	// Empty disables the fallback.
	FallbackLanguage string

	// Retry bounds each page recognition.
	Retry RetryPolicy
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions overrides the model's default vector size.
	Dimensions int

	// RequestsPerSecond caps embedding requests. Zero disables the limit.
	RequestsPerSecond float64

	// Retry bounds each embedding batch.
	Retry RetryPolicy
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.SupportsEmbeddings() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// Default language model values, matching the original Bangla QA setup.
const (
	DefaultLLMModel        = "gpt-4o"
	DefaultLLMTemperature  = 0.2
	DefaultLLMMaxTokens    = 500
	DefaultSystemPrompt    = "You are a helpful assistant that answers questions in Bangla."
	DefaultBreakerFailures = 5
)

// DefaultAnswerInstruction opens every prompt. It reads "Answer the
// question using the context below:".
const DefaultAnswerInstruction = "নিচের প্রসঙ্গ ব্যবহার করে প্রশ্নের উত্তর দাও:"

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI or Anthropic).
	APIKey string

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTokens caps the completion length.
	MaxTokens int

	// SystemPrompt is sent before every question. Empty uses the
	// answer_system prompt file, then DefaultSystemPrompt.
	SystemPrompt string

	// Retry bounds each completion.
	Retry RetryPolicy

	// BreakerFailures is the number of consecutive failures that opens the
	// circuit breaker.
	BreakerFailures int
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// CacheSettings holds artifact cache configuration.
type CacheSettings struct {
	// Dir is the cache database directory (default: ~/.scanqa/cache).
	Dir string

	// Disabled keeps artifacts in memory only.
	Disabled bool
}

// Settings holds all application settings.
type Settings struct {
	Pipeline  PipelineConfig
	OCR       OCRSettings
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Cache     CacheSettings
}

// DefaultSettings returns settings with defaults for Bangla scans.
// API keys are left empty; they come from the environment or config file.
func DefaultSettings() Settings {
	return Settings{
		Pipeline: DefaultPipelineConfig(),
		OCR: OCRSettings{
			Engine:        OCREngineTesseract,
			Command:       "tesseract",
			RasterCommand: "pdftoppm",
			Retry:         DefaultRetryPolicy(),
		},
		Embedding: EmbeddingSettings{
			Provider: AIProviderOpenAI,
			Retry:    DefaultRetryPolicy(),
		},
		LLM: LLMSettings{
			Provider:        AIProviderOpenAI,
			Model:           DefaultLLMModel,
			Temperature:     DefaultLLMTemperature,
			MaxTokens:       DefaultLLMMaxTokens,
			Retry:           DefaultRetryPolicy(),
			BreakerFailures: DefaultBreakerFailures,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support answer synthesis.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    DefaultLLMModel,
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		"bge-m3":            1024,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
