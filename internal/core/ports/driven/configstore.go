package driven

import "github.com/custodia-labs/scanqa/internal/core/domain"

// SettingsStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files) and type conversion.
type SettingsStore interface {
	// Load reads settings from storage, applying defaults for missing values.
	Load() (domain.Settings, error)

	// Save persists settings to storage.
	Save(settings domain.Settings) error

	// Set updates a single dotted key, e.g. "pipeline.chunk_size", and persists.
	Set(key, value string) error

	// Keys lists the keys accepted by Set.
	Keys() []string

	// Path returns the configuration file path.
	Path() string
}

// Prompt names understood by PromptStore.
const (
	// PromptAnswerSystem is the system message sent before every question.
	PromptAnswerSystem = "answer_system"

	// PromptAnswerInstruction opens the user prompt, above the context.
	PromptAnswerInstruction = "answer_instruction"
)

// PromptStore loads user-customisable prompt templates.
type PromptStore interface {
	// Load returns the prompt text for name.
	Load(name string) (string, error)
}
