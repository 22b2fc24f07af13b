package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/logger"
)

// Ensure SettingsStore implements the interface.
var _ driven.SettingsStore = (*SettingsStore)(nil)

// SettingsStore is a file-based implementation of driven.SettingsStore using TOML.
// Keys missing from the file keep their defaults. Environment overrides are
// applied by Load but never written back by Set.
type SettingsStore struct {
	mu       sync.RWMutex
	filePath string
	lookup   func(string) (string, bool)
}

// Option configures a SettingsStore.
type Option func(*SettingsStore)

// WithEnv replaces os.LookupEnv for environment overrides.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(s *SettingsStore) {
		s.lookup = lookup
	}
}

// DefaultDir returns ~/.scanqa.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".scanqa"), nil
}

// NewSettingsStore creates a TOML settings store at path.
// If path is empty, defaults to ~/.scanqa/config.toml.
func NewSettingsStore(path string, opts ...Option) (*SettingsStore, error) {
	if path == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.toml")
	}

	s := &SettingsStore{
		filePath: path,
		lookup:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load reads settings from the file, then applies environment overrides:
// SCANQA_<SECTION>_<KEY> for any key, and OPENAI_API_KEY / ANTHROPIC_API_KEY
// for providers whose key is still empty.
func (s *SettingsStore) Load() (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, err := s.loadFile()
	if err != nil {
		return domain.Settings{}, err
	}
	if err := s.applyEnv(&settings); err != nil {
		return domain.Settings{}, err
	}
	settings.Pipeline.OCREngine = string(settings.OCR.Engine)
	return settings, nil
}

// Save persists settings with 0600 permissions.
func (s *SettingsStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settings)
}

// Set parses value into key, validates the result and persists it.
func (s *SettingsStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.loadFile()
	if err != nil {
		return err
	}
	if err := setValue(&settings, key, value); err != nil {
		return err
	}
	if err := validate(settings); err != nil {
		return err
	}
	return s.save(settings)
}

// Keys lists the keys accepted by Set.
func (s *SettingsStore) Keys() []string {
	return Keys()
}

// Path returns the configuration file path.
func (s *SettingsStore) Path() string {
	return s.filePath
}

// loadFile reads the TOML file over the defaults (caller must hold lock).
func (s *SettingsStore) loadFile() (domain.Settings, error) {
	settings := domain.DefaultSettings()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No config file yet - defaults apply
			return settings, nil
		}
		return settings, err
	}

	var loaded map[string]any
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return settings, fmt.Errorf("%w: parse %s: %w", domain.ErrInvalidConfig, s.filePath, err)
	}

	for key, value := range flattenMap(loaded, "") {
		if _, ok := lookupField(key); !ok {
			logger.Warn("Ignoring unknown config key %q in %s", key, s.filePath)
			continue
		}
		if err := setValue(&settings, key, fmt.Sprint(value)); err != nil {
			return settings, fmt.Errorf("%s: %w", s.filePath, err)
		}
	}
	return settings, nil
}

func (s *SettingsStore) applyEnv(settings *domain.Settings) error {
	for _, f := range fields {
		if v, ok := s.lookup(envName(f.key)); ok && v != "" {
			if err := setValue(settings, f.key, v); err != nil {
				return fmt.Errorf("%s: %w", envName(f.key), err)
			}
		}
	}

	env := func(name string) string {
		v, _ := s.lookup(name)
		return v
	}
	providerKey := func(p domain.AIProvider) string {
		switch p {
		case domain.AIProviderOpenAI:
			return env("OPENAI_API_KEY")
		case domain.AIProviderAnthropic:
			return env("ANTHROPIC_API_KEY")
		default:
			return ""
		}
	}
	if settings.Embedding.APIKey == "" {
		settings.Embedding.APIKey = providerKey(settings.Embedding.Provider)
	}
	if settings.LLM.APIKey == "" {
		settings.LLM.APIKey = providerKey(settings.LLM.Provider)
	}
	return nil
}

// save writes settings to the TOML file (caller must hold lock).
func (s *SettingsStore) save(settings domain.Settings) error {
	sections := make(map[string]map[string]any)
	for _, f := range fields {
		section, name, _ := strings.Cut(f.key, ".")
		if sections[section] == nil {
			sections[section] = make(map[string]any)
		}
		sections[section][name] = getValue(&settings, f)
	}

	data, err := toml.Marshal(sections)
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

func validate(settings domain.Settings) error {
	if err := settings.Pipeline.Validate(); err != nil {
		return err
	}
	for name, p := range map[string]domain.RetryPolicy{
		"ocr":       settings.OCR.Retry,
		"embedding": settings.Embedding.Retry,
		"llm":       settings.LLM.Retry,
	} {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if !settings.OCR.Engine.IsValid() {
		return fmt.Errorf("%w: unknown ocr engine %q", domain.ErrInvalidConfig, settings.OCR.Engine)
	}
	if !settings.Embedding.Provider.SupportsEmbeddings() {
		return fmt.Errorf("%w: %q cannot provide embeddings", domain.ErrInvalidConfig, settings.Embedding.Provider)
	}
	if !settings.LLM.Provider.IsValid() {
		return fmt.Errorf("%w: unknown llm provider %q", domain.ErrInvalidConfig, settings.LLM.Provider)
	}
	return nil
}

// flattenMap converts nested maps to dot-notation keys.
// E.g., {"a": {"b": 1}} becomes {"a.b": 1}.
func flattenMap(m map[string]any, prefix string) map[string]any {
	result := make(map[string]any)

	for key, value := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenMap(nested, fullKey) {
				result[k] = v
			}
		} else {
			result[fullKey] = value
		}
	}

	return result
}
