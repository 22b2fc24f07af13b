package file

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// field binds a dotted config key to a settings field. ptr returns one of
// *string, *int, *float64, *bool or *time.Duration.
type field struct {
	key string
	ptr func(*domain.Settings) any
}

// fields lists every key accepted in config.toml, by Set and as a
// SCANQA_* environment override.
var fields = []field{
	{"pipeline.chunk_size", func(s *domain.Settings) any { return &s.Pipeline.ChunkSize }},
	{"pipeline.chunk_overlap", func(s *domain.Settings) any { return &s.Pipeline.ChunkOverlap }},
	{"pipeline.chunk_boundary", func(s *domain.Settings) any { return (*string)(&s.Pipeline.ChunkBoundary) }},
	{"pipeline.embedding_model", func(s *domain.Settings) any { return &s.Pipeline.EmbeddingModel }},
	{"pipeline.embedding_batch_size", func(s *domain.Settings) any { return &s.Pipeline.EmbeddingBatchSize }},
	{"pipeline.embedding_concurrency", func(s *domain.Settings) any { return &s.Pipeline.EmbeddingConcurrency }},
	{"pipeline.top_k", func(s *domain.Settings) any { return &s.Pipeline.TopK }},
	{"pipeline.min_score", func(s *domain.Settings) any { return &s.Pipeline.MinScore }},
	{"pipeline.context_budget", func(s *domain.Settings) any { return &s.Pipeline.ContextBudget }},
	{"pipeline.budget_unit", func(s *domain.Settings) any { return (*string)(&s.Pipeline.BudgetUnit) }},
	{"pipeline.ocr_language", func(s *domain.Settings) any { return &s.Pipeline.OCRLanguage }},
	{"pipeline.ocr_dpi", func(s *domain.Settings) any { return &s.Pipeline.OCRDPI }},
	{"pipeline.ocr_concurrency", func(s *domain.Settings) any { return &s.Pipeline.OCRConcurrency }},
	{"pipeline.index_kind", func(s *domain.Settings) any { return &s.Pipeline.IndexKind }},
	{"pipeline.fingerprint_mode", func(s *domain.Settings) any { return (*string)(&s.Pipeline.FingerprintMode) }},

	{"ocr.engine", func(s *domain.Settings) any { return (*string)(&s.OCR.Engine) }},
	{"ocr.command", func(s *domain.Settings) any { return &s.OCR.Command }},
	{"ocr.raster_command", func(s *domain.Settings) any { return &s.OCR.RasterCommand }},
	{"ocr.fallback_language", func(s *domain.Settings) any { return &s.OCR.FallbackLanguage }},
	{"ocr.max_retries", func(s *domain.Settings) any { return &s.OCR.Retry.MaxRetries }},
	{"ocr.retry_backoff", func(s *domain.Settings) any { return &s.OCR.Retry.BaseDelay }},
	{"ocr.timeout", func(s *domain.Settings) any { return &s.OCR.Retry.Timeout }},

	{"embedding.provider", func(s *domain.Settings) any { return (*string)(&s.Embedding.Provider) }},
	{"embedding.base_url", func(s *domain.Settings) any { return &s.Embedding.BaseURL }},
	{"embedding.api_key", func(s *domain.Settings) any { return &s.Embedding.APIKey }},
	{"embedding.dimensions", func(s *domain.Settings) any { return &s.Embedding.Dimensions }},
	{"embedding.requests_per_second", func(s *domain.Settings) any { return &s.Embedding.RequestsPerSecond }},
	{"embedding.max_retries", func(s *domain.Settings) any { return &s.Embedding.Retry.MaxRetries }},
	{"embedding.retry_backoff", func(s *domain.Settings) any { return &s.Embedding.Retry.BaseDelay }},
	{"embedding.timeout", func(s *domain.Settings) any { return &s.Embedding.Retry.Timeout }},

	{"llm.provider", func(s *domain.Settings) any { return (*string)(&s.LLM.Provider) }},
	{"llm.model", func(s *domain.Settings) any { return &s.LLM.Model }},
	{"llm.base_url", func(s *domain.Settings) any { return &s.LLM.BaseURL }},
	{"llm.api_key", func(s *domain.Settings) any { return &s.LLM.APIKey }},
	{"llm.temperature", func(s *domain.Settings) any { return &s.LLM.Temperature }},
	{"llm.max_tokens", func(s *domain.Settings) any { return &s.LLM.MaxTokens }},
	{"llm.system_prompt", func(s *domain.Settings) any { return &s.LLM.SystemPrompt }},
	{"llm.max_retries", func(s *domain.Settings) any { return &s.LLM.Retry.MaxRetries }},
	{"llm.retry_backoff", func(s *domain.Settings) any { return &s.LLM.Retry.BaseDelay }},
	{"llm.timeout", func(s *domain.Settings) any { return &s.LLM.Retry.Timeout }},
	{"llm.breaker_failures", func(s *domain.Settings) any { return &s.LLM.BreakerFailures }},

	{"cache.dir", func(s *domain.Settings) any { return &s.Cache.Dir }},
	{"cache.disabled", func(s *domain.Settings) any { return &s.Cache.Disabled }},
}

// secretKeys are masked by Values.
var secretKeys = map[string]bool{
	"embedding.api_key": true,
	"llm.api_key":       true,
}

func lookupField(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// Keys returns every accepted key, sorted.
func Keys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	sort.Strings(keys)
	return keys
}

// setValue parses raw into the field for key.
func setValue(s *domain.Settings, key, raw string) error {
	f, ok := lookupField(key)
	if !ok {
		return fmt.Errorf("%w: unknown config key %q", domain.ErrInvalidConfig, key)
	}

	raw = strings.TrimSpace(raw)
	var err error
	switch p := f.ptr(s).(type) {
	case *string:
		*p = raw
	case *int:
		*p, err = strconv.Atoi(raw)
	case *float64:
		*p, err = strconv.ParseFloat(raw, 64)
	case *bool:
		*p, err = strconv.ParseBool(raw)
	case *time.Duration:
		*p, err = time.ParseDuration(raw)
	default:
		return fmt.Errorf("config key %q has unsupported type %T", key, p)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidConfig, key, err)
	}
	return nil
}

// getValue returns the TOML representation of key's value.
func getValue(s *domain.Settings, f field) any {
	switch p := f.ptr(s).(type) {
	case *string:
		return *p
	case *int:
		return int64(*p)
	case *float64:
		return *p
	case *bool:
		return *p
	case *time.Duration:
		return p.String()
	default:
		return nil
	}
}

// Values returns key = value pairs for display, with API keys masked.
func Values(s domain.Settings) [][2]string {
	out := make([][2]string, 0, len(fields))
	for _, key := range Keys() {
		f, _ := lookupField(key)
		v := fmt.Sprint(getValue(&s, f))
		if secretKeys[key] && v != "" {
			v = mask(v)
		}
		out = append(out, [2]string{key, v})
	}
	return out
}

func mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}

// envName maps "pipeline.chunk_size" to "SCANQA_PIPELINE_CHUNK_SIZE".
func envName(key string) string {
	return "SCANQA_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
