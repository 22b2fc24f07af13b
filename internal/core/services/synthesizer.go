package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/logger"
	"github.com/custodia-labs/scanqa/internal/util"
)

// Prompt labels. They read "Context", "Question" and "Answer".
const (
	promptContext  = "প্রসঙ্গ:"
	promptQuestion = "প্রশ্ন:"
	promptAnswer   = "উত্তর:"
)

// breakerOpenTimeout is how long the breaker stays open before probing.
const breakerOpenTimeout = 30 * time.Second

// SelectContext picks chunks for the prompt in the given order, which is
// descending score. It stops at the first chunk that would exceed budget;
// chunks are never truncated. The remaining chunks are returned as dropped.
func SelectContext(
	chunks []domain.ScoredChunk, budget int, counter TokenCounter,
) (selected, dropped []domain.ScoredChunk) {
	used := 0
	for i, c := range chunks {
		cost := counter.Count(c.Chunk.Content)
		if used+cost > budget {
			return chunks[:i], chunks[i:]
		}
		used += cost
	}
	return chunks, nil
}

// BuildPrompt assembles the user prompt: instruction, numbered context
// passages, the question and an answer cue. An empty instruction uses
// domain.DefaultAnswerInstruction.
func BuildPrompt(instruction, question string, chunks []domain.ScoredChunk) string {
	if instruction == "" {
		instruction = domain.DefaultAnswerInstruction
	}
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\n")
	b.WriteString(promptContext)
	b.WriteString("\n")
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(c.Chunk.Content)
	}
	b.WriteString("\n\n")
	b.WriteString(promptQuestion)
	b.WriteString(" ")
	b.WriteString(question)
	b.WriteString("\n")
	b.WriteString(promptAnswer)
	return b.String()
}

// Synthesizer turns retrieved chunks into an answer from a language model.
// Calls go through a circuit breaker so a failing provider is not hammered
// by repeated questions.
type Synthesizer struct {
	llm      driven.LLMService
	settings domain.LLMSettings
	breaker  *gobreaker.CircuitBreaker
	prompts  driven.PromptStore

	tokensOnce sync.Once
	tokens     TokenCounter
}

// SynthesizerOption configures the synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithTokenCounter sets the counter used for token budgets.
func WithTokenCounter(c TokenCounter) SynthesizerOption {
	return func(s *Synthesizer) {
		s.tokens = c
	}
}

// WithPromptStore loads the system prompt and instruction from store,
// falling back to the built-in Bangla prompts.
func WithPromptStore(store driven.PromptStore) SynthesizerOption {
	return func(s *Synthesizer) {
		s.prompts = store
	}
}

// NewSynthesizer creates a synthesizer around llm.
func NewSynthesizer(llm driven.LLMService, settings domain.LLMSettings, opts ...SynthesizerOption) *Synthesizer {
	failures := settings.BreakerFailures
	if failures <= 0 {
		failures = domain.DefaultBreakerFailures
	}
	s := &Synthesizer{
		llm:      llm,
		settings: settings,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ModelName returns the language model name.
func (s *Synthesizer) ModelName() string {
	return s.llm.ModelName()
}

func (s *Synthesizer) counter(unit domain.BudgetUnit) TokenCounter {
	if unit != domain.BudgetTokens {
		return RuneCounter{}
	}
	s.tokensOnce.Do(func() {
		if s.tokens != nil {
			return
		}
		c, err := NewTiktokenCounter(s.llm.ModelName())
		if err != nil {
			logger.Warn("Token encoding unavailable, counting characters instead: %v", err)
			s.tokens = RuneCounter{}
			return
		}
		s.tokens = c
	})
	return s.tokens
}

// Synthesize answers question from the matched chunks of result.
func (s *Synthesizer) Synthesize(
	ctx context.Context, question string, result *domain.RetrievalResult, cfg domain.PipelineConfig,
) (*domain.Answer, error) {
	defer logger.Timed("synthesis")()

	selected, dropped := SelectContext(result.Chunks, cfg.ContextBudget, s.counter(cfg.BudgetUnit))
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: context budget of %d %s cannot fit the best matching chunk",
			domain.ErrInvalidConfig, cfg.ContextBudget, cfg.BudgetUnit)
	}

	answer := &domain.Answer{
		Question:  question,
		Citations: selected,
		Outcome:   domain.OutcomeMatched,
		Model:     s.llm.ModelName(),
	}
	if len(dropped) > 0 {
		idx := make([]int, len(dropped))
		for i, c := range dropped {
			idx[i] = c.Chunk.Index
		}
		answer.Warnings = append(answer.Warnings, domain.Warning{
			Kind:    domain.WarningContextTruncated,
			Message: fmt.Sprintf("%d retrieved chunks did not fit the context budget of %d %s", len(dropped), cfg.ContextBudget, cfg.BudgetUnit),
			Chunks:  idx,
		})
	}

	prompt := BuildPrompt(s.prompt(driven.PromptAnswerInstruction, domain.DefaultAnswerInstruction), question, selected)
	logger.Debug("Prompt: %d chunks, %d characters", len(selected), len([]rune(prompt)))

	systemPrompt := s.settings.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = s.prompt(driven.PromptAnswerSystem, domain.DefaultSystemPrompt)
	}
	messages := []driven.ChatMessage{
		{Role: driven.RoleSystem, Content: systemPrompt},
		{Role: driven.RoleUser, Content: prompt},
	}
	text, err := s.complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	answer.Text = strings.TrimSpace(text)
	return answer, nil
}

// prompt loads name from the prompt store, or returns fallback.
func (s *Synthesizer) prompt(name, fallback string) string {
	if s.prompts == nil {
		return fallback
	}
	p, err := s.prompts.Load(name)
	if err != nil || p == "" {
		logger.Debug("Prompt %s unavailable, using built-in: %v", name, err)
		return fallback
	}
	return p
}

func (s *Synthesizer) complete(ctx context.Context, messages []driven.ChatMessage) (string, error) {
	opts := driven.ChatOptions{
		MaxTokens:   s.settings.MaxTokens,
		Temperature: s.settings.Temperature,
	}

	var text string
	err := util.Do(ctx, s.settings.Retry, isRetryable, func(ctx context.Context) error {
		out, err := s.breaker.Execute(func() (interface{}, error) {
			return s.llm.Chat(ctx, messages, opts)
		})
		if err != nil {
			return err
		}
		text = out.(string)
		return nil
	})
	if err != nil {
		return "", classify(domain.ErrLanguageModel, err)
	}
	return text, nil
}
