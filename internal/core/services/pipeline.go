package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/core/ports/driving"
	"github.com/custodia-labs/scanqa/internal/logger"
	"github.com/custodia-labs/scanqa/internal/postprocessors/chunker"
)

// Ensure PipelineService implements the interfaces.
var (
	_ driving.PipelineService = (*PipelineService)(nil)
	_ driving.CacheService    = (*PipelineService)(nil)
)

// PipelineService runs extract, chunk, embed and index with per-stage
// caching, and answers questions against the resulting handles.
type PipelineService struct {
	extractor   *ExtractionService
	embedder    *BatchEmbedder
	builder     driven.IndexBuilder
	artifacts   *ArtifactStore
	retriever   *Retriever
	synthesizer *Synthesizer

	fallbackLanguage string
	now              func() time.Time
}

// PipelineOption configures the pipeline service.
type PipelineOption func(*PipelineService)

// WithSynthesizer enables AnswerQuestion. Without one it fails with
// domain.ErrLLMUnavailable.
func WithSynthesizer(s *Synthesizer) PipelineOption {
	return func(p *PipelineService) {
		p.synthesizer = s
	}
}

// WithFallbackLanguage retries extraction in lang when the configured
// language has no OCR data installed.
func WithFallbackLanguage(lang string) PipelineOption {
	return func(p *PipelineService) {
		p.fallbackLanguage = lang
	}
}

// NewPipelineService creates a pipeline service. A nil cache disables caching.
func NewPipelineService(
	extractor *ExtractionService,
	embedder *BatchEmbedder,
	builder driven.IndexBuilder,
	cache driven.ArtifactCache,
	opts ...PipelineOption,
) *PipelineService {
	p := &PipelineService{
		extractor: extractor,
		embedder:  embedder,
		builder:   builder,
		artifacts: NewArtifactStore(cache, builder),
		retriever: NewRetriever(embedder),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IndexDocument fingerprints the document at path and prepares it for questions.
func (p *PipelineService) IndexDocument(
	ctx context.Context, path string, cfg domain.PipelineConfig,
) (*domain.DocumentHandle, error) {
	logger.Section("Index Document")
	defer logger.Timed("indexing")()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IndexKind != p.builder.Kind() {
		return nil, fmt.Errorf("%w: index kind %q is not available (have %q)",
			domain.ErrInvalidConfig, cfg.IndexKind, p.builder.Kind())
	}
	if name := p.extractor.EngineName(); cfg.OCREngine != name {
		return nil, fmt.Errorf("%w: OCR engine %q is not available (have %q)",
			domain.ErrInvalidConfig, cfg.OCREngine, name)
	}

	doc, err := NewFingerprinter(cfg.FingerprintMode).Load(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Document %s fingerprint %s", doc.Path, doc.Fingerprint.Short())

	h := &domain.DocumentHandle{
		ID:       uuid.NewString(),
		Document: doc,
		Config:   cfg,
		Stages:   make(map[domain.Stage]domain.StageStatus, len(domain.AllStages())),
	}

	ext, err := p.extractStage(ctx, h, cfg)
	if errors.Is(err, domain.ErrOCRLanguageMissing) && p.fallbackLanguage != "" &&
		p.fallbackLanguage != cfg.OCRLanguage {
		logger.Warn("OCR language %q is not installed, falling back to %q", cfg.OCRLanguage, p.fallbackLanguage)
		h.Warnings = append(h.Warnings, domain.Warning{
			Kind: domain.WarningOCRLanguageFallback,
			Message: fmt.Sprintf("OCR language %q is not installed, recognised as %q instead",
				cfg.OCRLanguage, p.fallbackLanguage),
		})
		cfg.OCRLanguage = p.fallbackLanguage
		h.Config = cfg
		ext, err = p.extractStage(ctx, h, cfg)
	}
	if err != nil {
		return nil, err
	}
	h.PageCount = ext.PageCount
	h.FailedPages = ext.FailedPages

	if ext.Empty() {
		return p.emptyHandle(h, domain.StageChunk)
	}

	chunks, err := p.chunkStage(ctx, h, cfg, ext)
	if err != nil {
		return nil, err
	}
	h.Chunks = chunks
	if len(chunks) == 0 {
		return p.emptyHandle(h, domain.StageEmbed)
	}

	set, err := p.embedStage(ctx, h, cfg)
	if err != nil {
		return nil, err
	}

	idx, err := p.indexStage(ctx, h, cfg, set)
	if err != nil {
		return nil, err
	}
	h.Index = idx
	h.EmbeddingModel = set.Model
	h.Dimensions = set.Dimensions
	h.IndexedAt = p.now()

	logger.Info("Indexed %s: %d pages, %d chunks, %d vectors", doc.Title, h.PageCount, len(h.Chunks), idx.Len())
	return h, nil
}

// emptyHandle marks from and every later stage skipped and returns the
// usable empty handle with domain.ErrEmptyDocument.
func (p *PipelineService) emptyHandle(h *domain.DocumentHandle, from domain.Stage) (*domain.DocumentHandle, error) {
	skip := false
	for _, stage := range domain.AllStages() {
		if stage == from {
			skip = true
		}
		if skip {
			h.Stages[stage] = domain.StageSkipped
		}
	}
	h.EmbeddingModel = p.embedder.ModelName()
	h.IndexedAt = p.now()
	return h, fmt.Errorf("%w: no text extracted from %s", domain.ErrEmptyDocument, h.Document.Path)
}

func stageKey(h *domain.DocumentHandle, cfg domain.PipelineConfig, stage domain.Stage) domain.ArtifactKey {
	return domain.ArtifactKey{
		Fingerprint: h.Document.Fingerprint,
		Stage:       stage,
		ConfigHash:  cfg.StageHash(stage),
	}
}

// miss records a failed cache lookup. Corrupt entries become warnings.
func (p *PipelineService) miss(h *domain.DocumentHandle, key domain.ArtifactKey, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("Cache miss: %s", key.Stage)
	case errors.Is(err, domain.ErrCacheCorruption):
		logger.Warn("Discarding corrupt %s cache entry for %s: %v", key.Stage, key.Fingerprint.Short(), err)
		h.Warnings = append(h.Warnings, domain.Warning{
			Kind:    domain.WarningCacheCorruption,
			Message: fmt.Sprintf("cached %s output was corrupt and has been recomputed", key.Stage),
		})
	default:
		logger.Warn("Cache lookup for %s failed, recomputing: %v", key.Stage, err)
	}
}

func (p *PipelineService) extractStage(
	ctx context.Context, h *domain.DocumentHandle, cfg domain.PipelineConfig,
) (domain.Extraction, error) {
	key := stageKey(h, cfg, domain.StageExtract)
	unlock := p.artifacts.Lock(key)
	defer unlock()

	ext, err := p.artifacts.LoadExtraction(ctx, key)
	if err == nil {
		logger.Debug("Cache hit: extract")
		h.Stages[domain.StageExtract] = domain.StageCached
		h.Warnings = append(h.Warnings, ocrWarnings(ext)...)
		return ext, nil
	}
	p.miss(h, key, err)

	ext, warnings, err := p.extractor.Extract(ctx, h.Document, cfg)
	if err != nil {
		return domain.Extraction{}, err
	}
	h.Stages[domain.StageExtract] = domain.StageComputed
	h.Warnings = append(h.Warnings, warnings...)

	// An all-failed extraction is retried next run.
	if !ext.Empty() {
		p.artifacts.SaveExtraction(ctx, key, ext)
	}
	return ext, nil
}

func (p *PipelineService) chunkStage(
	ctx context.Context, h *domain.DocumentHandle, cfg domain.PipelineConfig, ext domain.Extraction,
) ([]domain.Chunk, error) {
	key := stageKey(h, cfg, domain.StageChunk)
	unlock := p.artifacts.Lock(key)
	defer unlock()

	chunks, err := p.artifacts.LoadChunks(ctx, key)
	if err == nil {
		logger.Debug("Cache hit: chunk")
		h.Stages[domain.StageChunk] = domain.StageCached
		return chunks, nil
	}
	p.miss(h, key, err)

	proc, err := chunker.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	chunks, err = proc.Process(ctx, h.Document.Fingerprint, ext)
	if err != nil {
		return nil, err
	}
	h.Stages[domain.StageChunk] = domain.StageComputed
	p.artifacts.SaveChunks(ctx, key, chunks)
	return chunks, nil
}

func (p *PipelineService) embedStage(
	ctx context.Context, h *domain.DocumentHandle, cfg domain.PipelineConfig,
) (domain.EmbeddingSet, error) {
	key := stageKey(h, cfg, domain.StageEmbed)
	unlock := p.artifacts.Lock(key)
	defer unlock()

	var previous *domain.EmbeddingSet
	set, err := p.artifacts.LoadEmbeddings(ctx, key)
	switch {
	case err != nil:
		p.miss(h, key, err)
	case !p.compatible(set, len(h.Chunks)):
		logger.Debug("Cached embeddings are stale, recomputing")
	case set.Covers(len(h.Chunks)):
		logger.Debug("Cache hit: embed")
		h.Stages[domain.StageEmbed] = domain.StageCached
		return set, nil
	default:
		logger.Debug("Cached embeddings cover %d of %d chunks, embedding the rest", len(set.Vectors), len(h.Chunks))
		previous = &set
	}

	set, warnings, err := p.embedder.EmbedChunks(ctx, h.Chunks, cfg, previous)
	if err != nil {
		return domain.EmbeddingSet{}, err
	}
	h.Stages[domain.StageEmbed] = domain.StageComputed
	h.Warnings = append(h.Warnings, warnings...)
	p.artifacts.SaveEmbeddings(ctx, key, set)
	return set, nil
}

// compatible reports whether a cached set was produced by the current
// provider for the current chunk sequence.
func (p *PipelineService) compatible(set domain.EmbeddingSet, chunks int) bool {
	if set.Model != p.embedder.ModelName() {
		return false
	}
	if dims := p.embedder.Dimensions(); dims > 0 && set.Dimensions != dims {
		return false
	}
	for _, v := range set.Vectors {
		if v.ChunkIndex >= chunks || len(v.Vector) != set.Dimensions {
			return false
		}
	}
	return true
}

func (p *PipelineService) indexStage(
	ctx context.Context, h *domain.DocumentHandle, cfg domain.PipelineConfig, set domain.EmbeddingSet,
) (driven.VectorIndex, error) {
	key := stageKey(h, cfg, domain.StageIndex)
	unlock := p.artifacts.Lock(key)
	defer unlock()

	// Freshly computed embeddings always get a fresh index.
	if h.Stages[domain.StageEmbed] == domain.StageCached {
		idx, err := p.artifacts.LoadIndex(ctx, key)
		switch {
		case err != nil:
			p.miss(h, key, err)
		case idx.Len() != len(set.Vectors) || idx.Dimensions() != set.Dimensions:
			logger.Debug("Cached index does not match embeddings, rebuilding")
		default:
			logger.Debug("Cache hit: index")
			h.Stages[domain.StageIndex] = domain.StageCached
			return idx, nil
		}
	}

	idx, err := p.builder.Build(ctx, set.Dimensions, set.Vectors)
	if err != nil {
		return nil, err
	}
	h.Stages[domain.StageIndex] = domain.StageComputed
	p.artifacts.SaveIndex(ctx, key, idx)
	return idx, nil
}

// Retrieve returns the ranked chunks for question without synthesis.
func (p *PipelineService) Retrieve(
	ctx context.Context, h *domain.DocumentHandle, question string, cfg domain.PipelineConfig,
) (*domain.RetrievalResult, error) {
	logger.Section("Retrieve")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return p.retriever.Retrieve(ctx, h, question, cfg)
}

// AnswerQuestion retrieves the best chunks for question and asks the
// language model to answer from them.
func (p *PipelineService) AnswerQuestion(
	ctx context.Context, h *domain.DocumentHandle, question string, cfg domain.PipelineConfig,
) (*domain.Answer, error) {
	started := p.now()

	result, err := p.Retrieve(ctx, h, question, cfg)
	if result != nil && result.Outcome == domain.OutcomeNoContent {
		return &domain.Answer{
			Question:  result.Question,
			Citations: []domain.ScoredChunk{},
			Warnings:  copyWarnings(h.Warnings),
			Outcome:   domain.OutcomeNoContent,
			Duration:  p.now().Sub(started),
		}, err
	}
	if err != nil {
		return nil, err
	}

	if result.Outcome == domain.OutcomeNoMatch {
		return &domain.Answer{
			Question:  result.Question,
			Citations: []domain.ScoredChunk{},
			Warnings:  copyWarnings(h.Warnings),
			Outcome:   domain.OutcomeNoMatch,
			Duration:  p.now().Sub(started),
		}, fmt.Errorf("%w: no chunk scored at least %.3f", domain.ErrNoMatch, cfg.MinScore)
	}

	if p.synthesizer == nil {
		return nil, domain.ErrLLMUnavailable
	}

	logger.Section("Answer Synthesis")
	answer, err := p.synthesizer.Synthesize(ctx, result.Question, result, cfg)
	if err != nil {
		return nil, err
	}
	answer.Warnings = append(copyWarnings(h.Warnings), answer.Warnings...)
	answer.Duration = p.now().Sub(started)
	return answer, nil
}

func copyWarnings(ws []domain.Warning) []domain.Warning {
	if len(ws) == 0 {
		return nil
	}
	out := make([]domain.Warning, len(ws))
	copy(out, ws)
	return out
}

// Fingerprint returns the cache key of the document at path.
func (p *PipelineService) Fingerprint(path string, mode domain.FingerprintMode) (domain.Fingerprint, error) {
	return NewFingerprinter(mode).FingerprintFile(path)
}

// Artifacts lists cached entries of fp, or every entry when fp is empty.
func (p *PipelineService) Artifacts(ctx context.Context, fp domain.Fingerprint) ([]domain.ArtifactInfo, error) {
	return p.artifacts.List(ctx, fp)
}

// Invalidate removes every cached entry of fp.
func (p *PipelineService) Invalidate(ctx context.Context, fp domain.Fingerprint) (int, error) {
	n, err := p.artifacts.Delete(ctx, fp)
	if err != nil {
		return 0, err
	}
	logger.Debug("Invalidated %d cache entries for %s", n, fp.Short())
	return n, nil
}
