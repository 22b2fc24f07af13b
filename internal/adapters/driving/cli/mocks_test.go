package cli

import (
	"bytes"
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/core/ports/driving"
)

// Ensure mocks implement the interfaces.
var (
	_ driving.PipelineService  = (*mockPipelineService)(nil)
	_ driving.CacheService     = (*mockCacheService)(nil)
	_ driven.AIConfigValidator = (*mockValidator)(nil)
	_ ocrDiagnostics           = (*mockOCRTool)(nil)
	_ rasterDiagnostics        = (*mockRasterTool)(nil)
)

// mockPipelineService is a mock implementation of driving.PipelineService.
type mockPipelineService struct {
	handle      *domain.DocumentHandle
	indexErr    error
	answer      *domain.Answer
	answerErr   error
	retrieval   *domain.RetrievalResult
	retrieveErr error

	indexCalls int
	question   string
}

func (m *mockPipelineService) IndexDocument(
	_ context.Context,
	_ string,
	_ domain.PipelineConfig,
) (*domain.DocumentHandle, error) {
	m.indexCalls++
	if m.handle == nil {
		return nil, m.indexErr
	}
	// Hand out a fresh copy so Close in one command does not leak into the next.
	h := &domain.DocumentHandle{
		ID:             m.handle.ID,
		Document:       m.handle.Document,
		Chunks:         m.handle.Chunks,
		EmbeddingModel: m.handle.EmbeddingModel,
		Dimensions:     m.handle.Dimensions,
		PageCount:      m.handle.PageCount,
		FailedPages:    m.handle.FailedPages,
		Warnings:       m.handle.Warnings,
		Stages:         m.handle.Stages,
	}
	return h, m.indexErr
}

func (m *mockPipelineService) AnswerQuestion(
	_ context.Context,
	_ *domain.DocumentHandle,
	question string,
	_ domain.PipelineConfig,
) (*domain.Answer, error) {
	m.question = question
	return m.answer, m.answerErr
}

func (m *mockPipelineService) Retrieve(
	_ context.Context,
	_ *domain.DocumentHandle,
	question string,
	_ domain.PipelineConfig,
) (*domain.RetrievalResult, error) {
	m.question = question
	return m.retrieval, m.retrieveErr
}

// mockCacheService is a mock implementation of driving.CacheService.
type mockCacheService struct {
	fingerprint domain.Fingerprint
	artifacts   []domain.ArtifactInfo
	err         error
	invalidated []domain.Fingerprint
}

func (m *mockCacheService) Fingerprint(_ string, _ domain.FingerprintMode) (domain.Fingerprint, error) {
	return m.fingerprint, m.err
}

func (m *mockCacheService) Artifacts(_ context.Context, fp domain.Fingerprint) ([]domain.ArtifactInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	if fp == "" {
		return m.artifacts, nil
	}
	var out []domain.ArtifactInfo
	for _, a := range m.artifacts {
		if a.Key.Fingerprint == fp {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockCacheService) Invalidate(_ context.Context, fp domain.Fingerprint) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.invalidated = append(m.invalidated, fp)
	n := 0
	for _, a := range m.artifacts {
		if a.Key.Fingerprint == fp {
			n++
		}
	}
	return n, nil
}

// mockValidator is a mock implementation of driven.AIConfigValidator.
type mockValidator struct {
	embeddingErr error
	llmErr       error
}

func (m *mockValidator) ValidateEmbedding(_ context.Context, _ *domain.EmbeddingSettings, _ string) error {
	return m.embeddingErr
}

func (m *mockValidator) ValidateLLM(_ context.Context, _ *domain.LLMSettings) error {
	return m.llmErr
}

// mockOCRTool is a mock tesseract.
type mockOCRTool struct {
	version   string
	languages []string
	err       error
}

func (m *mockOCRTool) Version(_ context.Context) (string, error) {
	return m.version, m.err
}

func (m *mockOCRTool) Languages(_ context.Context) ([]string, error) {
	return m.languages, m.err
}

// mockRasterTool is a mock pdftoppm.
type mockRasterTool struct {
	err error
}

func (m *mockRasterTool) Check(_ context.Context) error {
	return m.err
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	pipeline  *mockPipelineService
	cache     *mockCacheService
	validator *mockValidator
}

// setupTestServices installs mock services and returns a cleanup function
// that restores the previous ones.
func setupTestServices() (*testServices, func()) {
	oldLoader := servicesLoader
	oldSettings := settings
	oldStore := settingsStore
	oldPipeline := pipelineService
	oldCache := cacheService
	oldValidator := aiValidator
	oldOCR, oldRaster := ocrTool, rasterTool

	svc := &testServices{
		pipeline: &mockPipelineService{
			handle: testHandle(),
			answer: testAnswer(),
			retrieval: &domain.RetrievalResult{
				Question: "কে লিখেছেন?",
				Chunks:   testAnswer().Citations,
				Outcome:  domain.OutcomeMatched,
			},
		},
		cache:     &mockCacheService{fingerprint: testFingerprint},
		validator: &mockValidator{},
	}

	servicesLoader = func(*cobra.Command, bool) error { return nil }
	settings = domain.DefaultSettings()
	pipelineService = svc.pipeline
	cacheService = svc.cache
	aiValidator = svc.validator
	ocrTool = &mockOCRTool{version: "tesseract 5.3.4", languages: []string{"ben", "eng", "osd"}}
	rasterTool = &mockRasterTool{}

	return svc, func() {
		servicesLoader = oldLoader
		settings = oldSettings
		settingsStore = oldStore
		pipelineService = oldPipeline
		cacheService = oldCache
		aiValidator = oldValidator
		ocrTool, rasterTool = oldOCR, oldRaster
	}
}

// runCommand executes rootCmd with args and returns its output.
func runCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

const testFingerprint = domain.Fingerprint("3f2a9c0d1e4b5a6978c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f60718293a4b5c6d")

func testHandle() *domain.DocumentHandle {
	return &domain.DocumentHandle{
		ID: "h-1",
		Document: domain.Document{
			Path:        "scan.pdf",
			Title:       "scan.pdf",
			Fingerprint: testFingerprint,
		},
		Chunks: []domain.Chunk{
			{ID: "3f2a9c0d1e4b5a69:0", Index: 0, Page: 0, Content: "রবীন্দ্রনাথ ঠাকুর"},
			{ID: "3f2a9c0d1e4b5a69:1", Index: 1, Page: 1, Content: "গীতাঞ্জলি ১৯১০"},
		},
		EmbeddingModel: "text-embedding-3-small",
		Dimensions:     1536,
		PageCount:      3,
		FailedPages:    []int{2},
		Warnings: []domain.Warning{
			{Kind: domain.WarningOCRPartialFailure, Message: "OCR failed on 1 of 3 pages", Pages: []int{2}},
		},
		Stages: map[domain.Stage]domain.StageStatus{
			domain.StageExtract: domain.StageCached,
			domain.StageChunk:   domain.StageCached,
			domain.StageEmbed:   domain.StageComputed,
			domain.StageIndex:   domain.StageComputed,
		},
	}
}

func testAnswer() *domain.Answer {
	h := testHandle()
	return &domain.Answer{
		Question: "কে লিখেছেন?",
		Text:     "রবীন্দ্রনাথ ঠাকুর",
		Citations: []domain.ScoredChunk{
			{Chunk: h.Chunks[0], Score: 0.87},
			{Chunk: h.Chunks[1], Score: 0.54},
		},
		Outcome: domain.OutcomeMatched,
		Model:   "gpt-4o",
	}
}

var errBoom = errors.New("boom")
