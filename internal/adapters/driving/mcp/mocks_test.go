package mcp

import (
	"context"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driving"
)

// Ensure mocks implement the interfaces.
var (
	_ driving.PipelineService = (*mockPipelineService)(nil)
	_ driving.CacheService    = (*mockCacheService)(nil)
)

// mockPipelineService is a mock implementation of driving.PipelineService.
type mockPipelineService struct {
	handle    *domain.DocumentHandle
	indexErr  error
	answer    *domain.Answer
	answerErr error
	retrieval *domain.RetrievalResult

	indexedPath string
	askedCfg    domain.PipelineConfig
	question    string
}

func (m *mockPipelineService) IndexDocument(
	_ context.Context,
	path string,
	_ domain.PipelineConfig,
) (*domain.DocumentHandle, error) {
	m.indexedPath = path
	return m.handle, m.indexErr
}

func (m *mockPipelineService) AnswerQuestion(
	_ context.Context,
	_ *domain.DocumentHandle,
	question string,
	cfg domain.PipelineConfig,
) (*domain.Answer, error) {
	m.question = question
	m.askedCfg = cfg
	return m.answer, m.answerErr
}

func (m *mockPipelineService) Retrieve(
	_ context.Context,
	_ *domain.DocumentHandle,
	_ string,
	_ domain.PipelineConfig,
) (*domain.RetrievalResult, error) {
	return m.retrieval, m.answerErr
}

// mockCacheService is a mock implementation of driving.CacheService.
type mockCacheService struct {
	artifacts []domain.ArtifactInfo
	err       error
	listedFP  domain.Fingerprint
}

func (m *mockCacheService) Fingerprint(_ string, _ domain.FingerprintMode) (domain.Fingerprint, error) {
	return "", m.err
}

func (m *mockCacheService) Artifacts(_ context.Context, fp domain.Fingerprint) ([]domain.ArtifactInfo, error) {
	m.listedFP = fp
	return m.artifacts, m.err
}

func (m *mockCacheService) Invalidate(_ context.Context, _ domain.Fingerprint) (int, error) {
	return len(m.artifacts), m.err
}

func testHandle() *domain.DocumentHandle {
	return &domain.DocumentHandle{
		ID: "h-1",
		Document: domain.Document{
			Path:        "/scans/report.pdf",
			Title:       "report.pdf",
			Fingerprint: "abc123def4567890ffff",
		},
		Chunks: []domain.Chunk{
			{ID: "abc123def4567890:0", Index: 0, Page: 0, Content: "প্রথম অংশ"},
			{ID: "abc123def4567890:1", Index: 1, Page: 1, Content: "দ্বিতীয় অংশ"},
		},
		EmbeddingModel: "text-embedding-3-small",
		PageCount:      3,
		FailedPages:    []int{2},
		Warnings: []domain.Warning{
			{Kind: domain.WarningOCRPartialFailure, Message: "1 of 3 pages failed", Pages: []int{2}},
		},
		Stages: map[domain.Stage]domain.StageStatus{
			domain.StageExtract: domain.StageCached,
			domain.StageChunk:   domain.StageComputed,
		},
	}
}
