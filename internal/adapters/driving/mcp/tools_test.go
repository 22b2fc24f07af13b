package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

func newTestServer(t *testing.T, pipeline *mockPipelineService) *Server {
	t.Helper()
	server, err := NewServer(&Ports{Pipeline: pipeline}, domain.DefaultPipelineConfig())
	require.NoError(t, err)
	return server
}

func TestHandleIndex(t *testing.T) {
	t.Run("returns handle summary", func(t *testing.T) {
		handle := testHandle()
		pipeline := &mockPipelineService{handle: handle}
		server := newTestServer(t, pipeline)

		_, output, err := server.handleIndex(context.Background(), nil, IndexInput{Path: " /scans/report.pdf "})
		require.NoError(t, err)

		assert.Equal(t, "/scans/report.pdf", pipeline.indexedPath)
		assert.Equal(t, "abc123def4567890ffff", output.DocumentID)
		assert.Equal(t, "report.pdf", output.Title)
		assert.Equal(t, 3, output.Pages)
		assert.Equal(t, []int{2}, output.FailedPages)
		assert.Equal(t, 2, output.Chunks)
		assert.False(t, output.Empty)
		assert.Equal(t, map[string]string{"extract": "cached", "chunk": "computed"}, output.Stages)
		assert.Equal(t, []string{"ocr_partial_failure: 1 of 3 pages failed"}, output.Warnings)
		assert.True(t, handle.Closed())
	})

	t.Run("empty document is not an error", func(t *testing.T) {
		handle := testHandle()
		handle.Chunks = nil
		pipeline := &mockPipelineService{
			handle:   handle,
			indexErr: fmt.Errorf("%w: no text", domain.ErrEmptyDocument),
		}
		server := newTestServer(t, pipeline)

		_, output, err := server.handleIndex(context.Background(), nil, IndexInput{Path: "/scans/blank.pdf"})
		require.NoError(t, err)
		assert.True(t, output.Empty)
		assert.Equal(t, 0, output.Chunks)
	})

	t.Run("missing path returns error", func(t *testing.T) {
		server := newTestServer(t, &mockPipelineService{})

		_, _, err := server.handleIndex(context.Background(), nil, IndexInput{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("pipeline error propagates", func(t *testing.T) {
		pipeline := &mockPipelineService{indexErr: domain.ErrOCRUnavailable}
		server := newTestServer(t, pipeline)

		_, _, err := server.handleIndex(context.Background(), nil, IndexInput{Path: "/scans/report.pdf"})
		assert.ErrorIs(t, err, domain.ErrOCRUnavailable)
	})
}

func TestHandleAsk(t *testing.T) {
	t.Run("returns answer with citations", func(t *testing.T) {
		handle := testHandle()
		pipeline := &mockPipelineService{
			handle: handle,
			answer: &domain.Answer{
				Question: "কী?",
				Text:     "উত্তর",
				Outcome:  domain.OutcomeMatched,
				Model:    "gpt-4o",
				Citations: []domain.ScoredChunk{
					{Chunk: handle.Chunks[1], Score: 0.91},
				},
			},
		}
		server := newTestServer(t, pipeline)

		_, output, err := server.handleAsk(context.Background(), nil, AskInput{
			Path:     "/scans/report.pdf",
			Question: "কী?",
		})
		require.NoError(t, err)

		assert.Equal(t, "উত্তর", output.Answer)
		assert.Equal(t, "matched", output.Outcome)
		assert.Equal(t, "gpt-4o", output.Model)
		require.Len(t, output.Citations, 1)
		assert.Equal(t, "abc123def4567890:1", output.Citations[0].ChunkID)
		assert.Equal(t, 2, output.Citations[0].Page)
		assert.InDelta(t, 0.91, output.Citations[0].Score, 1e-9)
		assert.Equal(t, "কী?", pipeline.question)
		assert.Equal(t, domain.DefaultTopK, pipeline.askedCfg.TopK)
		assert.True(t, handle.Closed())
	})

	t.Run("top_k overrides configuration", func(t *testing.T) {
		pipeline := &mockPipelineService{
			handle: testHandle(),
			answer: &domain.Answer{Outcome: domain.OutcomeMatched},
		}
		server := newTestServer(t, pipeline)

		_, _, err := server.handleAsk(context.Background(), nil, AskInput{
			Path: "/scans/report.pdf", Question: "q", TopK: 7,
		})
		require.NoError(t, err)
		assert.Equal(t, 7, pipeline.askedCfg.TopK)
	})

	t.Run("no match returns outcome", func(t *testing.T) {
		pipeline := &mockPipelineService{
			handle:    testHandle(),
			answer:    &domain.Answer{Outcome: domain.OutcomeNoMatch, Citations: []domain.ScoredChunk{}},
			answerErr: fmt.Errorf("%w: below threshold", domain.ErrNoMatch),
		}
		server := newTestServer(t, pipeline)

		_, output, err := server.handleAsk(context.Background(), nil, AskInput{Path: "/a.pdf", Question: "q"})
		require.NoError(t, err)
		assert.Equal(t, "no_match", output.Outcome)
		assert.Empty(t, output.Answer)
		assert.Empty(t, output.Citations)
	})

	t.Run("no content returns outcome", func(t *testing.T) {
		handle := testHandle()
		handle.Chunks = nil
		pipeline := &mockPipelineService{
			handle:    handle,
			indexErr:  domain.ErrEmptyDocument,
			answer:    &domain.Answer{Outcome: domain.OutcomeNoContent, Citations: []domain.ScoredChunk{}},
			answerErr: domain.ErrNoContent,
		}
		server := newTestServer(t, pipeline)

		_, output, err := server.handleAsk(context.Background(), nil, AskInput{Path: "/a.pdf", Question: "q"})
		require.NoError(t, err)
		assert.Equal(t, "no_content", output.Outcome)
	})

	t.Run("llm error propagates", func(t *testing.T) {
		pipeline := &mockPipelineService{
			handle:    testHandle(),
			answerErr: domain.ErrLLMUnavailable,
		}
		server := newTestServer(t, pipeline)

		_, _, err := server.handleAsk(context.Background(), nil, AskInput{Path: "/a.pdf", Question: "q"})
		assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	})

	t.Run("index error propagates", func(t *testing.T) {
		pipeline := &mockPipelineService{indexErr: errors.New("disk gone")}
		server := newTestServer(t, pipeline)

		_, _, err := server.handleAsk(context.Background(), nil, AskInput{Path: "/a.pdf", Question: "q"})
		assert.EqualError(t, err, "disk gone")
	})

	t.Run("missing question returns error", func(t *testing.T) {
		server := newTestServer(t, &mockPipelineService{})

		_, _, err := server.handleAsk(context.Background(), nil, AskInput{Path: "/a.pdf", Question: "  "})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("missing path returns error", func(t *testing.T) {
		server := newTestServer(t, &mockPipelineService{})

		_, _, err := server.handleAsk(context.Background(), nil, AskInput{Question: "q"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
