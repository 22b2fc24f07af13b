package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/scanqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/vectorindex/flat"
	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockOCREngine implements driven.OCREngine for testing.
type mockOCREngine struct {
	mu       sync.Mutex
	texts    map[int]string
	errs     map[int]error
	checkErr func(lang string) error
	langs    []string
	calls    int
}

func (m *mockOCREngine) Name() string { return "tesseract" }

func (m *mockOCREngine) Check(_ context.Context, lang string) error {
	if m.checkErr != nil {
		return m.checkErr(lang)
	}
	return nil
}

func (m *mockOCREngine) Recognize(_ context.Context, page domain.Page, lang string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.langs = append(m.langs, lang)
	if err, ok := m.errs[page.Index]; ok {
		return "", err
	}
	return m.texts[page.Index], nil
}

func (m *mockOCREngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockRasterizer implements driven.Rasterizer for testing.
type mockRasterizer struct {
	pages      int
	unrendered map[int]bool
	err        error
	dirs       []string
}

func (m *mockRasterizer) Rasterize(_ context.Context, _ domain.Document, dir string, dpi int) ([]domain.Page, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.dirs = append(m.dirs, dir)
	pages := make([]domain.Page, m.pages)
	for i := range pages {
		pages[i] = domain.Page{Index: i, DPI: dpi}
		if !m.unrendered[i] {
			pages[i].ImagePath = filepath.Join(dir, fmt.Sprintf("page-%d.png", i))
		}
	}
	return pages, nil
}

// mockEmbeddingService implements driven.EmbeddingService with a
// deterministic bag-of-runes vector.
type mockEmbeddingService struct {
	mu       sync.Mutex
	model    string
	dims     int
	failOn   func(texts []string) error
	embedded int
	batches  int
}

func newMockEmbedder() *mockEmbeddingService {
	return &mockEmbeddingService{model: domain.DefaultEmbeddingModel, dims: 8}
}

func (m *mockEmbeddingService) vector(text string) []float32 {
	v := make([]float32, m.dims)
	for _, r := range text {
		v[int(r)%m.dims]++
	}
	return v
}

func (m *mockEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	if m.failOn != nil {
		if err := m.failOn([]string{text}); err != nil {
			return nil, err
		}
	}
	return m.vector(text), nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batches++
	m.mu.Unlock()
	if m.failOn != nil {
		if err := m.failOn(texts); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	m.embedded += len(texts)
	m.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *mockEmbeddingService) embeddedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedded
}

func (m *mockEmbeddingService) Dimensions() int { return m.dims }
func (m *mockEmbeddingService) ModelName() string { return m.model }
func (m *mockEmbeddingService) Ping(_ context.Context) error { return nil }
func (m *mockEmbeddingService) Close() error { return nil }

// mockLLMService implements driven.LLMService for testing.
type mockLLMService struct {
	mu       sync.Mutex
	reply    string
	errs     []error
	calls    int
	messages []driven.ChatMessage
	opts     driven.ChatOptions
}

func (m *mockLLMService) Generate(_ context.Context, _ string, _ driven.GenerateOptions) (string, error) {
	return m.reply, nil
}

func (m *mockLLMService) Chat(_ context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.messages = messages
	m.opts = opts
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return m.reply, nil
}

func (m *mockLLMService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockLLMService) ModelName() string { return domain.DefaultLLMModel }
func (m *mockLLMService) Ping(_ context.Context) error { return nil }
func (m *mockLLMService) Close() error { return nil }

// statusError implements driven.StatusError for testing.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d", e.code) }
func (e *statusError) StatusCode() int { return e.code }

// --- Helpers ---

var errTransient = errors.New("transient failure")

func fastRetry() domain.RetryPolicy {
	return domain.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, Timeout: time.Second}
}

func testConfig() domain.PipelineConfig {
	cfg := domain.DefaultPipelineConfig()
	cfg.ChunkSize = 40
	cfg.ChunkOverlap = 10
	cfg.EmbeddingBatchSize = 2
	return cfg
}

// bengaliPages returns page texts long enough to produce several chunks.
func bengaliPages(n int) map[int]string {
	texts := make(map[int]string, n)
	for i := range n {
		texts[i] = strings.Repeat(fmt.Sprintf("পৃষ্ঠা %d বাংলা লেখা। ", i+1), 4)
	}
	return texts
}

type pipelineFixture struct {
	ocr      *mockOCREngine
	raster   *mockRasterizer
	embed    *mockEmbeddingService
	llm      *mockLLMService
	cache    *memory.ArtifactCache
	pipeline *PipelineService
	path     string
}

func newPipelineFixture(t *testing.T, pages int, opts ...PipelineOption) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		ocr:    &mockOCREngine{texts: bengaliPages(pages)},
		raster: &mockRasterizer{pages: pages},
		embed:  newMockEmbedder(),
		llm:    &mockLLMService{reply: "উত্তর"},
		cache:  memory.NewArtifactCache(),
		path:   writeFile(t, "scan.pdf", []byte("%PDF-1.4 scanned")),
	}
	f.pipeline = f.build(opts...)
	return f
}

func (f *pipelineFixture) build(opts ...PipelineOption) *PipelineService {
	settings := domain.DefaultSettings().LLM
	settings.Retry = fastRetry()
	all := append([]PipelineOption{
		WithSynthesizer(NewSynthesizer(f.llm, settings)),
	}, opts...)
	return NewPipelineService(
		NewExtractionService(f.ocr, f.raster, fastRetry()),
		NewBatchEmbedder(f.embed, fastRetry(), 0),
		flat.NewBuilder(),
		f.cache,
		all...,
	)
}

func requireIndexed(t *testing.T, f *pipelineFixture, cfg domain.PipelineConfig) *domain.DocumentHandle {
	t.Helper()
	h, err := f.pipeline.IndexDocument(context.Background(), f.path, cfg)
	require.NoError(t, err)
	require.NotNil(t, h)
	return h
}
