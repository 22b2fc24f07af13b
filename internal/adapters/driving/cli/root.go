// Package cli provides the scanqa command line interface.
package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/scanqa/internal/adapters/driven/ai"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/ocr/poppler"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/ocr/tesseract"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/ocr/textlayer"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/vectorindex/flat"
	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/core/ports/driving"
	"github.com/custodia-labs/scanqa/internal/core/services"
	"github.com/custodia-labs/scanqa/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Annotation controlling which services a command needs.
const (
	annotationServices = "services"
	servicesNone       = "none"
	servicesSettings   = "settings"
)

// Root flags.
var (
	verbose    bool
	configPath string
	dataDir    string
)

// Pipeline override flags, applied on top of the config file.
var (
	flagChunkSize int
	flagOverlap   int
	flagTopK      int
	flagBudget    int
	flagLang      string
	flagModel     string
)

// Services used by the commands. Populated by loadServices before a
// command runs; tests assign mocks directly.
var (
	settings        domain.Settings
	settingsStore   driven.SettingsStore
	pipelineService driving.PipelineService
	cacheService    driving.CacheService
	aiValidator     driven.AIConfigValidator
	ocrTool         ocrDiagnostics
	rasterTool      rasterDiagnostics
	closeServices   func()
)

// ocrDiagnostics reports on the OCR binary for doctor.
type ocrDiagnostics interface {
	Version(ctx context.Context) (string, error)
	Languages(ctx context.Context) ([]string, error)
}

// rasterDiagnostics reports on the page renderer for doctor.
type rasterDiagnostics interface {
	Check(ctx context.Context) error
}

// servicesLoader builds the service graph for a command.
var servicesLoader = loadServices

var rootCmd = &cobra.Command{
	Use:   "scanqa",
	Short: "Ask questions about scanned documents",
	Long: `scanqa answers questions about scanned PDFs and page images.

Pages are rendered and recognised with Tesseract (Bangla by default), split
into overlapping chunks, embedded and searched for the passages closest to
your question. A language model then answers from those passages.

Every stage is cached, so asking a second question about the same document
reuses the OCR text, chunks and embeddings.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  preRun,
	PersistentPostRunE: postRun,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "print debug output to stderr")
	flags.StringVar(&configPath, "config", "", "config file (default ~/.scanqa/config.toml)")
	flags.StringVar(&dataDir, "data-dir", "", "cache directory (default ~/.scanqa/cache)")

	flags.IntVar(&flagChunkSize, "chunk-size", 0, "chunk size in characters")
	flags.IntVar(&flagOverlap, "overlap", 0, "characters shared by adjacent chunks")
	flags.IntVarP(&flagTopK, "top-k", "k", 0, "number of passages to retrieve")
	flags.IntVar(&flagBudget, "budget", 0, "maximum size of the prompt context")
	flags.StringVar(&flagLang, "lang", "", "OCR language, e.g. ben or ben+eng")
	flags.StringVar(&flagModel, "model", "", "language model used to answer")
}

// Execute runs the root command.
func Execute(ctx context.Context, v string) error {
	if v != "" {
		version = v
	}
	// A missing .env file is not an error.
	_ = godotenv.Load() //nolint:errcheck
	return rootCmd.ExecuteContext(ctx)
}

func preRun(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	need := cmd.Annotations[annotationServices]
	if need == servicesNone || isBuiltin(cmd) {
		return nil
	}
	return servicesLoader(cmd, need == servicesSettings)
}

// isBuiltin reports cobra's own help and completion commands.
func isBuiltin(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

func postRun(_ *cobra.Command, _ []string) error {
	if closeServices != nil {
		closeServices()
		closeServices = nil
	}
	return nil
}

// loadServices reads settings and, unless settingsOnly, wires the pipeline.
func loadServices(cmd *cobra.Command, settingsOnly bool) error {
	store, err := file.NewSettingsStore(configPath)
	if err != nil {
		return err
	}
	settingsStore = store
	aiValidator = ai.NewConfigValidator()

	loaded, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading %s: %w", store.Path(), err)
	}
	if err := applyPipelineFlags(cmd, &loaded); err != nil {
		return err
	}
	settings = loaded

	if settingsOnly {
		return nil
	}

	extractor := buildExtractor(settings.OCR)

	aiServices, err := ai.Init(settings)
	if err != nil {
		return err
	}
	for _, w := range aiServices.Warnings {
		logger.Debug("%s", w)
	}

	cache, err := openCache(settings.Cache)
	if err != nil {
		aiServices.Close()
		return err
	}

	embedder := services.NewBatchEmbedder(
		aiServices.EmbeddingService, settings.Embedding.Retry, settings.Embedding.RequestsPerSecond)

	opts := []services.PipelineOption{services.WithFallbackLanguage(settings.OCR.FallbackLanguage)}
	if aiServices.LLMService != nil {
		var synthOpts []services.SynthesizerOption
		if prompts, err := file.NewPromptStore(""); err == nil {
			synthOpts = append(synthOpts, services.WithPromptStore(prompts))
		} else {
			logger.Warn("Prompt templates unavailable: %v", err)
		}
		opts = append(opts, services.WithSynthesizer(
			services.NewSynthesizer(aiServices.LLMService, settings.LLM, synthOpts...)))
	}

	pipeline := services.NewPipelineService(extractor, embedder, flat.NewBuilder(), cache, opts...)
	pipelineService = pipeline
	cacheService = pipeline

	closeServices = func() {
		aiServices.Close()
		if err := cache.Close(); err != nil {
			logger.Warn("Closing cache: %v", err)
		}
	}
	return nil
}

// buildExtractor selects the OCR engine and records its diagnostics.
func buildExtractor(ocr domain.OCRSettings) *services.ExtractionService {
	if ocr.Engine == domain.OCREngineTextLayer {
		engine := textlayer.New()
		ocrTool, rasterTool = nil, nil
		return services.NewExtractionService(engine, nil, ocr.Retry, services.WithPageSource(engine))
	}

	engine := tesseract.New(ocr.Command)
	rasterizer := poppler.New(ocr.RasterCommand)
	ocrTool, rasterTool = engine, rasterizer
	return services.NewExtractionService(engine, rasterizer, ocr.Retry)
}

// openCache opens the durable cache, or an in-memory one when disabled.
func openCache(cfg domain.CacheSettings) (driven.ArtifactCache, error) {
	if cfg.Disabled {
		return memory.NewArtifactCache(), nil
	}
	dir, err := cacheDir(cfg)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening cache in %s: %w", dir, err)
	}
	return store, nil
}

// cacheDir resolves --data-dir, then cache.dir, then ~/.scanqa/cache.
func cacheDir(cfg domain.CacheSettings) (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	if cfg.Dir != "" {
		return cfg.Dir, nil
	}
	base, err := file.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "cache"), nil
}

// applyPipelineFlags overrides settings with flags set on the command line
// and validates the result.
func applyPipelineFlags(cmd *cobra.Command, s *domain.Settings) error {
	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		s.Pipeline.ChunkSize = flagChunkSize
	}
	if flags.Changed("overlap") {
		s.Pipeline.ChunkOverlap = flagOverlap
	}
	if flags.Changed("top-k") {
		s.Pipeline.TopK = flagTopK
	}
	if flags.Changed("budget") {
		s.Pipeline.ContextBudget = flagBudget
	}
	if flags.Changed("lang") {
		s.Pipeline.OCRLanguage = flagLang
	}
	if flags.Changed("model") {
		s.LLM.Model = flagModel
	}
	return s.Pipeline.Validate()
}
