package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/scanqa/internal/adapters/driven/ocr/poppler"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/ocr/tesseract"
	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// doctorTimeout bounds each provider ping.
const doctorTimeout = 10 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check OCR tools and AI providers",
	Long: `Verifies that Tesseract and its language data, the PDF renderer and the
configured embedding and language model providers are reachable.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// checkResult is the outcome of one doctor check.
type checkResult struct {
	name   string
	detail string
	err    error
	hint   string
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	checks := []checkResult{checkConfig()}
	checks = append(checks, checkOCR(ctx)...)
	checks = append(checks, checkEmbedding(ctx), checkLLM(ctx))

	failed := 0
	for _, c := range checks {
		if c.err != nil {
			failed++
			cmd.Printf("  [FAIL] %s: %v\n", c.name, c.err)
			if c.hint != "" {
				cmd.Println(indent(c.hint, "         "))
			}
			continue
		}
		cmd.Printf("  [ OK ] %s: %s\n", c.name, c.detail)
	}
	cmd.Println()

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	cmd.Println("All checks passed.")
	return nil
}

func checkConfig() checkResult {
	path := "(defaults)"
	if settingsStore != nil {
		path = settingsStore.Path()
	}
	if err := settings.Pipeline.Validate(); err != nil {
		return checkResult{name: "Config", err: err, hint: "Fix it with 'scanqa config set <key> <value>'."}
	}
	return checkResult{name: "Config", detail: path}
}

func checkOCR(ctx context.Context) []checkResult {
	if settings.OCR.Engine == domain.OCREngineTextLayer {
		return []checkResult{{name: "OCR", detail: "text layer (no OCR tools needed)"}}
	}

	var results []checkResult
	lang := settings.Pipeline.OCRLanguage

	if ocrTool == nil {
		results = append(results, checkResult{name: "Tesseract", err: errors.New("not configured")})
	} else {
		results = append(results, checkTesseract(ctx, lang))
	}

	if rasterTool == nil {
		results = append(results, checkResult{name: "PDF renderer", err: errors.New("not configured")})
	} else if err := rasterTool.Check(ctx); err != nil {
		results = append(results, checkResult{name: "PDF renderer", err: domain.ErrOCRUnavailable,
			hint: poppler.InstallInstructions()})
	} else {
		results = append(results, checkResult{name: "PDF renderer", detail: "pdftoppm available"})
	}
	return results
}

func checkTesseract(ctx context.Context, lang string) checkResult {
	v, err := ocrTool.Version(ctx)
	if err != nil {
		return checkResult{name: "Tesseract", err: domain.ErrOCRUnavailable, hint: tesseract.InstallInstructions()}
	}
	installed, err := ocrTool.Languages(ctx)
	if err != nil {
		return checkResult{name: "Tesseract", err: err}
	}

	var missing []string
	for _, l := range strings.Split(lang, "+") {
		if !slices.Contains(installed, l) {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		hint := fmt.Sprintf("Install the %s language data (e.g. apt install tesseract-ocr-%s).",
			strings.Join(missing, ", "), missing[0])
		if fb := settings.OCR.FallbackLanguage; fb != "" && slices.Contains(installed, fb) {
			hint += fmt.Sprintf("\nIndexing will fall back to %q meanwhile.", fb)
		}
		return checkResult{
			name: "Tesseract",
			err:  fmt.Errorf("%w: %s", domain.ErrOCRLanguageMissing, strings.Join(missing, ", ")),
			hint: hint,
		}
	}
	return checkResult{name: "Tesseract", detail: fmt.Sprintf("%s, languages: %s", v, lang)}
}

func checkEmbedding(ctx context.Context) checkResult {
	name := "Embeddings"
	e := settings.Embedding
	if !e.IsConfigured() {
		return checkResult{name: name, err: domain.ErrEmbeddingUnavailable,
			hint: embeddingHint(e.Provider)}
	}
	if aiValidator == nil {
		return checkResult{name: name, detail: "validation skipped"}
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()
	if err := aiValidator.ValidateEmbedding(ctx, &e, settings.Pipeline.EmbeddingModel); err != nil {
		return checkResult{name: name, err: err}
	}
	return checkResult{name: name, detail: fmt.Sprintf("%s (%s)", e.Provider.Description(), settings.Pipeline.EmbeddingModel)}
}

func checkLLM(ctx context.Context) checkResult {
	name := "Language model"
	l := settings.LLM
	if !l.IsConfigured() {
		return checkResult{name: name, err: domain.ErrLLMUnavailable,
			hint: "Set llm.api_key, or run 'scanqa config wizard'. 'scanqa retrieve' works without one."}
	}
	if aiValidator == nil {
		return checkResult{name: name, detail: "validation skipped"}
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()
	if err := aiValidator.ValidateLLM(ctx, &l); err != nil {
		return checkResult{name: name, err: err}
	}
	return checkResult{name: name, detail: fmt.Sprintf("%s (%s)", l.Provider.Description(), l.Model)}
}

func embeddingHint(p domain.AIProvider) string {
	if p == domain.AIProviderOpenAI {
		return "Set OPENAI_API_KEY (a .env file works), or run 'scanqa config wizard'."
	}
	return "Run 'scanqa config wizard' to choose an embedding provider."
}
