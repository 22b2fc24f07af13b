package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/logger"
	"github.com/custodia-labs/scanqa/internal/util"
)

// errPageNotRendered marks a page the rasterizer could not produce.
var errPageNotRendered = errors.New("page was not rendered")

// ExtractionService turns a document into page-ordered text by
// rasterizing its pages and running OCR on each of them.
type ExtractionService struct {
	engine     driven.OCREngine
	rasterizer driven.Rasterizer
	pages      driven.PageSource
	retry      domain.RetryPolicy
}

// ExtractionOption configures the extraction service.
type ExtractionOption func(*ExtractionService)

// WithPageSource lists pages without rendering them. Used by engines that
// read the document directly, such as the PDF text layer.
func WithPageSource(ps driven.PageSource) ExtractionOption {
	return func(s *ExtractionService) {
		s.pages = ps
	}
}

// NewExtractionService creates an extraction service.
// The rasterizer may be nil when a page source is configured.
func NewExtractionService(
	engine driven.OCREngine,
	rasterizer driven.Rasterizer,
	retry domain.RetryPolicy,
	opts ...ExtractionOption,
) *ExtractionService {
	s := &ExtractionService{
		engine:     engine,
		rasterizer: rasterizer,
		retry:      retry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EngineName returns the name of the configured OCR engine.
func (s *ExtractionService) EngineName() string {
	if s.engine == nil {
		return ""
	}
	return s.engine.Name()
}

// Check verifies the OCR engine can run for lang.
func (s *ExtractionService) Check(ctx context.Context, lang string) error {
	if s.engine == nil {
		return fmt.Errorf("%w: no OCR engine configured", domain.ErrOCRUnavailable)
	}
	if err := s.engine.Check(ctx, lang); err != nil {
		if errors.Is(err, domain.ErrOCRUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrOCRUnavailable, err)
	}
	return nil
}

// Extract recognises every page of doc. Page failures never fail the call:
// they are listed in Extraction.FailedPages and reported as warnings.
// When every page fails the extraction is empty and carries an
// empty-document warning.
func (s *ExtractionService) Extract(
	ctx context.Context, doc domain.Document, cfg domain.PipelineConfig,
) (domain.Extraction, []domain.Warning, error) {
	defer logger.Timed("extraction")()

	if err := s.Check(ctx, cfg.OCRLanguage); err != nil {
		return domain.Extraction{}, nil, err
	}

	pages, needImages, cleanup, err := s.listPages(ctx, doc, cfg.OCRDPI)
	defer cleanup()
	if err != nil {
		return domain.Extraction{}, nil, err
	}
	logger.Debug("Extracting %d pages from %s (lang=%s, dpi=%d)", len(pages), doc.Path, cfg.OCRLanguage, cfg.OCRDPI)

	texts, pageErrs, err := s.recognize(ctx, pages, needImages, cfg)
	if err != nil {
		return domain.Extraction{}, nil, err
	}

	ext := assemble(pages, texts, pageErrs)
	ext.Engine = s.engine.Name() + "/" + cfg.OCRLanguage

	for _, pe := range pageErrs {
		if pe != nil {
			logger.Debug("OCR %v", pe)
		}
	}

	warnings := ocrWarnings(ext)
	for _, w := range warnings {
		logger.Warn("%s", w.Message)
	}
	return ext, warnings, nil
}

// listPages returns the pages to recognise and a cleanup func that is
// always safe to call.
func (s *ExtractionService) listPages(
	ctx context.Context, doc domain.Document, dpi int,
) ([]domain.Page, bool, func(), error) {
	noop := func() {}

	if s.pages != nil {
		pages, err := s.pages.Pages(ctx, doc)
		if err != nil {
			return nil, false, noop, pageListError(err)
		}
		return pages, false, noop, nil
	}

	if s.rasterizer == nil {
		return nil, false, noop, fmt.Errorf("%w: no rasterizer configured", domain.ErrOCRUnavailable)
	}

	dir, err := os.MkdirTemp("", "scanqa-pages-*")
	if err != nil {
		return nil, false, noop, fmt.Errorf("create page directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Debug("Failed to remove page directory %s: %v", dir, err)
		}
	}

	pages, err := s.rasterizer.Rasterize(ctx, doc, dir, dpi)
	if err != nil {
		return nil, true, cleanup, pageListError(err)
	}
	return pages, true, cleanup, nil
}

func pageListError(err error) error {
	if errors.Is(err, domain.ErrOCRUnavailable) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
}

// recognize runs OCR on pages concurrently. Results are indexed by
// position in pages so assembly order does not depend on completion order.
func (s *ExtractionService) recognize(
	ctx context.Context, pages []domain.Page, needImages bool, cfg domain.PipelineConfig,
) ([]string, []*domain.PageError, error) {
	texts := make([]string, len(pages))
	pageErrs := make([]*domain.PageError, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.OCRConcurrency))

	for i, page := range pages {
		g.Go(func() error {
			if needImages && page.ImagePath == "" {
				pageErrs[i] = &domain.PageError{Page: page.Index, Err: errPageNotRendered}
				return nil
			}

			var text string
			err := util.Do(gctx, s.retry, ocrRetryable, func(ctx context.Context) error {
				out, err := s.engine.Recognize(ctx, page, cfg.OCRLanguage)
				if err != nil {
					return err
				}
				text = out
				return nil
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				pageErrs[i] = &domain.PageError{Page: page.Index, Err: err}
				return nil
			}
			texts[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return texts, pageErrs, nil
}

func ocrRetryable(err error) bool {
	if errors.Is(err, domain.ErrOCRUnavailable) {
		return false
	}
	return isRetryable(err)
}

// assemble joins page texts in page order and records the rune span of each.
// Failed and blank pages contribute no text.
func assemble(pages []domain.Page, texts []string, pageErrs []*domain.PageError) domain.Extraction {
	ext := domain.Extraction{PageCount: len(pages)}
	sepLen := utf8.RuneCountInString(domain.PageSeparator)

	var b strings.Builder
	offset := 0
	for i, page := range pages {
		text := strings.TrimSpace(texts[i])
		if pageErrs[i] != nil || text == "" {
			ext.FailedPages = append(ext.FailedPages, page.Index)
			continue
		}
		if len(ext.Pages) > 0 {
			b.WriteString(domain.PageSeparator)
			offset += sepLen
		}
		start := offset
		b.WriteString(text)
		offset += utf8.RuneCountInString(text)
		ext.Pages = append(ext.Pages, domain.PageSpan{Index: page.Index, Start: start, End: offset})
	}
	ext.Text = b.String()
	return ext
}

// ocrWarnings describes the failed pages of an extraction.
func ocrWarnings(ext domain.Extraction) []domain.Warning {
	if len(ext.FailedPages) == 0 && ext.PageCount > 0 {
		return nil
	}
	if ext.Empty() {
		return []domain.Warning{{
			Kind:    domain.WarningEmptyDocument,
			Message: fmt.Sprintf("no text extracted from any of %d pages", ext.PageCount),
			Pages:   ext.FailedPages,
		}}
	}
	return []domain.Warning{{
		Kind:    domain.WarningOCRPartialFailure,
		Message: fmt.Sprintf("OCR produced no text for %d of %d pages", len(ext.FailedPages), ext.PageCount),
		Pages:   ext.FailedPages,
	}}
}
