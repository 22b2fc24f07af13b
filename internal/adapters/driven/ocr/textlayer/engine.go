// Package textlayer reads the embedded text layer of born-digital PDFs.
// It needs no rasterizer and no language data.
package textlayer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
)

// Ensure Engine implements the interfaces.
var (
	_ driven.OCREngine  = (*Engine)(nil)
	_ driven.PageSource = (*Engine)(nil)
)

// Name identifies the engine in cache keys.
const Name = "textlayer"

// Engine extracts page text from the PDF content streams.
type Engine struct{}

// New creates a text layer engine.
func New() *Engine {
	return &Engine{}
}

// Name returns "textlayer".
func (e *Engine) Name() string {
	return Name
}

// Check always succeeds; the text layer is language independent.
func (e *Engine) Check(_ context.Context, _ string) error {
	return nil
}

// Pages lists the pages of a PDF without rendering them.
func (e *Engine) Pages(_ context.Context, doc domain.Document) ([]domain.Page, error) {
	if !isPDF(doc.Path) {
		return nil, fmt.Errorf("%w: text layer needs a PDF, got %q", domain.ErrInvalidInput, filepath.Ext(doc.Path))
	}
	var count int
	err := withReader(doc.Path, func(r *pdf.Reader) error {
		count = r.NumPage()
		return nil
	})
	if err != nil {
		return nil, err
	}

	pages := make([]domain.Page, count)
	for i := range pages {
		pages[i] = domain.Page{Index: i, SourcePath: doc.Path}
	}
	return pages, nil
}

// Recognize returns the embedded text of one page.
func (e *Engine) Recognize(ctx context.Context, page domain.Page, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var text string
	err := withReader(page.SourcePath, func(r *pdf.Reader) error {
		if page.Index < 0 || page.Index >= r.NumPage() {
			return fmt.Errorf("%w: page %d out of range", domain.ErrInvalidInput, page.Index+1)
		}
		p := r.Page(page.Index + 1)
		if p.V.IsNull() {
			return nil
		}
		out, err := p.GetPlainText(nil)
		if err != nil {
			return fmt.Errorf("page %d text: %w", page.Index+1, err)
		}
		text = out
		return nil
	})
	return text, err
}

// withReader opens path and calls fn. Panics from malformed files are
// reported as invalid input.
func withReader(path string, fn func(*pdf.Reader) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed PDF: %v", domain.ErrInvalidInput, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open PDF: %w", domain.ErrInvalidInput, err)
	}
	defer f.Close()
	return fn(reader)
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
