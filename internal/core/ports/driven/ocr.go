package driven

import (
	"context"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// Rasterizer renders the pages of a document to images.
// Treated as an opaque dependency; the extraction service owns the error policy.
type Rasterizer interface {
	// Rasterize renders every page of doc into dir at the given resolution.
	// Pages that could not be rendered are returned with an empty ImagePath.
	// Returns domain.ErrOCRUnavailable if the renderer cannot run at all.
	Rasterize(ctx context.Context, doc domain.Document, dir string, dpi int) ([]domain.Page, error)
}

// OCREngine recognises text in a single page.
// One engine serves every language it has data for.
type OCREngine interface {
	// Name identifies the engine, e.g. "tesseract". Part of the cache key.
	Name() string

	// Check verifies the engine and the language data for lang are installed.
	// Returns domain.ErrOCRUnavailable, joined with domain.ErrOCRLanguageMissing
	// when only the language data is absent.
	Check(ctx context.Context, lang string) error

	// Recognize returns the text of one page in language lang.
	Recognize(ctx context.Context, page domain.Page, lang string) (string, error)
}

// PageSource is implemented by engines that read pages directly from the
// document and need no rasterization.
type PageSource interface {
	// Pages lists the pages of doc without rendering them.
	Pages(ctx context.Context, doc domain.Document) ([]domain.Page, error)
}
