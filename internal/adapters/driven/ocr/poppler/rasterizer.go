// Package poppler renders PDF pages to images with pdftoppm.
package poppler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/logger"
	"github.com/custodia-labs/scanqa/internal/util"
)

// Ensure Rasterizer implements the interface.
var _ driven.Rasterizer = (*Rasterizer)(nil)

// DefaultCommand is the binary looked up on PATH.
const DefaultCommand = "pdftoppm"

// pagePrefix names rendered files: page-1.png, page-01.png, ...
const pagePrefix = "page"

// imageExtensions are passed through as single-page documents.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// Rasterizer renders PDF pages with pdftoppm.
type Rasterizer struct {
	command string
	runner  util.CommandRunner
}

// New creates a rasterizer that runs command, or "pdftoppm" if empty.
func New(command string) *Rasterizer {
	return NewWithRunner(command, util.ExecRunner{})
}

// NewWithRunner creates a rasterizer with a custom command runner.
func NewWithRunner(command string, runner util.CommandRunner) *Rasterizer {
	if command == "" {
		command = DefaultCommand
	}
	return &Rasterizer{command: command, runner: runner}
}

// IsImage reports whether path is an image the OCR engine reads directly.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Check verifies pdftoppm can run.
func (r *Rasterizer) Check(ctx context.Context) error {
	if _, err := r.runner.Run(ctx, r.command, "-v"); err != nil {
		return r.unavailable(err)
	}
	return nil
}

// Rasterize renders every page of doc into dir at dpi.
func (r *Rasterizer) Rasterize(ctx context.Context, doc domain.Document, dir string, dpi int) ([]domain.Page, error) {
	if IsImage(doc.Path) {
		return []domain.Page{{Index: 0, DPI: dpi, ImagePath: doc.Path, SourcePath: doc.Path}}, nil
	}
	if strings.ToLower(filepath.Ext(doc.Path)) != ".pdf" {
		return nil, fmt.Errorf("%w: unsupported document type %q", domain.ErrInvalidInput, filepath.Ext(doc.Path))
	}

	count, err := PageCount(doc.Path)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	out := filepath.Join(dir, pagePrefix)
	if _, err := r.runner.Run(ctx, r.command, "-r", strconv.Itoa(dpi), "-png", doc.Path, out); err != nil {
		if util.IsNotInstalled(err) {
			return nil, r.unavailable(err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// pdftoppm renders the pages it can before failing.
		logger.Warn("pdftoppm failed on %s: %v", filepath.Base(doc.Path), err)
	}

	rendered, err := renderedPages(dir)
	if err != nil {
		return nil, err
	}

	pages := make([]domain.Page, count)
	for i := range pages {
		pages[i] = domain.Page{Index: i, DPI: dpi, ImagePath: rendered[i+1], SourcePath: doc.Path}
	}
	logger.Debug("Rasterized %d of %d pages at %d dpi", len(rendered), count, dpi)
	return pages, nil
}

// renderedPages maps one-based page numbers to the files pdftoppm wrote.
// pdftoppm zero-pads the number to the width of the page count.
func renderedPages(dir string) (map[int]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pagePrefix+"-*.png"))
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	pages := make(map[int]string, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".png")
		n, err := strconv.Atoi(strings.TrimPrefix(name, pagePrefix+"-"))
		if err != nil || n <= 0 {
			continue
		}
		if info, err := os.Stat(m); err != nil || info.Size() == 0 {
			continue
		}
		pages[n] = m
	}
	return pages, nil
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (count int, err error) {
	// The PDF reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed PDF: %v", domain.ErrInvalidInput, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open PDF: %w", domain.ErrInvalidInput, err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}

func (r *Rasterizer) unavailable(err error) error {
	return fmt.Errorf("%w: %s: %w\n%s", domain.ErrOCRUnavailable, r.command, err, InstallInstructions())
}

// InstallInstructions returns how to install pdftoppm.
func InstallInstructions() string {
	return `pdftoppm (poppler) is required to render PDF pages. Install it with:
  macOS:   brew install poppler
  Ubuntu:  sudo apt install poppler-utils
  Fedora:  sudo dnf install poppler-utils
  Windows: winget install oschwartz10612.Poppler`
}
