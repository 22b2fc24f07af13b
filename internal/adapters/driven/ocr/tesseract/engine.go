// Package tesseract runs the Tesseract OCR command line tool on page images.
package tesseract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/util"
)

// Ensure Engine implements the interface.
var _ driven.OCREngine = (*Engine)(nil)

// Name identifies the engine in cache keys.
const Name = "tesseract"

// DefaultCommand is the binary looked up on PATH.
const DefaultCommand = "tesseract"

// Recognition flags: LSTM engine, single uniform block of text.
var recognitionArgs = []string{"--oem", "3", "--psm", "6"}

// Engine recognises page images with the tesseract binary.
type Engine struct {
	command string
	runner  util.CommandRunner
}

// New creates an engine that runs command, or "tesseract" if empty.
func New(command string) *Engine {
	return NewWithRunner(command, util.ExecRunner{})
}

// NewWithRunner creates an engine with a custom command runner.
func NewWithRunner(command string, runner util.CommandRunner) *Engine {
	if command == "" {
		command = DefaultCommand
	}
	return &Engine{command: command, runner: runner}
}

// Name returns "tesseract".
func (e *Engine) Name() string {
	return Name
}

// Version returns the first line of `tesseract --version`.
func (e *Engine) Version(ctx context.Context) (string, error) {
	out, err := e.runner.Run(ctx, e.command, "--version")
	if err != nil {
		return "", e.unavailable(err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// Languages returns the installed language codes.
func (e *Engine) Languages(ctx context.Context) ([]string, error) {
	out, err := e.runner.Run(ctx, e.command, "--list-langs")
	if err != nil {
		return nil, e.unavailable(err)
	}
	return parseLanguages(out), nil
}

// Check verifies tesseract runs and has data for every language in lang.
// Languages may be combined with "+", as in "ben+eng".
func (e *Engine) Check(ctx context.Context, lang string) error {
	if _, err := e.Version(ctx); err != nil {
		return err
	}
	installed, err := e.Languages(ctx)
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(installed))
	for _, l := range installed {
		have[l] = true
	}
	for _, want := range strings.Split(lang, "+") {
		if !have[want] {
			return fmt.Errorf("%w: %w: tesseract has no %q data\n%s",
				domain.ErrOCRUnavailable, domain.ErrOCRLanguageMissing, want, LanguageInstructions(want))
		}
	}
	return nil
}

// Recognize returns the text of one page.
// Pages without a rendered image are read from their source file.
func (e *Engine) Recognize(ctx context.Context, page domain.Page, lang string) (string, error) {
	path := page.ImagePath
	if path == "" {
		path = page.SourcePath
	}
	if path == "" {
		return "", fmt.Errorf("%w: page %d has no image", domain.ErrInvalidInput, page.Index+1)
	}

	args := append([]string{path, "stdout"}, recognitionArgs...)
	args = append(args, "-l", lang)
	out, err := e.runner.Run(ctx, e.command, args...)
	if err != nil {
		if util.IsNotInstalled(err) {
			return "", e.unavailable(err)
		}
		return "", fmt.Errorf("tesseract page %d: %w", page.Index+1, err)
	}
	return string(out), nil
}

func (e *Engine) unavailable(err error) error {
	return fmt.Errorf("%w: %s: %w\n%s", domain.ErrOCRUnavailable, e.command, err, InstallInstructions())
}

// parseLanguages reads `tesseract --list-langs` output, which starts
// with a header line followed by one code per line.
func parseLanguages(out []byte) []string {
	var langs []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of available languages") {
			continue
		}
		langs = append(langs, line)
	}
	return langs
}

// InstallInstructions returns how to install tesseract.
func InstallInstructions() string {
	return `tesseract is required for OCR. Install it with:
  macOS:   brew install tesseract tesseract-lang
  Ubuntu:  sudo apt install tesseract-ocr tesseract-ocr-ben
  Fedora:  sudo dnf install tesseract tesseract-langpack-ben
  Windows: winget install UB-Mannheim.TesseractOCR`
}

// LanguageInstructions returns how to add data for lang.
func LanguageInstructions(lang string) string {
	return fmt.Sprintf(`Install the %[1]s language pack (for example tesseract-ocr-%[1]s), or download
https://github.com/tesseract-ocr/tessdata/raw/main/%[1]s.traineddata
into your tessdata directory (see: tesseract --list-langs).`, lang)
}
