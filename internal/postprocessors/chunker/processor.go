// Package chunker splits extracted text into overlapping fixed-size chunks.
package chunker

import (
	"context"
	"fmt"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// Separators are tried in order when the boundary mode is separator:
// paragraph, Bangla danda (sentence end), line, word.
var Separators = []string{"\n\n", "।", "\n", " "}

// Processor splits extraction text into a sliding window of chunks.
// Offsets are rune offsets so Bangla text is never cut inside a character.
type Processor struct {
	chunkSize int
	overlap   int
	boundary  domain.ChunkBoundary
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithBoundary selects exact or separator-aware window ends.
func WithBoundary(b domain.ChunkBoundary) Option {
	return func(p *Processor) {
		if b.IsValid() {
			p.boundary = b
		}
	}
}

// New creates a chunker. Overlap must be strictly less than chunkSize.
func New(chunkSize, overlap int, opts ...Option) (*Processor, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", domain.ErrInvalidConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap (%d) must be in [0, chunk_size (%d))",
			domain.ErrInvalidConfig, overlap, chunkSize)
	}

	p := &Processor{
		chunkSize: chunkSize,
		overlap:   overlap,
		boundary:  domain.BoundaryChar,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FromConfig creates a chunker from the pipeline configuration.
func FromConfig(cfg domain.PipelineConfig) (*Processor, error) {
	return New(cfg.ChunkSize, cfg.ChunkOverlap, WithBoundary(cfg.ChunkBoundary))
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Span is a half-open rune range [Start, End).
type Span struct {
	Start int
	End   int
}

// Spans computes chunk boundaries over text.
// Consecutive spans overlap by the configured amount (fewer when a separator
// pulled the previous end back) and the last span always ends at len(text).
func (p *Processor) Spans(text []rune) []Span {
	n := len(text)
	if n == 0 {
		return nil
	}

	spans := make([]Span, 0, n/(p.chunkSize-p.overlap)+1)
	start := 0
	for {
		end := start + p.chunkSize
		if end > n {
			end = n
		}
		if p.boundary == domain.BoundarySeparator && end < n {
			end = p.pullBack(text, start, end)
		}

		spans = append(spans, Span{Start: start, End: end})
		if end == n {
			break
		}
		start = end - p.overlap
	}
	return spans
}

// pullBack moves end to just after the last separator in text[start:end],
// as long as the chunk keeps more than max(overlap, chunkSize/2) runes.
// That floor guarantees the next start still advances.
func (p *Processor) pullBack(text []rune, start, end int) int {
	floor := p.overlap
	if half := p.chunkSize / 2; half > floor {
		floor = half
	}

	for _, sep := range Separators {
		s := []rune(sep)
		for i := end - len(s); i >= start; i-- {
			cut := i + len(s)
			if cut-start <= floor {
				break
			}
			if matchAt(text, i, s) {
				return cut
			}
		}
	}
	return end
}

func matchAt(text []rune, i int, sep []rune) bool {
	for j, r := range sep {
		if text[i+j] != r {
			return false
		}
	}
	return true
}

// Process chunks the extraction text of one document.
// Chunk indices are assigned in a single pass over the text, which is
// already in page order, so the result is deterministic.
func (p *Processor) Process(ctx context.Context, fp domain.Fingerprint, ext domain.Extraction) ([]domain.Chunk, error) {
	if ext.Text == "" {
		// Empty content produces no chunks
		return nil, nil
	}

	text := []rune(ext.Text)
	spans := p.Spans(text)
	chunks := make([]domain.Chunk, 0, len(spans))

	for i, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(fp, i),
			DocumentID: fp,
			Index:      i,
			Start:      span.Start,
			End:        span.End,
			Page:       pageFor(ext, span),
			Content:    string(text[span.Start:span.End]),
		})
	}
	return chunks, nil
}

// pageFor returns the page holding the span's first character, or the first
// page starting inside the span when it begins on a page separator.
func pageFor(ext domain.Extraction, span Span) int {
	if page := ext.PageAt(span.Start); page >= 0 {
		return page
	}
	for _, ps := range ext.Pages {
		if ps.Start >= span.Start && ps.Start < span.End {
			return ps.Index
		}
	}
	return -1
}
