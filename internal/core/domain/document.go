package domain

import (
	"fmt"
	"sort"
)

// Fingerprint is the hex-encoded SHA-256 cache key of a document.
type Fingerprint string

// String returns the full fingerprint.
func (f Fingerprint) String() string {
	return string(f)
}

// Short returns the first 16 hex characters, used in chunk IDs and listings.
func (f Fingerprint) Short() string {
	if len(f) <= 16 {
		return string(f)
	}
	return string(f[:16])
}

// FingerprintMode selects how a document's fingerprint is derived.
type FingerprintMode string

// Available fingerprint modes.
const (
	// FingerprintContent hashes the document bytes.
	FingerprintContent FingerprintMode = "content"

	// FingerprintStat hashes the absolute path, size and modification time.
	// Cheaper for very large scans but misses in-place rewrites that keep mtime.
	FingerprintStat FingerprintMode = "stat"
)

// IsValid returns true if the mode is recognised.
func (m FingerprintMode) IsValid() bool {
	return m == FingerprintContent || m == FingerprintStat
}

// Document is an input file identified by its fingerprint.
// It is immutable once fingerprinted; a changed file yields a new fingerprint.
type Document struct {
	// Path is the location of the file on disk.
	Path string

	// Title is the base name, for display.
	Title string

	// Fingerprint is the cache key for every derived artifact.
	Fingerprint Fingerprint

	// Size is the file size in bytes.
	Size int64
}

// Page is a rasterised page of a document. Transient, consumed by OCR.
type Page struct {
	// Index is the zero-based page number.
	Index int

	// DPI is the raster resolution.
	DPI int

	// ImagePath is the rendered page image. Empty when rendering failed.
	ImagePath string

	// SourcePath is the document the page belongs to.
	SourcePath string
}

// PageSpan locates one page inside the joined extraction text.
// Offsets are rune offsets, End is exclusive.
type PageSpan struct {
	Index int `json:"index"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// PageSeparator joins the text of consecutive pages.
const PageSeparator = "\n\n"

// Extraction is the OCR output of a whole document.
type Extraction struct {
	// Text is the recognised text of all successful pages, in page order.
	Text string `json:"text"`

	// Pages locates each successful page inside Text.
	Pages []PageSpan `json:"pages"`

	// PageCount is the number of pages in the document.
	PageCount int `json:"page_count"`

	// FailedPages lists pages that errored or produced no text.
	FailedPages []int `json:"failed_pages,omitempty"`

	// Engine identifies the OCR engine and language used.
	Engine string `json:"engine"`
}

// Empty returns true if no text was extracted.
func (e Extraction) Empty() bool {
	return len(e.Pages) == 0
}

// Degraded returns true if at least one page failed.
func (e Extraction) Degraded() bool {
	return len(e.FailedPages) > 0
}

// PageAt returns the page index containing the rune offset,
// or -1 if the offset falls outside every page.
func (e Extraction) PageAt(offset int) int {
	i := sort.Search(len(e.Pages), func(i int) bool {
		return e.Pages[i].End > offset
	})
	if i < len(e.Pages) && e.Pages[i].Start <= offset {
		return e.Pages[i].Index
	}
	return -1
}

// Chunk is a contiguous span of extracted text used as a retrieval unit.
// Chunks of one document form an ordered, possibly overlapping sequence.
type Chunk struct {
	// ID is "<short fingerprint>:<index>".
	ID string `json:"id"`

	// DocumentID is the fingerprint of the owning document.
	DocumentID Fingerprint `json:"document_id"`

	// Index is the sequence position, used for ordering and citation.
	Index int `json:"index"`

	// Start is the rune offset of the first character in the extraction text.
	Start int `json:"start"`

	// End is the exclusive rune offset.
	End int `json:"end"`

	// Page is the page containing Start, or -1 when unknown.
	Page int `json:"page"`

	// Content is the chunk text.
	Content string `json:"content"`
}

// ChunkID builds the identifier for the chunk at index.
func ChunkID(fp Fingerprint, index int) string {
	return fmt.Sprintf("%s:%d", fp.Short(), index)
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return c.End - c.Start
}
