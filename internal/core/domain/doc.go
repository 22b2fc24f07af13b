// Package domain defines the core entities of the scanqa pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A fingerprinted input file (scanned PDF or page image)
//   - Extraction: The OCR text of a document with per-page boundaries
//   - Chunk: An overlapping span of extracted text used for retrieval
//   - EmbeddingSet: The vectors computed for a document's chunks
//   - DocumentHandle: An indexed document ready to answer questions
//   - Answer: A synthesised answer with cited chunks and warnings
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
