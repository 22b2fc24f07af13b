// Package sqlite provides a durable SQLite implementation of driven.ArtifactCache.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One row holds one stage artifact of
// one document: OCR text, chunk list, embedding matrix or vector index.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Integrity
//
// Every payload is stored with its SHA-256 checksum. A row whose payload no
// longer matches is reported as domain.ErrCacheCorruption so the pipeline
// recomputes the stage instead of failing.
//
// # Data Location
//
// By default, the database is stored at ~/.scanqa/cache/artifacts.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
