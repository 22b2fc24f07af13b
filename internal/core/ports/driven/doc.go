// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for indexing to function:
//
//   - Rasterizer: Renders document pages to images (pdftoppm)
//   - OCREngine: Recognises page images as text (tesseract, PDF text layer)
//   - EmbeddingService: Maps chunk text to vectors (OpenAI, Ollama)
//   - IndexBuilder: Builds a VectorIndex over a document's vectors
//   - ArtifactCache: Persists stage outputs keyed by fingerprint (SQLite, memory)
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Answer synthesis. Without it, only retrieval is available.
//   - SettingsStore: Persistent configuration. Without it, defaults apply.
package driven
