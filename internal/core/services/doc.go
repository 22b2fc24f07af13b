// Package services implements the core pipeline: fingerprinting, extraction,
// chunking, embedding, indexing, retrieval and answer synthesis.
//
// Services depend only on the driven ports and compose them into the
// driving.PipelineService and driving.CacheService interfaces.
package services
