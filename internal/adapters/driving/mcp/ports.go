package mcp

import (
	"github.com/custodia-labs/scanqa/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Pipeline indexes documents and answers questions.
	Pipeline driving.PipelineService

	// Cache lists cached artifacts. Optional; without it the cache
	// resources return empty lists.
	Cache driving.CacheService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Pipeline == nil {
		return ErrMissingPipelineService
	}
	return nil
}
