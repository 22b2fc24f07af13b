// Package mcp provides an MCP (Model Context Protocol) server adapter for scanqa.
// It lets AI assistants index scanned documents and ask questions about them.
package mcp

import "errors"

// ErrMissingPipelineService is returned when the pipeline service is not provided.
var ErrMissingPipelineService = errors.New("mcp: pipeline service is required")
