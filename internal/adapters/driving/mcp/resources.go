package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for scanqa resources.
	uriScheme = "scanqa://"
)

// artifactInfo is the JSON shape of one cache entry.
type artifactInfo struct {
	Fingerprint string    `json:"fingerprint"`
	Stage       string    `json:"stage"`
	ConfigHash  string    `json:"config_hash"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource listing every cache entry.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "cache",
		Name:        "cache",
		Description: "Cached pipeline artifacts of every indexed document",
		MIMEType:    "application/json",
	}, s.handleCacheResource)

	// Template for the entries of one document.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "cache/{fingerprint}",
		Name:        "document-cache",
		Description: "Cached pipeline artifacts of one document",
		MIMEType:    "application/json",
	}, s.handleDocumentCacheResource)
}

// handleCacheResource returns every cache entry.
func (s *Server) handleCacheResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	return s.artifactsResult(ctx, req.Params.URI, "")
}

// handleDocumentCacheResource returns the cache entries of one document.
func (s *Server) handleDocumentCacheResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract fingerprint from URI: scanqa://cache/{fingerprint}
	fp := extractFingerprint(req.Params.URI)
	if fp == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return s.artifactsResult(ctx, req.Params.URI, domain.Fingerprint(fp))
}

func (s *Server) artifactsResult(
	ctx context.Context,
	uri string,
	fp domain.Fingerprint,
) (*mcp.ReadResourceResult, error) {
	infos := []artifactInfo{}

	if s.ports.Cache != nil {
		artifacts, err := s.ports.Cache.Artifacts(ctx, fp)
		if err != nil {
			return nil, fmt.Errorf("listing artifacts: %w", err)
		}
		for _, a := range artifacts {
			infos = append(infos, artifactInfo{
				Fingerprint: a.Key.Fingerprint.String(),
				Stage:       string(a.Key.Stage),
				ConfigHash:  a.Key.ConfigHash,
				Size:        a.Size,
				CreatedAt:   a.CreatedAt,
			})
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling artifacts: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractFingerprint extracts the fingerprint from a URI like scanqa://cache/{fingerprint}.
func extractFingerprint(uri string) string {
	const prefix = uriScheme + "cache/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	fp := strings.TrimPrefix(uri, prefix)
	if fp == "" || strings.Contains(fp, "/") {
		return ""
	}
	return fp
}
