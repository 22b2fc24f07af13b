package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// IndexInput is the input schema for the index_document tool.
type IndexInput struct {
	Path string `json:"path" jsonschema:"absolute path of the scanned PDF to index"`
}

// IndexOutput is the output schema for the index_document tool.
type IndexOutput struct {
	DocumentID     string            `json:"document_id"`
	Title          string            `json:"title"`
	Pages          int               `json:"pages"`
	FailedPages    []int             `json:"failed_pages,omitempty"`
	Chunks         int               `json:"chunks"`
	EmbeddingModel string            `json:"embedding_model,omitempty"`
	Stages         map[string]string `json:"stages"`
	Empty          bool              `json:"empty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// AskInput is the input schema for the ask_document tool.
type AskInput struct {
	Path     string `json:"path" jsonschema:"absolute path of the scanned PDF"`
	Question string `json:"question" jsonschema:"the question to answer from the document"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of passages to retrieve (default from configuration)"`
}

// AskOutput is the output schema for the ask_document tool.
type AskOutput struct {
	Answer    string           `json:"answer"`
	Outcome   string           `json:"outcome"`
	Model     string           `json:"model,omitempty"`
	Citations []CitationOutput `json:"citations"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// CitationOutput is one retrieved passage used to answer.
type CitationOutput struct {
	ChunkID string  `json:"chunk_id"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_document",
		Description: "OCR, chunk and embed a scanned PDF, reusing cached stages",
	}, s.handleIndex)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_document",
		Description: "Answer a question from the text of a scanned PDF, with cited passages",
	}, s.handleAsk)
}

// handleIndex handles the index_document tool invocation.
func (s *Server) handleIndex(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexInput,
) (*mcp.CallToolResult, IndexOutput, error) {
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return nil, IndexOutput{}, fmt.Errorf("%w: path is required", domain.ErrInvalidInput)
	}

	handle, err := s.ports.Pipeline.IndexDocument(ctx, path, s.config)
	if err != nil && !errors.Is(err, domain.ErrEmptyDocument) {
		return nil, IndexOutput{}, err
	}
	if handle == nil {
		return nil, IndexOutput{}, err
	}
	defer handle.Close() //nolint:errcheck

	return nil, indexOutput(handle), nil
}

// handleAsk handles the ask_document tool invocation. Questions that find
// no content or no match return an empty answer with the outcome set.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return nil, AskOutput{}, fmt.Errorf("%w: path is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Question) == "" {
		return nil, AskOutput{}, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}

	cfg := s.config
	if input.TopK > 0 {
		cfg.TopK = input.TopK
	}

	handle, err := s.ports.Pipeline.IndexDocument(ctx, path, cfg)
	if err != nil && !errors.Is(err, domain.ErrEmptyDocument) {
		return nil, AskOutput{}, err
	}
	if handle == nil {
		return nil, AskOutput{}, err
	}
	defer handle.Close() //nolint:errcheck

	answer, err := s.ports.Pipeline.AnswerQuestion(ctx, handle, input.Question, cfg)
	if err != nil && !errors.Is(err, domain.ErrNoContent) && !errors.Is(err, domain.ErrNoMatch) {
		return nil, AskOutput{}, err
	}
	if answer == nil {
		return nil, AskOutput{}, err
	}

	return nil, askOutput(answer), nil
}

func indexOutput(h *domain.DocumentHandle) IndexOutput {
	out := IndexOutput{
		DocumentID:     h.Document.Fingerprint.String(),
		Title:          h.Document.Title,
		Pages:          h.PageCount,
		FailedPages:    h.FailedPages,
		Chunks:         len(h.Chunks),
		EmbeddingModel: h.EmbeddingModel,
		Stages:         make(map[string]string, len(h.Stages)),
		Empty:          h.Empty(),
		Warnings:       warningMessages(h.Warnings),
	}
	for stage, status := range h.Stages {
		out.Stages[string(stage)] = string(status)
	}
	return out
}

func askOutput(a *domain.Answer) AskOutput {
	out := AskOutput{
		Answer:    a.Text,
		Outcome:   a.Outcome.String(),
		Model:     a.Model,
		Citations: make([]CitationOutput, len(a.Citations)),
		Warnings:  warningMessages(a.Warnings),
	}
	for i, c := range a.Citations {
		out.Citations[i] = CitationOutput{
			ChunkID: c.Chunk.ID,
			Page:    c.Chunk.Page + 1,
			Score:   c.Score,
			Content: c.Chunk.Content,
		}
	}
	return out
}

func warningMessages(ws []domain.Warning) []string {
	if len(ws) == 0 {
		return nil
	}
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return out
}
