package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wwaihoe/TailorED/internal/registry"
	"github.com/wwaihoe/TailorED/internal/search"
	"github.com/wwaihoe/TailorED/pkg/version"
)

// Engine is the engine surface exposed as tools.
type Engine interface {
	Search(ctx context.Context, query string, k int) (*search.Result, error)
	Add(ctx context.Context, content []byte, filename, mediaType string) (string, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]registry.SourceInfo, error)
}

// Server bridges MCP clients with the retrieval engine.
type Server struct {
	mcp    *mcp.Server
	engine Engine
	logger *slog.Logger
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"what to look for in the uploaded course material"`
	K     int    `json:"k,omitempty" jsonschema:"number of passages to return, default 3"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Passages  []PassageOutput `json:"passages" jsonschema:"best passages, most relevant first"`
	Filenames []string        `json:"filenames" jsonschema:"every file either retrieval path matched"`
	SourceIDs []string        `json:"source_ids" jsonschema:"ids of those files, for remove_document"`
}

// PassageOutput is one ranked passage.
type PassageOutput struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// AddDocumentInput defines the input schema for add_document.
// Exactly one of Text and ContentBase64 is set.
type AddDocumentInput struct {
	Filename      string `json:"filename" jsonschema:"display name, its extension selects the extractor when media_type is empty"`
	Text          string `json:"text,omitempty" jsonschema:"plain text content"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"base64 file bytes for PDF, image or audio uploads"`
	MediaType     string `json:"media_type,omitempty" jsonschema:"MIME type such as application/pdf"`
}

// AddDocumentOutput defines the output schema for add_document.
type AddDocumentOutput struct {
	SourceID string `json:"source_id"`
}

// RemoveDocumentInput defines the input schema for remove_document.
type RemoveDocumentInput struct {
	SourceID string `json:"source_id" jsonschema:"id returned by add_document or list_sources"`
}

// RemoveDocumentOutput defines the output schema for remove_document.
type RemoveDocumentOutput struct {
	Removed bool `json:"removed"`
}

// ListSourcesInput is empty.
type ListSourcesInput struct{}

// ListSourcesOutput defines the output schema for list_sources.
type ListSourcesOutput struct {
	Sources []registry.SourceInfo `json:"sources"`
}

// NewServer creates an MCP server with all tools registered.
func NewServer(engine Engine) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}

	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    version.Name,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search uploaded course material. Combines keyword and semantic retrieval, reranks the candidates, and returns the best passages with every matching filename.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_document",
		Description: "Add a document (text, markdown, PDF, image or audio) to the knowledge base. Returns the source id.",
	}, s.handleAddDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "remove_document",
		Description: "Remove a document by source id. Removing an unknown id succeeds.",
	}, s.handleRemoveDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_sources",
		Description: "List every document in the knowledge base with its total text length.",
	}, s.handleListSources)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 4))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if input.K < 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("k must not be negative")
	}

	res, err := s.engine.Search(ctx, input.Query, input.K)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{
		Passages:  make([]PassageOutput, len(res.Passages)),
		Filenames: res.Filenames,
		SourceIDs: res.SourceIDs,
	}
	for i, p := range res.Passages {
		out.Passages[i].Text = p
		if i < len(res.Scores) {
			out.Passages[i].Score = res.Scores[i]
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResult(input.Query, res)}},
	}, out, nil
}

func (s *Server) handleAddDocument(ctx context.Context, _ *mcp.CallToolRequest, input AddDocumentInput) (
	*mcp.CallToolResult,
	AddDocumentOutput,
	error,
) {
	if strings.TrimSpace(input.Filename) == "" {
		return nil, AddDocumentOutput{}, NewInvalidParamsError("filename parameter is required")
	}

	var content []byte
	switch {
	case input.Text != "" && input.ContentBase64 != "":
		return nil, AddDocumentOutput{}, NewInvalidParamsError("set either text or content_base64, not both")
	case input.Text != "":
		content = []byte(input.Text)
	case input.ContentBase64 != "":
		raw, err := base64.StdEncoding.DecodeString(input.ContentBase64)
		if err != nil {
			return nil, AddDocumentOutput{}, NewInvalidParamsError(fmt.Sprintf("content_base64 is not valid base64: %v", err))
		}
		content = raw
	default:
		return nil, AddDocumentOutput{}, NewInvalidParamsError("text or content_base64 is required")
	}

	id, err := s.engine.Add(ctx, content, input.Filename, input.MediaType)
	if err != nil {
		return nil, AddDocumentOutput{}, MapError(err)
	}
	return nil, AddDocumentOutput{SourceID: id}, nil
}

func (s *Server) handleRemoveDocument(ctx context.Context, _ *mcp.CallToolRequest, input RemoveDocumentInput) (
	*mcp.CallToolResult,
	RemoveDocumentOutput,
	error,
) {
	if strings.TrimSpace(input.SourceID) == "" {
		return nil, RemoveDocumentOutput{}, NewInvalidParamsError("source_id parameter is required")
	}
	if err := s.engine.Remove(ctx, input.SourceID); err != nil {
		return nil, RemoveDocumentOutput{}, MapError(err)
	}
	return nil, RemoveDocumentOutput{Removed: true}, nil
}

func (s *Server) handleListSources(ctx context.Context, _ *mcp.CallToolRequest, _ ListSourcesInput) (
	*mcp.CallToolResult,
	ListSourcesOutput,
	error,
) {
	sources, err := s.engine.List(ctx)
	if err != nil {
		return nil, ListSourcesOutput{}, MapError(err)
	}
	if sources == nil {
		sources = []registry.SourceInfo{}
	}
	return nil, ListSourcesOutput{Sources: sources}, nil
}

// Serve runs the server on the given transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_failed", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
