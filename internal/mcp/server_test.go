package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
	"github.com/wwaihoe/TailorED/internal/registry"
	"github.com/wwaihoe/TailorED/internal/search"
)

// MockEngine implements Engine for testing.
type MockEngine struct {
	SearchFn func(ctx context.Context, query string, k int) (*search.Result, error)
	AddFn    func(ctx context.Context, content []byte, filename, mediaType string) (string, error)
	RemoveFn func(ctx context.Context, id string) error
	ListFn   func(ctx context.Context) ([]registry.SourceInfo, error)
}

func (m *MockEngine) Search(ctx context.Context, query string, k int) (*search.Result, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, k)
	}
	return &search.Result{Passages: []string{}, Filenames: []string{}, SourceIDs: []string{}}, nil
}

func (m *MockEngine) Add(ctx context.Context, content []byte, filename, mediaType string) (string, error) {
	if m.AddFn != nil {
		return m.AddFn(ctx, content, filename, mediaType)
	}
	return "id-1", nil
}

func (m *MockEngine) Remove(ctx context.Context, id string) error {
	if m.RemoveFn != nil {
		return m.RemoveFn(ctx, id)
	}
	return nil
}

func (m *MockEngine) List(ctx context.Context) ([]registry.SourceInfo, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	return nil, nil
}

var _ Engine = (*MockEngine)(nil)

func newTestServer(t *testing.T, engine *MockEngine) *Server {
	t.Helper()
	s, err := NewServer(engine)
	require.NoError(t, err)
	return s
}

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestSearchTool(t *testing.T) {
	var gotK int
	engine := &MockEngine{
		SearchFn: func(_ context.Context, query string, k int) (*search.Result, error) {
			gotK = k
			return &search.Result{
				Passages:  []string{"The capital of France is Paris."},
				Scores:    []float64{1.5},
				Filenames: []string{"geo.txt", "trivia.txt"},
				SourceIDs: []string{"a", "b"},
			}, nil
		},
	}
	s := newTestServer(t, engine)

	// Given a query with an explicit k
	res, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "capital of France", K: 1})

	// Then the engine sees k and every filename is returned
	require.NoError(t, err)
	assert.Equal(t, 1, gotK)
	require.Len(t, out.Passages, 1)
	assert.Equal(t, PassageOutput{Text: "The capital of France is Paris.", Score: 1.5}, out.Passages[0])
	assert.Equal(t, []string{"geo.txt", "trivia.txt"}, out.Filenames)
	assert.Equal(t, []string{"a", "b"}, out.SourceIDs)

	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "Paris")
	assert.Contains(t, text.Text, "geo.txt, trivia.txt")
}

func TestSearchTool_InvalidInput(t *testing.T) {
	s := newTestServer(t, &MockEngine{})

	for _, in := range []SearchInput{{Query: ""}, {Query: "   "}, {Query: "x", K: -1}} {
		_, _, err := s.handleSearch(context.Background(), nil, in)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	}
}

func TestSearchTool_EngineFailure(t *testing.T) {
	engine := &MockEngine{
		SearchFn: func(context.Context, string, int) (*search.Result, error) {
			return nil, terrors.IndexUnavailable("passage store closed", nil)
		},
	}
	s := newTestServer(t, engine)

	_, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "x"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexUnavailable, mcpErr.Code)
}

func TestAddDocumentTool(t *testing.T) {
	var gotContent []byte
	var gotName, gotType string
	engine := &MockEngine{
		AddFn: func(_ context.Context, content []byte, filename, mediaType string) (string, error) {
			gotContent, gotName, gotType = content, filename, mediaType
			return "src-42", nil
		},
	}
	s := newTestServer(t, engine)
	ctx := context.Background()

	_, out, err := s.handleAddDocument(ctx, nil, AddDocumentInput{Filename: "notes.md", Text: "# Cells"})
	require.NoError(t, err)
	assert.Equal(t, "src-42", out.SourceID)
	assert.Equal(t, []byte("# Cells"), gotContent)
	assert.Equal(t, "notes.md", gotName)

	pdf := []byte("%PDF-1.4 fake")
	_, _, err = s.handleAddDocument(ctx, nil, AddDocumentInput{
		Filename:      "slides.pdf",
		ContentBase64: base64.StdEncoding.EncodeToString(pdf),
		MediaType:     "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, pdf, gotContent)
	assert.Equal(t, "application/pdf", gotType)
}

func TestAddDocumentTool_InvalidInput(t *testing.T) {
	s := newTestServer(t, &MockEngine{})

	tests := []struct {
		name  string
		input AddDocumentInput
	}{
		{"no filename", AddDocumentInput{Text: "x"}},
		{"no content", AddDocumentInput{Filename: "a.txt"}},
		{"both contents", AddDocumentInput{Filename: "a.txt", Text: "x", ContentBase64: "eA=="}},
		{"bad base64", AddDocumentInput{Filename: "a.txt", ContentBase64: "***"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.handleAddDocument(context.Background(), nil, tt.input)
			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
		})
	}
}

func TestAddDocumentTool_ExtractionFailure(t *testing.T) {
	engine := &MockEngine{
		AddFn: func(context.Context, []byte, string, string) (string, error) {
			return "", terrors.ExtractionError("upload has no text", nil)
		},
	}
	s := newTestServer(t, engine)

	_, _, err := s.handleAddDocument(context.Background(), nil, AddDocumentInput{Filename: "blank.txt", Text: " "})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeExtractionFailed, mcpErr.Code)
}

func TestRemoveAndListTools(t *testing.T) {
	sources := map[string]registry.SourceInfo{
		"a": {SourceID: "a", Filename: "a.txt", TotalLength: 10},
		"b": {SourceID: "b", Filename: "b.txt", TotalLength: 20},
	}
	engine := &MockEngine{
		RemoveFn: func(_ context.Context, id string) error {
			delete(sources, id)
			return nil
		},
		ListFn: func(context.Context) ([]registry.SourceInfo, error) {
			out := make([]registry.SourceInfo, 0, len(sources))
			for _, s := range sources {
				out = append(out, s)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
			return out, nil
		},
	}
	s := newTestServer(t, engine)
	ctx := context.Background()

	_, out, err := s.handleRemoveDocument(ctx, nil, RemoveDocumentInput{SourceID: "a"})
	require.NoError(t, err)
	assert.True(t, out.Removed)

	_, out, err = s.handleRemoveDocument(ctx, nil, RemoveDocumentInput{SourceID: "missing"})
	require.NoError(t, err, "unknown ids are a no-op")
	assert.True(t, out.Removed)

	_, _, err = s.handleRemoveDocument(ctx, nil, RemoveDocumentInput{})
	assert.Error(t, err)

	_, list, err := s.handleListSources(ctx, nil, ListSourcesInput{})
	require.NoError(t, err)
	assert.Equal(t, []registry.SourceInfo{{SourceID: "b", Filename: "b.txt", TotalLength: 20}}, list.Sources)
}

func TestListTool_EmptyIsNotNil(t *testing.T) {
	s := newTestServer(t, &MockEngine{})

	_, out, err := s.handleListSources(context.Background(), nil, ListSourcesInput{})
	require.NoError(t, err)
	assert.NotNil(t, out.Sources)
	assert.Empty(t, out.Sources)
}

func TestServer_OverInMemoryTransport(t *testing.T) {
	s := newTestServer(t, &MockEngine{
		ListFn: func(context.Context) ([]registry.SourceInfo, error) {
			return []registry.SourceInfo{{SourceID: "a", Filename: "a.txt", TotalLength: 3}}, nil
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search", "add_document", "remove_document", "list_sources"}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "list_sources", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "search", Arguments: map[string]any{"query": ""}})
	require.NoError(t, err)
	assert.True(t, res.IsError, "tool errors are reported in the result")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"extraction", terrors.ExtractionError("bad pdf", nil), ErrCodeExtractionFailed},
		{"unsupported media", terrors.New(terrors.ErrCodeUnsupportedMedia, "video/mp4", nil), ErrCodeExtractionFailed},
		{"shape", terrors.ShapeMismatch(768, 256), ErrCodeShapeMismatch},
		{"index", terrors.IndexUnavailable("down", nil), ErrCodeIndexUnavailable},
		{"network timeout", terrors.New(terrors.ErrCodeNetworkTimeout, "slow", nil), ErrCodeTimeout},
		{"empty query", terrors.New(terrors.ErrCodeQueryEmpty, "empty", nil), ErrCodeInvalidParams},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"plain", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := terrors.IndexUnavailable("embedder down", nil).WithSuggestion("Start Ollama.")
	assert.Equal(t, "embedder down Start Ollama.", MapError(err).Message)
}

func TestFormatSearchResult(t *testing.T) {
	assert.Contains(t, FormatSearchResult("cells", &search.Result{}), "No passages found")
	assert.Contains(t, FormatSearchResult("cells", nil), "No passages found")

	out := FormatSearchResult("cells", &search.Result{
		Passages:  []string{"  Cells divide.  ", "Mitosis."},
		Scores:    []float64{2},
		Filenames: []string{"bio.txt"},
	})
	assert.Contains(t, out, "### 1. (score 2.000)\n\nCells divide.")
	assert.Contains(t, out, "### 2.\n\nMitosis.")
	assert.Contains(t, out, "**Files:** bio.txt")
}
