package daemon

import (
	"fmt"
	"strings"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
	"github.com/wwaihoe/TailorED/internal/registry"
	"github.com/wwaihoe/TailorED/internal/search"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing   = "ping"
	MethodStatus = "status"
	MethodSearch = "search"
	MethodAdd    = "add"
	MethodRemove = "remove"
	MethodList   = "list"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeServiceFailed is returned when the engine rejects a request.
// Error.Data carries the engine's error code.
const ErrCodeServiceFailed = -32002

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData preserves a coded engine error across the socket.
type ErrorData struct {
	Code       string `json:"code"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// newServiceErrorResponse maps an engine error onto the wire.
func newServiceErrorResponse(id string, err error) Response {
	te, ok := terrors.As(err)
	if !ok {
		return NewErrorResponse(id, ErrCodeInternalError, err.Error())
	}

	code := ErrCodeServiceFailed
	if te.Kind() == terrors.KindInvalidInput {
		code = ErrCodeInvalidParams
	}
	resp := NewErrorResponse(id, code, te.Message)
	resp.Error.Data = &ErrorData{Code: te.Code, Suggestion: te.Suggestion}
	return resp
}

// Err converts a wire error back into a Go error. Coded errors come back
// as *TailoredError so callers can still branch on their kind.
func (e *Error) Err() error {
	if e == nil {
		return nil
	}
	if e.Data != nil && e.Data.Code != "" {
		te := terrors.New(e.Data.Code, e.Message, nil)
		if e.Data.Suggestion != "" {
			te = te.WithSuggestion(e.Data.Suggestion)
		}
		return te
	}
	return fmt.Errorf("daemon error %d: %s", e.Code, e.Message)
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	Query string `json:"query"`

	// K is the number of passages wanted. 0 uses the engine default.
	K int `json:"k,omitempty"`
}

// Validate checks that required fields are present.
func (p *SearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if p.K < 0 {
		p.K = 0
	}
	return nil
}

// SearchResponse is the response to search. It mirrors search.Result.
type SearchResponse = search.Result

// AddParams carries one upload. Content is base64 in JSON.
type AddParams struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type,omitempty"`
	Content   []byte `json:"content"`
}

// Validate checks that required fields are present.
func (p *AddParams) Validate() error {
	if strings.TrimSpace(p.Filename) == "" {
		return fmt.Errorf("filename is required")
	}
	if len(p.Content) == 0 {
		return fmt.Errorf("content is required")
	}
	return nil
}

// AddResult is the response to add.
type AddResult struct {
	SourceID string `json:"source_id"`
}

// RemoveParams names the source to remove.
type RemoveParams struct {
	SourceID string `json:"source_id"`
}

// Validate checks that required fields are present.
func (p *RemoveParams) Validate() error {
	if strings.TrimSpace(p.SourceID) == "" {
		return fmt.Errorf("source_id is required")
	}
	return nil
}

// RemoveResult is the response to remove. Removing an unknown id succeeds.
type RemoveResult struct {
	Removed bool `json:"removed"`
}

// ListResult is the response to list.
type ListResult struct {
	Sources []registry.SourceInfo `json:"sources"`
}

// StatusResult contains daemon and engine status.
type StatusResult struct {
	Running bool           `json:"running"`
	PID     int            `json:"pid"`
	Uptime  string         `json:"uptime"`
	Engine  *search.Status `json:"engine,omitempty"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
