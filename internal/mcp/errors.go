// Package mcp exposes the retrieval engine to AI clients over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

// Custom MCP error codes.
const (
	ErrCodeExtractionFailed = -32001
	ErrCodeIndexUnavailable = -32002
	ErrCodeTimeout          = -32003
	ErrCodeShapeMismatch    = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts engine errors to MCP errors by taxonomy kind.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	if te, ok := terrors.As(err); ok {
		return mapTailoredError(te)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapTailoredError(te *terrors.TailoredError) *MCPError {
	message := te.Message
	if te.Suggestion != "" {
		message = fmt.Sprintf("%s %s", te.Message, te.Suggestion)
	}

	switch te.Kind() {
	case terrors.KindExtraction:
		return &MCPError{Code: ErrCodeExtractionFailed, Message: message}
	case terrors.KindShapeMismatch:
		return &MCPError{Code: ErrCodeShapeMismatch, Message: message}
	case terrors.KindIndexUnavailable:
		if te.Code == terrors.ErrCodeNetworkTimeout {
			return &MCPError{Code: ErrCodeTimeout, Message: message}
		}
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	case terrors.KindInvalidInput, terrors.KindNotFound:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
