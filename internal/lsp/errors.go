package lsp

import (
	"fmt"

	"symscope/internal/apperr"
)

// JSON-RPC and LSP error codes.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeServerNotReady   = -32002
	CodeRequestFailed    = -32803
	CodeServerCancelled  = -32802
	CodeContentModified  = -32801
	CodeRequestCancelled = -32800
)

// RequestError is an error reply from the analyzer. The session stays usable.
type RequestError struct {
	Method  string
	Code    int64
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: analyzer error %d: %s", e.Method, e.Code, e.Message)
}

// Unwrap maps replies that blame the request onto ErrInvalidQuery.
func (e *RequestError) Unwrap() error {
	switch e.Code {
	case CodeInvalidParams, CodeRequestFailed:
		return apperr.ErrInvalidQuery
	}
	return nil
}

func terminated(method string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperr.ErrSessionTerminated, method, err)
}
