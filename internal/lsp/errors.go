package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the session and reactor.
var (
	// ErrAlreadyInitialized indicates Start was called on an initialized session.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrDocumentNotOpen indicates the document is not open.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrReactorClosed indicates the reactor loop is no longer running.
	ErrReactorClosed = errors.New("reactor closed")

	// ErrInvalidResponse indicates a result that could not be decoded.
	ErrInvalidResponse = errors.New("invalid response from server")
)

// RPCError represents a JSON-RPC error from the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	// JSON-RPC standard errors
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// LSP-specific errors
	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)

// FramingError reports a wire frame that could not be decoded.
// The offending bytes have already been discarded when it is returned.
type FramingError struct {
	// Reason describes what was wrong with the frame.
	Reason string

	// Header is the raw header block of the frame, when one was found.
	Header string

	// Body is a prefix of the discarded body, for logging.
	Body string
}

// Error implements the error interface.
func (e *FramingError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("framing error: %s (body: %q)", e.Reason, e.Body)
	}
	return "framing error: " + e.Reason
}

// ProtocolViolation describes a payload that matches no JSON-RPC message shape.
type ProtocolViolation struct {
	Payload string
}

// Error implements the error interface.
func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: unclassifiable message %q", e.Payload)
}
