package lsp

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transport and session layers.
var (
	// ErrMalformedFrame indicates the inbound stream violated the
	// Content-Length framing. Fatal to the owning session.
	ErrMalformedFrame = errors.New("lsp: malformed protocol frame")

	// ErrSessionLost indicates the server process exited or the protocol
	// stream closed while requests were pending. Fatal to the language group.
	ErrSessionLost = errors.New("lsp: session lost")

	// ErrRequestTimeout indicates a single request exceeded its deadline.
	ErrRequestTimeout = errors.New("lsp: request timeout")

	// ErrAnalysisUnavailable indicates the server cannot analyze the file.
	ErrAnalysisUnavailable = errors.New("lsp: analysis unavailable")

	// ErrServerNotInstalled indicates the server binary was not found on PATH.
	ErrServerNotInstalled = errors.New("lsp: server not installed")

	// ErrInitializeFailed indicates the initialize handshake failed.
	ErrInitializeFailed = errors.New("lsp: initialize failed")

	// ErrUnsupportedLanguage indicates no server configuration exists for
	// the language.
	ErrUnsupportedLanguage = errors.New("lsp: unsupported language")

	// ErrServerAlreadyStarted indicates Start was called twice.
	ErrServerAlreadyStarted = errors.New("lsp: server already started")
)

// RPCError is an error object returned by the server in a response.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

// JSON-RPC error codes the session layer inspects.
const (
	codeMethodNotFound   = -32601
	codeRequestCancelled = -32800
	codeServerNotReady   = -32802
	codeServerErrorFirst = -32099
	codeServerErrorLast  = -32000
)

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("lsp: server error %d: %s", e.Code, e.Message)
}

// MethodNotFound reports whether the server does not implement the request.
func (e *RPCError) MethodNotFound() bool { return e.Code == codeMethodNotFound }

// NotReady reports whether the server rejected the request because it has
// not finished initializing. Such requests are retryable.
func (e *RPCError) NotReady() bool { return e.Code == codeServerNotReady }

// Retryable reports whether the error is transient: a not-yet-ready server,
// a cancelled request, or a reserved server-error code.
func (e *RPCError) Retryable() bool {
	if e.NotReady() || e.Code == codeRequestCancelled {
		return true
	}
	return e.Code >= codeServerErrorFirst && e.Code <= codeServerErrorLast
}
