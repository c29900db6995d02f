// Package lsp implements the client side of the Language Server Protocol
// base protocol: Content-Length framed JSON-RPC over a subprocess's stdio,
// with request/response correlation by id, notification routing, and managed
// server sessions (handshake, readiness, typed symbol/reference requests,
// guaranteed teardown).
//
// The package deliberately covers only the slice of LSP the detector needs:
// initialize, textDocument/documentSymbol, textDocument/references, and the
// shutdown/exit sequence.
package lsp
