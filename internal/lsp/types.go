package lsp

import "encoding/json"

// Position is a 0-based line/character position in a document, per the LSP
// convention (character counts UTF-16 code units).
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a [Start, End) span in a document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range inside a document identified by URI.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// LocationLink is the richer location shape some servers return for
// definition-style requests.
type LocationLink struct {
	OriginSelectionRange *Range `json:"originSelectionRange,omitempty"`
	TargetURI            string `json:"targetUri"`
	TargetRange          Range  `json:"targetRange"`
	TargetSelectionRange Range  `json:"targetSelectionRange"`
}

// TextDocumentIdentifier identifies a document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentPositionParams addresses a position inside a document.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// ReferenceParams are the params for textDocument/references.
type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

// ReferenceContext controls whether the declaration site is included in the
// reference results. The classifier depends on includeDeclaration=true so it
// can tell "referenced only by its own definition" from "never seen".
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// DocumentSymbolParams are the params for textDocument/documentSymbol.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// SymbolKind is the LSP symbol kind enumeration.
type SymbolKind int

// Symbol kinds relevant to function discovery. The full enum has 26 entries;
// only the ones the indexer inspects are named here.
const (
	SymbolKindMethod      SymbolKind = 6
	SymbolKindProperty    SymbolKind = 7
	SymbolKindField       SymbolKind = 8
	SymbolKindConstructor SymbolKind = 9
	SymbolKindFunction    SymbolKind = 12
	SymbolKindVariable    SymbolKind = 13
)

// String returns the lowercase kind name used in reports.
func (k SymbolKind) String() string {
	switch k {
	case SymbolKindMethod:
		return "method"
	case SymbolKindProperty:
		return "property"
	case SymbolKindField:
		return "field"
	case SymbolKindConstructor:
		return "constructor"
	case SymbolKindFunction:
		return "function"
	case SymbolKindVariable:
		return "variable"
	}
	return "other"
}

// Callable reports whether the kind is a function-like definition the
// detector should index.
func (k SymbolKind) Callable() bool {
	switch k {
	case SymbolKindFunction, SymbolKindMethod, SymbolKindConstructor:
		return true
	}
	return false
}

// DocumentSymbol is the hierarchical response shape of
// textDocument/documentSymbol. SelectionRange covers the symbol's name.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is the flat, older response shape of
// textDocument/documentSymbol.
type SymbolInformation struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Location      Location   `json:"location"`
	ContainerName string     `json:"containerName,omitempty"`
}

// InitializeParams are the params for the initialize handshake.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	ClientInfo            ClientInfo         `json:"clientInfo"`
	RootURI               string             `json:"rootUri"`
	RootPath              string             `json:"rootPath,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
}

// ClientInfo names the client during the handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// WorkspaceFolder is a root the server should analyze.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// ClientCapabilities advertises what this client understands.
type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
	Workspace    WorkspaceClientCapabilities    `json:"workspace"`
}

// TextDocumentClientCapabilities covers the document-scoped requests the
// detector issues.
type TextDocumentClientCapabilities struct {
	DocumentSymbol *DocumentSymbolClientCapabilities `json:"documentSymbol,omitempty"`
	References     *ReferencesClientCapabilities     `json:"references,omitempty"`
}

// DocumentSymbolClientCapabilities negotiates the documentSymbol shape.
type DocumentSymbolClientCapabilities struct {
	HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport"`
}

// ReferencesClientCapabilities negotiates textDocument/references.
type ReferencesClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

// WorkspaceClientCapabilities covers workspace-scoped features.
type WorkspaceClientCapabilities struct {
	WorkspaceFolders bool `json:"workspaceFolders"`
	Configuration    bool `json:"configuration,omitempty"`
}

// InitializeResult is the server's half of the handshake.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo names the server during the handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerCapabilities is the subset of negotiated capabilities the detector
// inspects. Providers may be booleans or option objects on the wire, so they
// are kept raw and checked for presence.
type ServerCapabilities struct {
	DocumentSymbolProvider json.RawMessage `json:"documentSymbolProvider,omitempty"`
	ReferencesProvider     json.RawMessage `json:"referencesProvider,omitempty"`
}

// providerEnabled reports whether a provider capability is present and not
// literally false.
func providerEnabled(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	return string(raw) != "false" && string(raw) != "null"
}

// HasDocumentSymbolProvider reports whether the server lists symbols.
func (c ServerCapabilities) HasDocumentSymbolProvider() bool {
	return providerEnabled(c.DocumentSymbolProvider)
}

// HasReferencesProvider reports whether the server resolves references.
func (c ServerCapabilities) HasReferencesProvider() bool {
	return providerEnabled(c.ReferencesProvider)
}

// DidChangeConfigurationParams carries settings pushed after initialize.
type DidChangeConfigurationParams struct {
	Settings any `json:"settings"`
}
