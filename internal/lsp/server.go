package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ServerState is the lifecycle state of a session.
type ServerState int

const (
	StateUninitialized ServerState = iota
	StateStarting
	StateReady
	StateStopping
	StateStopped
)

// String returns a human-readable state name.
func (s ServerState) String() string {
	names := []string{"uninitialized", "starting", "ready", "stopping", "stopped"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// retry tuning for transient request failures.
const (
	maxRetries = 1
	retryDelay = 250 * time.Millisecond

	shutdownGrace = 5 * time.Second
)

// clientName and clientVersion identify this client in the handshake.
const (
	clientName    = "unused-function-detector"
	clientVersion = "0.2.0"
)

// Server is a session with one language server subprocess. It owns the
// process and its Protocol; all wire I/O goes through the Protocol's
// demultiplexer. Safe for concurrent use after Start returns.
type Server struct {
	cfg            LanguageConfig
	rootPath       string
	requestTimeout time.Duration

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	protocol     *Protocol
	capabilities ServerCapabilities

	state   ServerState
	stateMu sync.RWMutex

	ctx      context.Context
	cancel   context.CancelFunc
	readDone chan struct{}

	analysisDone chan struct{}
	analysisOnce sync.Once
}

// SymbolDef is one function-like definition discovered in a file. Pos is the
// 0-based position of the symbol's name.
type SymbolDef struct {
	Name string
	Kind SymbolKind
	Pos  Position
}

// NewServer creates a session for the given language rooted at rootPath. The
// session is not started. requestTimeout bounds each individual request.
func NewServer(cfg LanguageConfig, rootPath string, requestTimeout time.Duration) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &Server{
		cfg:            cfg,
		rootPath:       rootPath,
		requestTimeout: requestTimeout,
		state:          StateUninitialized,
		readDone:       make(chan struct{}),
		analysisDone:   make(chan struct{}),
	}
}

// Start launches the server process, wires the protocol, and performs the
// initialize handshake. On success the session is ready for requests, though
// the server may still be analyzing the workspace (see WaitAnalysis).
func (s *Server) Start(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state != StateUninitialized {
		s.stateMu.Unlock()
		return ErrServerAlreadyStarted
	}
	s.state = StateStarting
	s.stateMu.Unlock()

	path, err := exec.LookPath(s.cfg.Command)
	if err != nil {
		s.setState(StateStopped)
		return fmt.Errorf("%w: %s", ErrServerNotInstalled, s.cfg.Command)
	}

	slog.Debug("starting language server",
		slog.String("language", s.cfg.Language),
		slog.String("command", path),
		slog.String("root", s.rootPath),
	)

	// The session context outlives the caller's: shutdown owns teardown.
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cmd = exec.CommandContext(s.ctx, path, s.cfg.Args...)
	s.cmd.Dir = s.rootPath

	if s.stdin, err = s.cmd.StdinPipe(); err != nil {
		s.cleanup()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if s.stdout, err = s.cmd.StdoutPipe(); err != nil {
		s.cleanup()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		s.cleanup()
		return fmt.Errorf("start %s: %w", s.cfg.Command, err)
	}

	s.protocol = NewProtocol(s.stdout, s.stdin)
	s.protocol.OnNotification(s.handleNotification)

	go func() {
		defer close(s.readDone)
		err := s.protocol.ReadLoop(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("language server stream closed",
				slog.String("language", s.cfg.Language),
				slog.String("error", err.Error()),
			)
		}
		// Releases every pending waiter with ErrSessionLost.
		s.protocol.Close()
		s.setState(StateStopped)
	}()

	if err := s.initialize(ctx); err != nil {
		_ = s.Shutdown(context.Background())
		return fmt.Errorf("%w: %v", ErrInitializeFailed, err)
	}

	s.setState(StateReady)
	slog.Debug("language server ready",
		slog.String("language", s.cfg.Language),
		slog.Bool("documentSymbol", s.capabilities.HasDocumentSymbolProvider()),
		slog.Bool("references", s.capabilities.HasReferencesProvider()),
	)
	return nil
}

// initialize runs the initialize/initialized exchange and pushes any
// configured settings.
func (s *Server) initialize(ctx context.Context) error {
	rootURI := URIFromPath(s.rootPath)
	params := InitializeParams{
		ProcessID: os.Getpid(),
		ClientInfo: ClientInfo{
			Name:    clientName,
			Version: clientVersion,
		},
		RootURI:  rootURI,
		RootPath: s.rootPath,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				DocumentSymbol: &DocumentSymbolClientCapabilities{
					HierarchicalDocumentSymbolSupport: true,
				},
				References: &ReferencesClientCapabilities{DynamicRegistration: true},
			},
			Workspace: WorkspaceClientCapabilities{WorkspaceFolders: true},
		},
		WorkspaceFolders: []WorkspaceFolder{{URI: rootURI, Name: "workspace"}},
	}

	resp, err := s.protocol.SendRequest(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	s.capabilities = result.Capabilities

	if err := s.protocol.SendNotification("initialized", struct{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	if s.cfg.Settings != nil {
		err := s.protocol.SendNotification("workspace/didChangeConfiguration",
			DidChangeConfigurationParams{Settings: s.cfg.Settings})
		if err != nil {
			return fmt.Errorf("push settings: %w", err)
		}
	}
	return nil
}

// handleNotification watches for the server's analysis-complete signal.
func (s *Server) handleNotification(n Notification) {
	if s.cfg.AnalysisReadyMethod != "" && n.Method == s.cfg.AnalysisReadyMethod {
		s.analysisOnce.Do(func() { close(s.analysisDone) })
	}
}

// WaitAnalysis blocks until the server reports its initial workspace
// analysis is complete, or the context is done. For servers with no
// analysis-complete signal it returns immediately. A timeout here is not
// fatal: requests issued before readiness are retried.
func (s *Server) WaitAnalysis(ctx context.Context) {
	if s.cfg.AnalysisReadyMethod == "" {
		return
	}
	select {
	case <-s.analysisDone:
	case <-s.readDone:
	case <-ctx.Done():
		slog.Debug("proceeding before analysis-complete signal",
			slog.String("language", s.cfg.Language))
	}
}

// request sends one request with the session's per-request deadline, retrying
// once with backoff on timeouts and transient server errors.
func (s *Server) request(ctx context.Context, method string, params any) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
		resp, err := s.protocol.SendRequest(reqCtx, method, params)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
		slog.Debug("retrying request",
			slog.String("language", s.cfg.Language),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
	}
	return nil, lastErr
}

// retryable reports whether a request error is transient.
func retryable(err error) bool {
	if errors.Is(err, ErrRequestTimeout) {
		return true
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Retryable()
	}
	return false
}

// DocumentSymbols lists the function-like definitions in a file. A file with
// no such symbols yields an empty slice, not an error. ErrAnalysisUnavailable
// means the server cannot analyze this file.
func (s *Server) DocumentSymbols(ctx context.Context, path string) ([]SymbolDef, error) {
	if s.State() != StateReady {
		return nil, ErrSessionLost
	}

	params := DocumentSymbolParams{
		TextDocument: TextDocumentIdentifier{URI: URIFromPath(path)},
	}
	resp, err := s.request(ctx, "textDocument/documentSymbol", params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.MethodNotFound() {
			return nil, fmt.Errorf("%w: %s", ErrAnalysisUnavailable, path)
		}
		return nil, err
	}
	return parseSymbolResponse(resp.Result)
}

// parseSymbolResponse accepts both documentSymbol response shapes and
// flattens the hierarchical one, keeping callable kinds at any depth.
func parseSymbolResponse(data json.RawMessage) ([]SymbolDef, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var hier []DocumentSymbol
	if err := json.Unmarshal(data, &hier); err == nil && symbolsLookHierarchical(data) {
		var defs []SymbolDef
		flattenSymbols(hier, &defs)
		return defs, nil
	}

	var flat []SymbolInformation
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("parse documentSymbol response: %w", err)
	}
	var defs []SymbolDef
	for _, si := range flat {
		if si.Kind.Callable() {
			defs = append(defs, SymbolDef{Name: si.Name, Kind: si.Kind, Pos: si.Location.Range.Start})
		}
	}
	return defs, nil
}

// symbolsLookHierarchical distinguishes DocumentSymbol[] from
// SymbolInformation[]: only the former carries selectionRange.
func symbolsLookHierarchical(data json.RawMessage) bool {
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil || len(probe) == 0 {
		return false
	}
	_, ok := probe[0]["selectionRange"]
	return ok
}

func flattenSymbols(syms []DocumentSymbol, out *[]SymbolDef) {
	for _, sym := range syms {
		if sym.Kind.Callable() {
			*out = append(*out, SymbolDef{Name: sym.Name, Kind: sym.Kind, Pos: sym.SelectionRange.Start})
		}
		flattenSymbols(sym.Children, out)
	}
}

// References returns every location referencing the symbol at pos, with the
// declaration site included so the caller can detect a lone self-match.
func (s *Server) References(ctx context.Context, path string, pos Position) ([]Location, error) {
	if s.State() != StateReady {
		return nil, ErrSessionLost
	}

	params := ReferenceParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: URIFromPath(path)},
			Position:     pos,
		},
		Context: ReferenceContext{IncludeDeclaration: true},
	}
	resp, err := s.request(ctx, "textDocument/references", params)
	if err != nil {
		return nil, err
	}
	return parseLocationResponse(resp.Result)
}

// parseLocationResponse handles the location shapes servers return: null, a
// Location array, or a LocationLink array.
func parseLocationResponse(data json.RawMessage) ([]Location, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var links []LocationLink
	if err := json.Unmarshal(data, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
		locs := make([]Location, len(links))
		for i, link := range links {
			locs[i] = Location{URI: link.TargetURI, Range: link.TargetSelectionRange}
		}
		return locs, nil
	}

	var locs []Location
	if err := json.Unmarshal(data, &locs); err != nil {
		return nil, fmt.Errorf("parse references response: %w", err)
	}
	return locs, nil
}

// Shutdown tears the session down: graceful shutdown request, exit
// notification, stdin close, then a forced kill after the grace period.
// Idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state == StateStopped || s.state == StateStopping {
		s.stateMu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.stateMu.Unlock()

	slog.Debug("shutting down language server", slog.String("language", s.cfg.Language))
	defer s.cleanup()

	if s.protocol != nil {
		gctx, cancel := context.WithTimeout(ctx, shutdownGrace)
		_, _ = s.protocol.SendRequest(gctx, "shutdown", nil)
		cancel()
		_ = s.protocol.SendNotification("exit", nil)
		s.protocol.Close()
	}

	if s.stdin != nil {
		_ = s.stdin.Close()
	}

	if s.cmd != nil && s.cmd.Process != nil {
		done := make(chan error, 1)
		go func() { done <- s.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			_ = s.cmd.Process.Kill()
			<-done
		}
	}

	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.readDone:
	case <-time.After(time.Second):
	}
	return nil
}

func (s *Server) cleanup() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	s.setState(StateStopped)
}

// State returns the current session state.
func (s *Server) State() ServerState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Language returns the language this session serves.
func (s *Server) Language() string {
	return s.cfg.Language
}

// Capabilities returns the capabilities negotiated during initialize.
func (s *Server) Capabilities() ServerCapabilities {
	return s.capabilities
}

func (s *Server) setState(st ServerState) {
	s.stateMu.Lock()
	// A session that already stopped stays stopped.
	if s.state != StateStopped || st == StateStopped {
		s.state = st
	}
	s.stateMu.Unlock()
}
