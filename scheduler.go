package ufd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jad-haddad/unused-function-detector/internal/lsp"
)

// session is the slice of the server session the scheduler drives. Satisfied
// by *lsp.Server.
type session interface {
	DocumentSymbols(ctx context.Context, path string) ([]lsp.SymbolDef, error)
	References(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error)
}

// scanGroup runs one language group end to end: session startup, bounded
// fan-out over the group's files, teardown. The returned error is
// group-fatal only (server missing, handshake failure, session lost);
// everything else lands in the report as a verdict or counter.
func (e *Engine) scanGroup(ctx context.Context, grp fileGroup, builder *reportBuilder, tracker *progressTracker) error {
	cfg, ok := e.registry.Get(grp.language)
	if !ok {
		return fmt.Errorf("%w: %s", lsp.ErrUnsupportedLanguage, grp.language)
	}

	srv := lsp.NewServer(cfg, e.root, e.requestTimeout)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	// Teardown runs on every exit path, including early abort.
	defer func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Debug("session shutdown", slog.String("error", err.Error()))
		}
	}()

	waitCtx, cancel := context.WithTimeout(ctx, analysisWait)
	srv.WaitAnalysis(waitCtx)
	cancel()

	if lost := e.scanFiles(ctx, srv, grp.language, grp.files, builder, tracker); lost {
		return lsp.ErrSessionLost
	}
	return nil
}

// scanFiles fans the group's files out to a bounded worker pool. Each worker
// has at most one request outstanding, so in-flight requests per session
// never exceed the configured concurrency. Reports whether the session was
// lost along the way.
func (e *Engine) scanFiles(ctx context.Context, sess session, language string, files []string, builder *reportBuilder, tracker *progressTracker) bool {
	numWorkers := min(e.concurrency, len(files))
	if numWorkers < 1 {
		numWorkers = 1
	}

	fileCh := make(chan string, len(files))
	for _, path := range files {
		fileCh <- path
	}
	close(fileCh)

	// lost flips once the session is gone; remaining symbols short-circuit
	// to Failed("session-lost") instead of hammering a dead pipe.
	var lost atomic.Bool

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range fileCh {
				e.scanFile(ctx, sess, language, path, builder, &lost)
				tracker.fileDone()
			}
		}()
	}
	wg.Wait()

	return lost.Load()
}

// scanFile indexes one file's symbols and classifies each of them.
func (e *Engine) scanFile(ctx context.Context, sess session, language, path string, builder *reportBuilder, lost *atomic.Bool) {
	if lost.Load() || ctx.Err() != nil {
		builder.addFailedFile()
		return
	}

	defs, err := sess.DocumentSymbols(ctx, path)
	if err != nil {
		if errors.Is(err, lsp.ErrSessionLost) {
			lost.Store(true)
		}
		if errors.Is(err, lsp.ErrAnalysisUnavailable) {
			slog.Debug("file not analyzable", slog.String("path", path))
		} else {
			slog.Warn("symbol listing failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		builder.addFailedFile()
		return
	}
	builder.addScannedFile()

	for _, def := range defs {
		sym := Symbol{
			Name:      def.Name,
			Kind:      def.Kind.String(),
			Path:      path,
			URI:       lsp.URIFromPath(path),
			Language:  language,
			Line:      def.Pos.Line,
			Character: def.Pos.Character,
		}
		builder.addVerdict(e.classifySymbol(ctx, sess, sym, lost))
	}
}

// classifySymbol produces exactly one verdict for an indexed symbol.
func (e *Engine) classifySymbol(ctx context.Context, sess session, sym Symbol, lost *atomic.Bool) Verdict {
	skip, err := e.policy.Skip(ctx, sym)
	if err != nil {
		slog.Warn("policy script failed",
			slog.String("symbol", sym.Name),
			slog.String("error", err.Error()),
		)
	}
	if skip {
		return Verdict{Symbol: sym, Status: StatusSkipped, Reason: ReasonPolicy}
	}

	if lost.Load() {
		return Verdict{Symbol: sym, Status: StatusFailed, Reason: ReasonSessionLost}
	}

	refs, err := sess.References(ctx, sym.Path, lsp.Position{Line: sym.Line, Character: sym.Character})
	if err != nil {
		return Verdict{Symbol: sym, Status: StatusFailed, Reason: failureReason(err, lost)}
	}
	return Classify(sym, refs)
}

// failureReason maps a request error to a verdict reason, flagging the
// session as lost when the error says so.
func failureReason(err error, lost *atomic.Bool) string {
	switch {
	case errors.Is(err, lsp.ErrSessionLost):
		lost.Store(true)
		return ReasonSessionLost
	case errors.Is(err, lsp.ErrRequestTimeout):
		return ReasonTimeout
	default:
		return err.Error()
	}
}
