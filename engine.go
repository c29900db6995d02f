package ufd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jad-haddad/unused-function-detector/internal/lsp"
)

// Defaults for the scan configuration.
const (
	// DefaultConcurrency bounds in-flight requests per server session.
	// Language servers run their own internal workqueue; flooding them
	// degrades to timeouts.
	DefaultConcurrency = 8

	// DefaultRequestTimeout bounds each individual request.
	DefaultRequestTimeout = 10 * time.Second

	// analysisWait caps how long a session waits for the server's initial
	// workspace analysis before proceeding on the retry policy alone.
	analysisWait = 60 * time.Second
)

// ErrNoAnalyzableFiles is returned when no file under the root maps to any
// configured language server. This is a run-level failure: there is nothing
// to scan.
var ErrNoAnalyzableFiles = errors.New("no analyzable files under root")

// Engine orchestrates a scan: workspace walk, one server session per
// language group, bounded-concurrency symbol indexing and reference
// classification, and report assembly.
type Engine struct {
	root     string
	registry *lsp.Registry

	policy         Policy
	concurrency    int
	requestTimeout time.Duration
	includeTests   bool
	ignorePatterns []string
	languages      map[string]bool // nil means all languages

	progress func(done, total int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency sets the maximum in-flight requests per session.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.requestTimeout = d
		}
	}
}

// WithPolicy sets the symbol exclusion policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithIncludeTests keeps test directories in the walk.
func WithIncludeTests(include bool) Option {
	return func(e *Engine) { e.includeTests = include }
}

// WithIgnorePatterns adds doublestar globs (relative to the root) whose
// matches are excluded from the walk.
func WithIgnorePatterns(patterns ...string) Option {
	return func(e *Engine) { e.ignorePatterns = append(e.ignorePatterns, patterns...) }
}

// WithLanguages restricts the scan to the given languages.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			e.languages[lang] = true
		}
	}
}

// WithRegistry replaces the default language server registry.
func WithRegistry(r *lsp.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithProgress installs a callback invoked after each file is processed.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Engine) { e.progress = fn }
}

// New creates an Engine rooted at root. The root must exist and be a
// directory.
func New(root string, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ufd: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("ufd: root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ufd: root %s is not a directory", abs)
	}

	e := &Engine{
		root:           abs,
		registry:       lsp.NewRegistry(),
		concurrency:    DefaultConcurrency,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Root returns the engine's absolute root path.
func (e *Engine) Root() string {
	return e.root
}

// Registry returns the language server registry in use.
func (e *Engine) Registry() *lsp.Registry {
	return e.registry
}

// Scan runs the full pipeline and returns the report. Per-file and
// per-symbol failures are recorded in the report, not returned. A non-nil
// error means a run-level failure: nothing analyzable, every language group
// failed, or the context was cancelled — in the cancellation case the
// partial report is still returned alongside the error.
func (e *Engine) Scan(ctx context.Context) (*Report, error) {
	start := time.Now()

	groups, err := walkFiles(e.root, e.registry, walkOptions{
		includeTests:   e.includeTests,
		ignorePatterns: e.ignorePatterns,
	})
	if err != nil {
		return nil, err
	}
	if e.languages != nil {
		kept := groups[:0]
		for _, grp := range groups {
			if e.languages[grp.language] {
				kept = append(kept, grp)
			}
		}
		groups = kept
	}
	if len(groups) == 0 {
		return nil, ErrNoAnalyzableFiles
	}

	totalFiles := 0
	for _, grp := range groups {
		totalFiles += len(grp.files)
	}
	slog.Debug("scan starting",
		slog.String("root", e.root),
		slog.Int("files", totalFiles),
		slog.Int("groups", len(groups)),
	)

	builder := newReportBuilder(e.root)
	tracker := newProgressTracker(totalFiles, e.progress)

	var (
		mu        sync.Mutex
		groupErrs []error
		succeeded int
	)

	// Language groups run concurrently; a fatal error in one group (server
	// missing, session lost) never aborts the others.
	var g errgroup.Group
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			err := e.scanGroup(ctx, grp, builder, tracker)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("language group failed",
					slog.String("language", grp.language),
					slog.String("error", err.Error()),
				)
				groupErrs = append(groupErrs, fmt.Errorf("%s: %w", grp.language, err))
			} else {
				succeeded++
			}
			return nil
		})
	}
	_ = g.Wait()

	partial := ctx.Err() != nil
	report := builder.finalize(time.Since(start), partial)

	if partial {
		return report, ctx.Err()
	}
	if succeeded == 0 {
		return report, fmt.Errorf("ufd: every language group failed: %w", errors.Join(groupErrs...))
	}
	return report, nil
}

// progressTracker fans per-file completions into the user's callback.
type progressTracker struct {
	mu    sync.Mutex
	done  int
	total int
	fn    func(done, total int)
}

func newProgressTracker(total int, fn func(done, total int)) *progressTracker {
	return &progressTracker{total: total, fn: fn}
}

func (t *progressTracker) fileDone() {
	if t == nil || t.fn == nil {
		return
	}
	t.mu.Lock()
	t.done++
	done, total := t.done, t.total
	t.mu.Unlock()
	t.fn(done, total)
}
