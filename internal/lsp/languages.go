package lsp

import (
	"os/exec"
	"sort"
	"sync"
)

// LanguageConfig describes how to run and talk to one language server.
type LanguageConfig struct {
	// Language is the identifier used for grouping (e.g. "python").
	Language string

	// Command is the server executable name or path.
	Command string

	// Args are passed to the server process.
	Args []string

	// Extensions are the file extensions this server analyzes (with dot).
	Extensions []string

	// AnalysisReadyMethod, when non-empty, names the notification the server
	// sends once its initial workspace analysis completes (for example
	// basedpyright's "pyright/endProgress"). Servers without such a signal
	// leave it empty and the session relies on request retry instead.
	AnalysisReadyMethod string

	// Settings, when non-nil, is pushed via workspace/didChangeConfiguration
	// right after the handshake.
	Settings any
}

// Registry maps languages and file extensions to server configurations.
type Registry struct {
	mu         sync.RWMutex
	byLanguage map[string]LanguageConfig
	byExt      map[string]string
}

// NewRegistry creates a registry pre-populated with the default server set.
func NewRegistry() *Registry {
	r := &Registry{
		byLanguage: make(map[string]LanguageConfig),
		byExt:      make(map[string]string),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.Register(LanguageConfig{
		Language:            "python",
		Command:             "basedpyright-langserver",
		Args:                []string{"--stdio"},
		Extensions:          []string{".py", ".pyi"},
		AnalysisReadyMethod: "pyright/endProgress",
		Settings: map[string]any{
			"python": map[string]any{
				"analysis": map[string]any{
					"typeCheckingMode": "off",
					"diagnosticMode":   "workspace",
				},
			},
		},
	})

	r.Register(LanguageConfig{
		Language:   "go",
		Command:    "gopls",
		Args:       []string{"serve"},
		Extensions: []string{".go"},
	})

	r.Register(LanguageConfig{
		Language:   "typescript",
		Command:    "typescript-language-server",
		Args:       []string{"--stdio"},
		Extensions: []string{".ts", ".tsx"},
	})

	r.Register(LanguageConfig{
		Language:   "javascript",
		Command:    "typescript-language-server",
		Args:       []string{"--stdio"},
		Extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
	})

	r.Register(LanguageConfig{
		Language:   "rust",
		Command:    "rust-analyzer",
		Extensions: []string{".rs"},
	})
}

// Register adds or replaces a language configuration and its extension
// mappings.
func (r *Registry) Register(cfg LanguageConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLanguage[cfg.Language] = cfg
	for _, ext := range cfg.Extensions {
		r.byExt[ext] = cfg.Language
	}
}

// Get returns the configuration for a language.
func (r *Registry) Get(language string) (LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.byLanguage[language]
	return cfg, ok
}

// LanguageForExtension maps a file extension (with dot) to a language.
func (r *Registry) LanguageForExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.byExt[ext]
	return lang, ok
}

// Languages returns all registered language identifiers, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Available reports whether the server binary for a language is on PATH.
func (r *Registry) Available(language string) bool {
	cfg, ok := r.Get(language)
	if !ok {
		return false
	}
	_, err := exec.LookPath(cfg.Command)
	return err == nil
}
