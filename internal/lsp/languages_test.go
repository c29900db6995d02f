package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_Defaults(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{"go", "javascript", "python", "rust", "typescript"}, r.Languages())

	py, ok := r.Get("python")
	require.True(t, ok)
	assert.Equal(t, "basedpyright-langserver", py.Command)
	assert.Equal(t, []string{"--stdio"}, py.Args)
	assert.Equal(t, "pyright/endProgress", py.AnalysisReadyMethod)
	assert.NotNil(t, py.Settings)

	gopls, ok := r.Get("go")
	require.True(t, ok)
	assert.Equal(t, "gopls", gopls.Command)
	assert.Empty(t, gopls.AnalysisReadyMethod)
}

func TestLanguageForExtension(t *testing.T) {
	r := NewRegistry()

	lang, ok := r.LanguageForExtension(".py")
	require.True(t, ok)
	assert.Equal(t, "python", lang)

	lang, ok = r.LanguageForExtension(".tsx")
	require.True(t, ok)
	assert.Equal(t, "typescript", lang)

	lang, ok = r.LanguageForExtension(".mjs")
	require.True(t, ok)
	assert.Equal(t, "javascript", lang)

	_, ok = r.LanguageForExtension(".txt")
	assert.False(t, ok)
}

func TestRegister_ReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Register(LanguageConfig{
		Language:   "python",
		Command:    "pylsp",
		Extensions: []string{".py"},
	})

	cfg, ok := r.Get("python")
	require.True(t, ok)
	assert.Equal(t, "pylsp", cfg.Command)
	assert.Empty(t, cfg.AnalysisReadyMethod)
}

func TestRegister_NewLanguage(t *testing.T) {
	r := NewRegistry()
	r.Register(LanguageConfig{
		Language:   "ruby",
		Command:    "solargraph",
		Args:       []string{"stdio"},
		Extensions: []string{".rb"},
	})

	lang, ok := r.LanguageForExtension(".rb")
	require.True(t, ok)
	assert.Equal(t, "ruby", lang)
	assert.Contains(t, r.Languages(), "ruby")
}

func TestAvailable(t *testing.T) {
	r := NewRegistry()
	r.Register(LanguageConfig{Language: "shell-fixture", Command: "sh"})
	r.Register(LanguageConfig{Language: "missing-fixture", Command: "no-such-server-binary-xyz"})

	assert.True(t, r.Available("shell-fixture"))
	assert.False(t, r.Available("missing-fixture"))
	assert.False(t, r.Available("unregistered"))
}
