package ufd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jad-haddad/unused-function-detector/internal/script"
)

func policySkips(t *testing.T, p Policy, name string) bool {
	t.Helper()
	skip, err := p.Skip(context.Background(), Symbol{Name: name, Kind: "function", Path: "/app/a.py"})
	require.NoError(t, err)
	return skip
}

func TestPolicy_SkipsEntryPoints(t *testing.T) {
	var p Policy
	assert.True(t, policySkips(t, p, "main"))
	assert.True(t, policySkips(t, p, "init"))
	assert.True(t, policySkips(t, p, "__init__"))
	assert.True(t, policySkips(t, p, "__main__"))
}

func TestPolicy_SkipsDunders(t *testing.T) {
	var p Policy
	assert.True(t, policySkips(t, p, "__repr__"))
	assert.True(t, policySkips(t, p, "__eq__"))
}

func TestPolicy_PrivateSymbols(t *testing.T) {
	var p Policy
	assert.True(t, policySkips(t, p, "_helper"), "private skipped by default")

	p.IncludePrivate = true
	assert.False(t, policySkips(t, p, "_helper"))
	assert.True(t, policySkips(t, p, "__repr__"), "dunders stay skipped even with private included")
}

func TestPolicy_KeepsOrdinaryNames(t *testing.T) {
	var p Policy
	assert.False(t, policySkips(t, p, "checkout"))
	assert.False(t, policySkips(t, p, "ProcessOrder"))
}

func TestPolicy_ExcludeNames(t *testing.T) {
	p := Policy{ExcludeNames: []string{"handler", "setup"}}
	assert.True(t, policySkips(t, p, "handler"))
	assert.True(t, policySkips(t, p, "setup"))
	assert.False(t, policySkips(t, p, "handle"))
}

func TestPolicy_ExcludePatterns(t *testing.T) {
	p := Policy{ExcludePatterns: []string{"Test*", "Benchmark*"}}
	assert.True(t, policySkips(t, p, "TestCheckout"))
	assert.True(t, policySkips(t, p, "BenchmarkWalk"))
	assert.False(t, policySkips(t, p, "Checkout"))
}

func TestPolicy_Script(t *testing.T) {
	p := Policy{Script: script.New(`name == "legacy_export"`)}
	assert.True(t, policySkips(t, p, "legacy_export"))
	assert.False(t, policySkips(t, p, "checkout"))
}

func TestPolicy_ScriptSeesSymbolFields(t *testing.T) {
	p := Policy{Script: script.New(`file.contains("generated") && kind == "function"`)}

	skip, err := p.Skip(context.Background(), Symbol{
		Name: "render", Kind: "function", Path: "/app/generated/api.py",
	})
	require.NoError(t, err)
	assert.True(t, skip)

	skip, err = p.Skip(context.Background(), Symbol{
		Name: "render", Kind: "function", Path: "/app/src/api.py",
	})
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestPolicy_ScriptError(t *testing.T) {
	p := Policy{Script: script.New(`this is not risor ((`)}

	_, err := p.Skip(context.Background(), Symbol{Name: "checkout"})
	require.Error(t, err)
}

func TestPolicy_BuiltinRulesBeforeScript(t *testing.T) {
	// Entry points never reach the script, so a broken script does not
	// affect them.
	p := Policy{Script: script.New(`this is not risor ((`)}
	assert.True(t, policySkips(t, p, "main"))
}
