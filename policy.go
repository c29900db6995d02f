package ufd

import (
	"context"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jad-haddad/unused-function-detector/internal/script"
)

// entryPointNames are symbols users never consider dead: program entry
// points and language-mandated hooks.
var entryPointNames = map[string]bool{
	"main":     true,
	"init":     true,
	"__init__": true,
	"__main__": true,
	"__new__":  true,
}

// Policy decides which symbols are excluded from the references query
// entirely. Excluded symbols get a Skipped("policy") verdict, which avoids
// spending a server round-trip on symbols nobody would delete.
type Policy struct {
	// IncludePrivate keeps underscore-prefixed symbols in the scan.
	IncludePrivate bool

	// ExcludeNames are exact symbol names to skip.
	ExcludeNames []string

	// ExcludePatterns are doublestar glob patterns matched against symbol
	// names (e.g. "Test*", "Benchmark*").
	ExcludePatterns []string

	// Script, when non-nil, is a user-supplied Risor policy consulted for
	// symbols the built-in rules keep. A truthy script result skips the
	// symbol.
	Script *script.Policy
}

// Skip reports whether the policy excludes sym from classification.
func (p *Policy) Skip(ctx context.Context, sym Symbol) (bool, error) {
	if entryPointNames[sym.Name] {
		return true, nil
	}

	// Dunder names are API surface by convention, private names are skipped
	// unless the user opted in.
	if strings.HasPrefix(sym.Name, "__") && strings.HasSuffix(sym.Name, "__") {
		return true, nil
	}
	if !p.IncludePrivate && strings.HasPrefix(sym.Name, "_") {
		return true, nil
	}

	for _, name := range p.ExcludeNames {
		if sym.Name == name {
			return true, nil
		}
	}
	for _, pattern := range p.ExcludePatterns {
		if ok, err := doublestar.Match(pattern, sym.Name); err == nil && ok {
			return true, nil
		}
	}

	if p.Script != nil {
		return p.Script.Skip(ctx, script.SymbolInput{
			Name: sym.Name,
			Kind: sym.Kind,
			File: sym.Path,
			Line: sym.Line,
		})
	}
	return false, nil
}
