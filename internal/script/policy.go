// Package script evaluates user-supplied Risor policy scripts that decide,
// per symbol, whether it should be excluded from the scan. The script sees
// the symbol as globals (name, kind, file, line) and its final expression is
// the decision: truthy means skip.
//
// Example policy:
//
//	// skip handlers and anything under generated code
//	name.has_prefix("Handle") || file.contains("/gen/")
package script

import (
	"context"
	"fmt"
	"os"

	"github.com/risor-io/risor"
)

// SymbolInput is the view of a symbol exposed to policy scripts.
type SymbolInput struct {
	Name string
	Kind string
	File string
	Line int
}

// Policy is a compiled-on-demand Risor exclusion policy.
type Policy struct {
	source string
	label  string
}

// Load reads a policy script from disk.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: loading policy %s: %w", path, err)
	}
	return &Policy{source: string(data), label: path}, nil
}

// New creates a policy from inline source. Used by tests and embedded
// configuration.
func New(source string) *Policy {
	return &Policy{source: source, label: "<inline>"}
}

// Skip evaluates the policy for one symbol. The script's result is truthy
// per Risor semantics (false, nil, 0 and "" are falsy).
func (p *Policy) Skip(ctx context.Context, sym SymbolInput) (bool, error) {
	result, err := risor.Eval(ctx, p.source,
		risor.WithGlobal("name", sym.Name),
		risor.WithGlobal("kind", sym.Kind),
		risor.WithGlobal("file", sym.File),
		risor.WithGlobal("line", sym.Line),
	)
	if err != nil {
		return false, fmt.Errorf("script: policy %s: %w", p.label, err)
	}
	if result == nil {
		return false, nil
	}
	return result.IsTruthy(), nil
}
