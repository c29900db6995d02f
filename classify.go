package ufd

import (
	"github.com/jad-haddad/unused-function-detector/internal/lsp"
)

// Status is the classification outcome for one symbol.
type Status int

const (
	// StatusUsed means at least one reference beyond the declaration exists.
	StatusUsed Status = iota

	// StatusUnused means the only reference is the declaration itself.
	StatusUnused

	// StatusSkipped means the symbol was not judged: excluded by policy, or
	// the server returned an ambiguous (empty) reference set.
	StatusSkipped

	// StatusFailed means the references query failed (timeout, lost session).
	StatusFailed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusUsed:
		return "used"
	case StatusUnused:
		return "unused"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Symbol is a function-like definition found by the indexer. Line and
// Character are 0-based and point at the symbol's name, matching the wire
// protocol's convention. Immutable once created.
type Symbol struct {
	Name      string
	Kind      string
	Path      string // absolute file path
	URI       string // file:// URI of Path
	Language  string
	Line      int
	Character int
}

// Verdict pairs a Symbol with its classification. Reason is set for Skipped
// and Failed verdicts ("policy", "no-declaration-echo", "timeout",
// "session-lost", ...).
type Verdict struct {
	Symbol Symbol
	Status Status
	Reason string
}

// Skip reasons produced by the engine.
const (
	ReasonPolicy      = "policy"
	ReasonNoDeclEcho  = "no-declaration-echo"
	ReasonTimeout     = "timeout"
	ReasonSessionLost = "session-lost"
)

// Classify applies the unused-decision policy to a symbol's reference set.
// It is a pure function of its inputs:
//
//   - exactly one reference, and it is the declaration itself → Unused
//   - more than one reference → Used
//   - no references at all → Skipped("no-declaration-echo"): servers are
//     expected to echo the declaration when asked, so an empty set means the
//     symbol could not be fully resolved; accusing it would false-positive.
func Classify(sym Symbol, refs []lsp.Location) Verdict {
	switch {
	case len(refs) == 0:
		return Verdict{Symbol: sym, Status: StatusSkipped, Reason: ReasonNoDeclEcho}
	case len(refs) > 1:
		return Verdict{Symbol: sym, Status: StatusUsed}
	case isDeclarationEcho(sym, refs[0]):
		return Verdict{Symbol: sym, Status: StatusUnused}
	default:
		// A single reference somewhere else: the definition the server knows
		// about differs from ours (re-export, stub), but the symbol is used.
		return Verdict{Symbol: sym, Status: StatusUsed}
	}
}

// isDeclarationEcho reports whether a reference location is the symbol's own
// declaration. Servers disagree on whether the echoed range anchors at the
// name or at the introducing keyword, so any reference on the defining line
// of the defining file counts.
func isDeclarationEcho(sym Symbol, loc lsp.Location) bool {
	if lsp.PathFromURI(loc.URI) != sym.Path {
		return false
	}
	return loc.Range.Start.Line == sym.Line
}
