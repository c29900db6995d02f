package ufd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jad-haddad/unused-function-detector/internal/lsp"
)

func testSymbol() Symbol {
	path := "/app/src/orders.py"
	return Symbol{
		Name:      "checkout",
		Kind:      "function",
		Path:      path,
		URI:       lsp.URIFromPath(path),
		Language:  "python",
		Line:      12,
		Character: 4,
	}
}

func declEcho(sym Symbol) lsp.Location {
	return lsp.Location{
		URI: sym.URI,
		Range: lsp.Range{
			Start: lsp.Position{Line: sym.Line, Character: sym.Character},
			End:   lsp.Position{Line: sym.Line, Character: sym.Character + len(sym.Name)},
		},
	}
}

func TestClassify_UnusedWhenOnlyDeclarationEchoes(t *testing.T) {
	sym := testSymbol()
	v := Classify(sym, []lsp.Location{declEcho(sym)})

	assert.Equal(t, StatusUnused, v.Status)
	assert.Equal(t, sym, v.Symbol)
	assert.Empty(t, v.Reason)
}

func TestClassify_UnusedWhenEchoAnchorsDiffer(t *testing.T) {
	// Some servers anchor the echoed declaration at the "def" keyword, not
	// at the name. Same line of the same file still counts as the echo.
	sym := testSymbol()
	echo := declEcho(sym)
	echo.Range.Start.Character = 0

	v := Classify(sym, []lsp.Location{echo})
	assert.Equal(t, StatusUnused, v.Status)
}

func TestClassify_UsedWhenReferencedElsewhere(t *testing.T) {
	sym := testSymbol()
	caller := lsp.Location{
		URI:   lsp.URIFromPath("/app/src/api.py"),
		Range: lsp.Range{Start: lsp.Position{Line: 40, Character: 8}},
	}

	v := Classify(sym, []lsp.Location{declEcho(sym), caller})
	assert.Equal(t, StatusUsed, v.Status)
}

func TestClassify_UsedWhenSingleForeignReference(t *testing.T) {
	// One reference that is not the declaration: the server resolved the
	// definition differently (re-export, stub), but someone calls it.
	sym := testSymbol()
	caller := lsp.Location{
		URI:   lsp.URIFromPath("/app/src/api.py"),
		Range: lsp.Range{Start: lsp.Position{Line: 40, Character: 8}},
	}

	v := Classify(sym, []lsp.Location{caller})
	assert.Equal(t, StatusUsed, v.Status)
}

func TestClassify_UsedWhenSameFileDifferentLine(t *testing.T) {
	sym := testSymbol()
	sameFileCaller := declEcho(sym)
	sameFileCaller.Range.Start.Line = sym.Line + 30

	v := Classify(sym, []lsp.Location{sameFileCaller})
	assert.Equal(t, StatusUsed, v.Status)
}

func TestClassify_SkippedWhenNoReferences(t *testing.T) {
	// No declaration echo at all means the server could not resolve the
	// symbol; accusing it of being unused would false-positive.
	sym := testSymbol()

	v := Classify(sym, nil)
	assert.Equal(t, StatusSkipped, v.Status)
	assert.Equal(t, ReasonNoDeclEcho, v.Reason)
}

func TestClassify_Deterministic(t *testing.T) {
	sym := testSymbol()
	refs := []lsp.Location{declEcho(sym)}

	first := Classify(sym, refs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(sym, refs))
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "used", StatusUsed.String())
	assert.Equal(t, "unused", StatusUnused.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", Status(42).String())
}
