package ufd

import (
	"sort"
	"sync"
	"time"
)

// Report is the aggregated result of one scan. Unused is sorted by file
// path, then line, then character, so repeated runs against an unchanged
// tree render identically. Read-only after Scan returns.
type Report struct {
	Root string

	// Unused holds every Unused verdict in deterministic order.
	Unused []Verdict

	// FilesScanned counts files that yielded a successful symbol listing,
	// zero-symbol responses included. Files whose language has no analyzer
	// are not counted.
	FilesScanned int

	// TotalFunctions counts every indexed function-like symbol.
	TotalFunctions int

	// SkippedFunctions and FailedFunctions let users tell "no unused
	// functions" apart from "could not analyze everything".
	SkippedFunctions int
	FailedFunctions  int

	// FailedFiles counts files whose symbol listing failed.
	FailedFiles int

	// Duration is the scan's wall-clock time.
	Duration time.Duration

	// Partial is set when the scan was cancelled before completing.
	Partial bool
}

// UnusedCount returns the number of unused functions found.
func (r *Report) UnusedCount() int {
	return len(r.Unused)
}

// reportBuilder accumulates verdicts from concurrent group scans. Completion
// order varies run to run; finalize re-imposes deterministic output order.
type reportBuilder struct {
	mu sync.Mutex

	root string

	unused       []Verdict
	filesScanned int
	totalFuncs   int
	skippedFuncs int
	failedFuncs  int
	failedFiles  int
}

func newReportBuilder(root string) *reportBuilder {
	return &reportBuilder{root: root}
}

// addVerdict records one classified symbol.
func (b *reportBuilder) addVerdict(v Verdict) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFuncs++
	switch v.Status {
	case StatusUnused:
		b.unused = append(b.unused, v)
	case StatusSkipped:
		b.skippedFuncs++
	case StatusFailed:
		b.failedFuncs++
	}
}

// addScannedFile records a file whose symbol listing succeeded.
func (b *reportBuilder) addScannedFile() {
	b.mu.Lock()
	b.filesScanned++
	b.mu.Unlock()
}

// addFailedFile records a file whose symbol listing failed.
func (b *reportBuilder) addFailedFile() {
	b.mu.Lock()
	b.failedFiles++
	b.mu.Unlock()
}

// finalize sorts the accumulated verdicts and produces the Report.
func (b *reportBuilder) finalize(duration time.Duration, partial bool) *Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	sort.Slice(b.unused, func(i, j int) bool {
		a, c := b.unused[i].Symbol, b.unused[j].Symbol
		if a.Path != c.Path {
			return a.Path < c.Path
		}
		if a.Line != c.Line {
			return a.Line < c.Line
		}
		if a.Character != c.Character {
			return a.Character < c.Character
		}
		return a.Name < c.Name
	})

	return &Report{
		Root:             b.root,
		Unused:           b.unused,
		FilesScanned:     b.filesScanned,
		TotalFunctions:   b.totalFuncs,
		SkippedFunctions: b.skippedFuncs,
		FailedFunctions:  b.failedFuncs,
		FailedFiles:      b.failedFiles,
		Duration:         duration,
		Partial:          partial,
	}
}
