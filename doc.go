// Package ufd finds function and method definitions that are never
// referenced anywhere else in a codebase. Instead of parsing source text it
// drives external language servers over the Language Server Protocol, so the
// same engine works for every language a server exists for.
//
// # Pipeline
//
// A scan runs in four stages per language group:
//
//  1. Walk: enumerate candidate files under the root in lexical order,
//     honoring ignore rules, and group them by the language server
//     responsible for each extension.
//  2. Index: for each file, ask the group's server for its document symbols
//     and keep the function-like ones (functions, methods, constructors).
//  3. Classify: for each symbol, query references with the declaration
//     included and apply the unused-decision policy — a lone self-match
//     means unused, anything more means used, an empty result is ambiguous
//     and skipped rather than accused.
//  4. Report: collect verdicts into a deterministically ordered ScanReport.
//
// # Usage
//
// Create an Engine, scan, and render the report:
//
//	e, err := ufd.New("path/to/project")
//	if err != nil { ... }
//
//	report, err := e.Scan(context.Background())
//	for _, v := range report.Unused {
//	    fmt.Printf("%s:%d %s\n", v.Symbol.Path, v.Symbol.Line+1, v.Symbol.Name)
//	}
//
// Reference queries are pipelined against each server with bounded
// concurrency; per-file and per-symbol failures surface as Skipped or Failed
// verdicts without aborting the run. Only a dead server (session lost) fails
// its whole language group, and other groups still complete.
package ufd
