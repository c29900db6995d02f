package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	ufd "github.com/jad-haddad/unused-function-detector"
	"github.com/jad-haddad/unused-function-detector/internal/lsp"
	"github.com/jad-haddad/unused-function-detector/internal/store"
)

// timeRound is the display precision for durations.
const timeRound = time.Millisecond

func validateOutput(format string) error {
	switch format {
	case "tree", "json", "csv":
		return nil
	}
	return fmt.Errorf("invalid output format %q (want tree, json, or csv)", format)
}

// render writes the report in the requested format to stdout or, when
// outputFile is set, to that file.
func render(report *ufd.Report, format, outputFile string) error {
	w := io.Writer(os.Stdout)
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outputFile, err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		return renderJSON(w, report)
	case "csv":
		return renderCSV(w, report)
	default:
		renderTree(w, report)
		return nil
	}
}

// jsonSummary matches the structured document consumed by downstream
// tooling. scan_duration is in seconds.
type jsonSummary struct {
	FilesScanned         int     `json:"files_scanned"`
	TotalFunctions       int     `json:"total_functions"`
	UnusedFunctionsCount int     `json:"unused_functions_count"`
	ScanDuration         float64 `json:"scan_duration"`
	SkippedFunctions     int     `json:"skipped_functions"`
	FailedFunctions      int     `json:"failed_functions"`
	Partial              bool    `json:"partial,omitempty"`
}

// jsonFunction reports line 1-based and character 0-based, matching the
// tabular and tree renderings.
type jsonFunction struct {
	FileURI   string `json:"file_uri"`
	Name      string `json:"name"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
}

func renderJSON(w io.Writer, report *ufd.Report) error {
	funcs := make([]jsonFunction, 0, len(report.Unused))
	for _, v := range report.Unused {
		funcs = append(funcs, jsonFunction{
			FileURI:   v.Symbol.URI,
			Name:      v.Symbol.Name,
			Line:      v.Symbol.Line + 1,
			Character: v.Symbol.Character,
		})
	}

	doc := struct {
		Summary         jsonSummary    `json:"summary"`
		UnusedFunctions []jsonFunction `json:"unused_functions"`
	}{
		Summary: jsonSummary{
			FilesScanned:         report.FilesScanned,
			TotalFunctions:       report.TotalFunctions,
			UnusedFunctionsCount: report.UnusedCount(),
			ScanDuration:         report.Duration.Seconds(),
			SkippedFunctions:     report.SkippedFunctions,
			FailedFunctions:      report.FailedFunctions,
			Partial:              report.Partial,
		},
		UnusedFunctions: funcs,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func renderCSV(w io.Writer, report *ufd.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"File", "Function", "Line", "Character"}); err != nil {
		return err
	}
	for _, v := range report.Unused {
		err := cw.Write([]string{
			v.Symbol.Path,
			v.Symbol.Name,
			strconv.Itoa(v.Symbol.Line + 1),
			strconv.Itoa(v.Symbol.Character),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// treeNode is one directory or file in the rendered hierarchy.
type treeNode struct {
	children map[string]*treeNode
	funcs    []ufd.Verdict
}

func newTreeNode() *treeNode {
	return &treeNode{children: make(map[string]*treeNode)}
}

func (n *treeNode) child(name string) *treeNode {
	c, ok := n.children[name]
	if !ok {
		c = newTreeNode()
		n.children[name] = c
	}
	return c
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	dirColor    = color.New(color.FgBlue)
	fileColor   = color.New(color.FgGreen)
	funcColor   = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
)

// renderTree prints the unused functions grouped by directory, then file,
// followed by the scan summary.
func renderTree(w io.Writer, report *ufd.Report) {
	if len(report.Unused) == 0 {
		fmt.Fprintln(w, "No unused functions found.")
		renderSummary(w, report)
		return
	}

	root := newTreeNode()
	for _, v := range report.Unused {
		rel, err := filepath.Rel(report.Root, v.Symbol.Path)
		if err != nil {
			rel = v.Symbol.Path
		}
		node := root
		for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
			node = node.child(part)
		}
		node.funcs = append(node.funcs, v)
	}

	headerColor.Fprintf(w, "Unused functions (%d)\n", len(report.Unused))
	printTree(w, root, "")
	renderSummary(w, report)
}

func printTree(w io.Writer, node *treeNode, prefix string) {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		child := node.children[name]
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(names)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}

		if len(child.children) > 0 {
			fmt.Fprintf(w, "%s%s%s\n", prefix, connector, dirColor.Sprint(name))
			printTree(w, child, childPrefix)
			continue
		}

		fmt.Fprintf(w, "%s%s%s\n", prefix, connector, fileColor.Sprint(name))
		for j, v := range child.funcs {
			fc := "├── "
			if j == len(child.funcs)-1 {
				fc = "└── "
			}
			fmt.Fprintf(w, "%s%s%s %s\n",
				childPrefix, fc,
				funcColor.Sprint(v.Symbol.Name),
				dimColor.Sprintf("(line %d, col %d)", v.Symbol.Line+1, v.Symbol.Character),
			)
		}
	}
}

func renderSummary(w io.Writer, report *ufd.Report) {
	fmt.Fprintf(w, "\nScanned %d files, %d functions in %s\n",
		report.FilesScanned, report.TotalFunctions, report.Duration.Round(timeRound))
	if report.FailedFunctions > 0 || report.FailedFiles > 0 {
		fmt.Fprintf(w, "Could not analyze everything: %d files and %d functions failed\n",
			report.FailedFiles, report.FailedFunctions)
	}
	if report.Partial {
		fmt.Fprintln(w, "Scan was interrupted; results are partial.")
	}
}

func renderHistory(w io.Writer, scans []store.Scan) {
	if len(scans) == 0 {
		fmt.Fprintln(w, "No recorded scans for this root.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tFILES\tFUNCTIONS\tUNUSED\tDURATION\tPARTIAL")
	for _, sc := range scans {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\t%v\n",
			sc.ID, sc.StartedAt.Format("2006-01-02 15:04:05"),
			sc.FilesScanned, sc.TotalFunctions, sc.UnusedCount,
			sc.Duration.Round(timeRound), sc.Partial)
	}
	tw.Flush()
}

func renderDoctor(w io.Writer, registry *lsp.Registry) {
	ok := color.New(color.FgGreen).Sprint("installed")
	missing := color.New(color.FgRed).Sprint("missing")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LANGUAGE\tSERVER\tSTATUS")
	for _, lang := range registry.Languages() {
		cfg, _ := registry.Get(lang)
		status := missing
		if registry.Available(lang) {
			status = ok
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", lang, cfg.Command, status)
	}
	tw.Flush()
}
