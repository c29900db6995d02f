package ufd

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jad-haddad/unused-function-detector/internal/lsp"
)

// skipDirs are directory names never worth descending into.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"venv":         true,
	"env":          true,
	"alembic":      true,
	"migrations":   true,
}

// testDirs are excluded unless the scan opts into test files.
var testDirs = map[string]bool{
	"test":    true,
	"tests":   true,
	"testing": true,
}

// fileGroup is the set of files one language server session is responsible
// for. Files are in lexical order; groups are sorted by language.
type fileGroup struct {
	language string
	files    []string
}

// walkOptions configures a workspace walk.
type walkOptions struct {
	includeTests   bool
	ignorePatterns []string // doublestar globs against the root-relative path
}

// walkFiles enumerates analyzable files under root and groups them by
// language. Hidden entries and ignored directories are pruned before
// recursing; files with no registered analyzer are left out entirely and
// never spawn a session. Ordering is deterministic: filepath.WalkDir yields
// lexical order within each directory.
func walkFiles(root string, registry *lsp.Registry, opts walkOptions) ([]fileGroup, error) {
	byLanguage := make(map[string][]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			if !opts.includeTests && testDirs[name] {
				return filepath.SkipDir
			}
			if matchesAny(opts.ignorePatterns, rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if matchesAny(opts.ignorePatterns, rel) {
			return nil
		}

		lang, ok := registry.LanguageForExtension(filepath.Ext(path))
		if !ok {
			return nil
		}
		byLanguage[lang] = append(byLanguage[lang], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	langs := make([]string, 0, len(byLanguage))
	for lang := range byLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	groups := make([]fileGroup, 0, len(langs))
	for _, lang := range langs {
		groups = append(groups, fileGroup{language: lang, files: byLanguage[lang]})
	}
	return groups, nil
}

// matchesAny reports whether rel matches any of the doublestar patterns.
// Invalid patterns never match; they are validated at config load time.
func matchesAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
