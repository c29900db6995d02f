package lsp

import (
	"net/url"
	"path/filepath"
	"strings"
)

// URIFromPath converts a file path to a file:// URI, encoding reserved
// characters. Relative paths are made absolute first.
func URIFromPath(path string) string {
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// PathFromURI converts a file:// URI back to a file path, decoding any
// percent-encoding. Non-file URIs are returned with the scheme stripped.
func PathFromURI(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return strings.TrimPrefix(uri, "file://")
}
