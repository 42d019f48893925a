// Package handlers provides HTTP handlers for the web service.
package handlers

import (
	"path/filepath"
	"strings"
)

// ConfigProvider is an interface that defines the configuration access methods used by the handlers.
type ConfigProvider interface {
	IsAllowed(string) bool // IsAllowed checks if a given item is allowed based on the present configuration state.
}

// cleanPathElem cleans a single path element from the URL and reports
// whether it is safe to use as a directory or file name.
func cleanPathElem(v string) (string, bool) {
	v = filepath.Clean(v)
	if v == "" || v == "." || strings.Contains(v, "..") || strings.ContainsRune(v, filepath.Separator) {
		return "", false
	}
	return v, true
}
