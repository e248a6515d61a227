// Package scoring provides the pure change-set signals Guardian builds its confidence from.
package scoring

import (
	"path"
	"strings"
)

// Size bands. Each band is left-inclusive: a total equal to a bound falls in the higher band.
const (
	smallChangeLimit  = 100
	mediumChangeLimit = 300
	largeChangeLimit  = 500

	smallChangePenalty  = 5
	mediumChangePenalty = 10
	largeChangePenalty  = 20
)

// testDirs are directory names whose contents count as tests at any depth.
var testDirs = map[string]bool{
	"tests":     true,
	"__tests__": true,
	"test":      true,
}

// SizePenalty returns the confidence penalty for a change of the given size: 0, 5, 10 or 20.
func SizePenalty(additions, deletions int) int {
	total := additions + deletions
	switch {
	case total < smallChangeLimit:
		return 0
	case total < mediumChangeLimit:
		return smallChangePenalty
	case total < largeChangeLimit:
		return mediumChangePenalty
	default:
		return largeChangePenalty
	}
}

// HasTests reports whether any of the paths looks like a test.
//
// A path is a test when an ancestor directory is named tests, __tests__ or test, or when its
// file name contains ".test." or ".spec.", ends in "_test" before the extension (Go, Rust) or
// starts with "test_" (Python).
func HasTests(paths []string) bool {
	for _, p := range paths {
		if isTestPath(p) {
			return true
		}
	}
	return false
}

func isTestPath(p string) bool {
	dir, file := path.Split(strings.TrimPrefix(p, "/"))
	for _, seg := range strings.Split(dir, "/") {
		if testDirs[seg] {
			return true
		}
	}

	if strings.Contains(file, ".test.") || strings.Contains(file, ".spec.") {
		return true
	}
	stem := strings.TrimSuffix(file, path.Ext(file))
	return strings.HasSuffix(stem, "_test") || strings.HasPrefix(file, "test_")
}

// IsSingleScope reports whether every path shares the same top-level segment.
// An empty list is vacuously single-scope.
func IsSingleScope(paths []string) bool {
	if len(paths) == 0 {
		return true
	}
	scope := topLevel(paths[0])
	for _, p := range paths[1:] {
		if topLevel(p) != scope {
			return false
		}
	}
	return true
}

// topLevel returns the first directory component, or the file name for root-level files.
func topLevel(p string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	return first
}
