package ruleset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Directories searched for rule documents, relative to the repository root.
var documentDirs = []string{
	".checklists",
	"checklists",
	".checks",
	"checks",
}

// Single-file rule documents at the repository root.
var documentFiles = []string{
	"checklist.yaml",
	"checklist.yml",
	".checklist.yaml",
	".checklist.yml",
}

// Discover returns the rule document paths for a repository, in a stable
// order: root-level documents first, then per-directory documents sorted by
// path. Missing directories are not an error.
func Discover(root string) ([]string, error) {
	var paths []string

	for _, name := range documentFiles {
		path := filepath.Join(root, name)

		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			paths = append(paths, path)
		}
	}

	for _, dir := range documentDirs {
		pattern := filepath.Join(root, dir, "**", "*.{yaml,yml}")

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}

		sort.Strings(matches)
		paths = append(paths, matches...)
	}

	return paths, nil
}
