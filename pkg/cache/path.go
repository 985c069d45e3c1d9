package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Dir returns the cache directory. It checks $XDG_CACHE_HOME first, then
// falls back to ~/.cache, and finally to a temp directory.
func Dir() string {
	if xdgCache, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && xdgCache != "" {
		return filepath.Join(xdgCache, "checkit")
	}

	usrHome, err := os.UserHomeDir()
	if err == nil && usrHome != "" {
		return filepath.Join(usrHome, ".cache", "checkit")
	}

	tmpPath := filepath.Join(os.TempDir(), "checkit")

	slog.Warn("could not determine user cache directory, using temp path",
		slog.String("path", tmpPath),
		slog.Any("error", fmt.Errorf("$XDG_CACHE_HOME is unset, fall back to home directory: %w", err)),
	)

	return tmpPath
}

// DefaultPath returns the cache file path for a repository, named after the
// repository directory.
func DefaultPath(repoRoot string) string {
	name := filepath.Base(repoRoot)

	abs, err := filepath.Abs(repoRoot)
	if err == nil {
		name = filepath.Base(abs)
	}

	return filepath.Join(Dir(), name+".cache")
}
