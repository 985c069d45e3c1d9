package facts

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/macropower/checkit/pkg/ruleset"
)

// source is the hashed identity of a fact's declared source. Any change to
// it invalidates the cached value.
type source struct {
	Type       string
	Command    string
	Dir        string
	Path       string
	File       string
	Query      string
	Name       string
	EnvValue   string
	ContentSum string
}

// fingerprint computes the cache fingerprint for a fact.
//
// Command facts hash the command line plus working directory. File-backed
// facts additionally hash the referenced file's bytes, so edits invalidate
// the entry. Environment facts hash the current value, so a cached entry is
// only ever hit while the variable is unchanged.
func (r *Resolver) fingerprint(f *ruleset.Fact) (string, error) {
	src := source{Type: f.Type}

	switch f.Type {
	case ruleset.FactEvalCommand:
		src.Command = f.Command
		src.Dir = r.repoRoot

	case ruleset.FactFileContent:
		src.Path = f.Path

		sum, err := fileSum(filepath.Join(r.repoRoot, f.Path))
		if err != nil {
			return "", classifyFileErr(f.Key, f.Path, err)
		}

		src.ContentSum = sum

	case ruleset.FactPathQuery:
		src.File = f.File
		src.Query = f.Query

		sum, err := fileSum(filepath.Join(r.repoRoot, f.File))
		if err != nil {
			return "", classifyFileErr(f.Key, f.File, err)
		}

		src.ContentSum = sum

	case ruleset.FactEnvVar:
		src.Name = f.Name
		src.EnvValue = os.Getenv(f.Name)
	}

	hash, err := hashstructure.Hash(src, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("hash fact source: %w", err)
	}

	return fmt.Sprintf("%016x", hash), nil
}

func fileSum(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return "", err //nolint:wrapcheck // Classified by the caller.
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}

func classifyFileErr(key, path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return newError(key, KindPathNotFound, fmt.Errorf("read %s: %w", path, err))
	}

	return newError(key, KindIO, fmt.Errorf("read %s: %w", path, err))
}
