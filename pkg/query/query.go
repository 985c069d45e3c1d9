// Package query extracts values from structured documents (YAML, JSON, TOML)
// using dotted path expressions like `$.package.name` or `$.deps[0].version`.
package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format identifies a structured document format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

var (
	ErrNotFound          = errors.New("no value at path")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrInvalidQuery      = errors.New("invalid query expression")
)

// File reads the document at path and extracts the value at expression.
// The format is inferred from the file extension.
func File(path, expression string) (any, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	return Document(data, format, expression)
}

// FormatForPath infers the document format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Document extracts the value at expression from a document in the given
// format.
func Document(data []byte, format Format, expression string) (any, error) {
	switch format {
	case FormatYAML:
		return yamlQuery(data, expression)

	case FormatJSON:
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal json: %w", err)
		}

		return walk(doc, expression)

	case FormatTOML:
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal toml: %w", err)
		}

		return walk(doc, expression)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func yamlQuery(data []byte, expression string) (any, error) {
	path, err := yaml.PathString(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	var value any

	err = path.Read(bytes.NewReader(data), &value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, expression)
	}

	return value, nil
}

type segment struct {
	key   string
	index int
	isIdx bool
}

// walk traverses decoded JSON/TOML values with the same `$.a.b[0]` syntax
// goccy accepts for YAML paths.
func walk(doc any, expression string) (any, error) {
	segments, err := parseExpression(expression)
	if err != nil {
		return nil, err
	}

	current := doc
	for _, seg := range segments {
		if seg.isIdx {
			list, ok := current.([]any)
			if !ok || seg.index < 0 || seg.index >= len(list) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, expression)
			}

			current = list[seg.index]

			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, expression)
		}

		current, ok = m[seg.key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, expression)
		}
	}

	return current, nil
}

func parseExpression(expression string) ([]segment, error) {
	if !strings.HasPrefix(expression, "$") {
		return nil, fmt.Errorf("%w: must start with $", ErrInvalidQuery)
	}

	rest := strings.TrimPrefix(expression, "$")

	var segments []segment

	for rest != "" {
		switch {
		case strings.HasPrefix(rest, "."):
			rest = rest[1:]

			end := strings.IndexAny(rest, ".[")
			if end == -1 {
				end = len(rest)
			}
			if end == 0 {
				return nil, fmt.Errorf("%w: empty key in %q", ErrInvalidQuery, expression)
			}

			segments = append(segments, segment{key: rest[:end]})
			rest = rest[end:]

		case strings.HasPrefix(rest, "["):
			end := strings.Index(rest, "]")
			if end == -1 {
				return nil, fmt.Errorf("%w: unterminated index in %q", ErrInvalidQuery, expression)
			}

			idx, err := strconv.Atoi(rest[1:end])
			if err != nil {
				return nil, fmt.Errorf("%w: bad index in %q", ErrInvalidQuery, expression)
			}

			segments = append(segments, segment{index: idx, isIdx: true})
			rest = rest[end+1:]

		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidQuery, rest)
		}
	}

	return segments, nil
}
