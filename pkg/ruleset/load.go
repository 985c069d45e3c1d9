package ruleset

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/macropower/checkit/pkg/schema"
)

// Load decodes and validates one rule document. It performs no repository
// I/O; facts and checks are evaluated later by the engine.
//
// Decode failures, schema violations (including unknown fields), and
// cross-field constraint violations all return a [*ParseError].
func Load(data []byte) (*RuleSet, error) {
	var doc any

	dec := yaml.NewDecoder(bytes.NewReader(data))

	err := dec.Decode(&doc)
	if err != nil {
		return nil, wrapYAMLError(err, data)
	}

	err = DefaultValidator.Validate(doc)
	if err != nil {
		var validationErr *schema.ValidationError
		if errors.As(err, &validationErr) {
			return nil, &ParseError{
				Err:    errors.New(validationErr.Detail),
				Path:   validationErr.Path,
				Source: data,
			}
		}

		return nil, fmt.Errorf("validate rule document: %w", err)
	}

	rs := New()

	dec = yaml.NewDecoder(bytes.NewReader(data))

	err = dec.Decode(rs)
	if err != nil {
		return nil, wrapYAMLError(err, data)
	}

	err = rs.Build()
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.Source = data

			return nil, parseErr
		}

		return nil, err
	}

	return rs, nil
}

// LoadFile loads a rule document from disk and records its source path.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("read rule document: %w", err)
	}

	rs, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rs.SetSource(path)

	return rs, nil
}

// Marshal re-serializes a document to YAML. Loading the result yields an
// equivalent document.
func Marshal(rs *RuleSet) ([]byte, error) {
	data, err := yaml.MarshalWithOptions(rs,
		yaml.Indent(2),
		yaml.IndentSequence(true),
	)
	if err != nil {
		return nil, fmt.Errorf("marshal rule document: %w", err)
	}

	return data, nil
}

// wrapYAMLError converts goccy decode errors into [*ParseError]s carrying
// the token where decoding failed.
func wrapYAMLError(err error, source []byte) error {
	var yamlErr yaml.Error
	if errors.As(err, &yamlErr) {
		return &ParseError{
			Err:    errors.New(yamlErr.GetMessage()),
			Token:  yamlErr.GetToken(),
			Source: source,
		}
	}

	return fmt.Errorf("decode rule document: %w", err)
}
