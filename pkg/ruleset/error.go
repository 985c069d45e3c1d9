package ruleset

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/parser"
	"github.com/goccy/go-yaml/printer"
	"github.com/goccy/go-yaml/token"
)

// ParseError is a fatal rule document error. It carries the YAML location
// (a token from the decoder, or a path from schema validation) so the
// message can point at the offending line and column with an annotated
// source excerpt.
type ParseError struct {
	Err    error
	Path   *yaml.Path
	Token  *token.Token
	Source []byte
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return ""
	}

	tk := e.Token
	if tk == nil && e.Path != nil && len(e.Source) > 0 {
		tk = tokenFromPath(e.Source, e.Path)
	}

	if tk == nil {
		if e.Path != nil {
			return fmt.Sprintf("error at %s: %v", e.Path.String(), e.Err)
		}

		return e.Err.Error()
	}

	msg := fmt.Sprintf("[%d:%d] %v:", tk.Position.Line, tk.Position.Column, e.Err)

	var pp printer.Printer

	return fmt.Sprintf("%s\n%s", msg, pp.PrintErrorToken(tk, false))
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// tokenFromPath locates the token a YAML path points at, or nil.
func tokenFromPath(source []byte, path *yaml.Path) *token.Token {
	file, err := parser.ParseBytes(source, 0)
	if err != nil {
		return nil
	}

	node, err := path.FilterFile(file)
	if err != nil {
		return nil
	}

	return node.GetToken()
}

// buildErr wraps a Build validation failure with its document location.
func buildErr(pathStr string, err error) error {
	path, perr := yaml.PathString(pathStr)
	if perr != nil {
		return &ParseError{Err: err}
	}

	return &ParseError{Err: err, Path: path}
}
