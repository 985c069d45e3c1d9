// Package templates renders check templates with the resolved fact context.
package templates

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/Masterminds/sprig/v3"
)

// Renderer renders a template body against a fact context. An interface so
// the template grammar stays swappable behind the check engine.
type Renderer interface {
	Render(name, text string, facts map[string]string) (string, error)
	// References returns the fact keys the template reads.
	References(text string) ([]string, error)
}

// TextRenderer renders Go text/template bodies with the sprig function
// library. Facts are exposed as top-level fields: `{{ .PROJECT_NAME }}`.
type TextRenderer struct {
	funcs template.FuncMap
}

// NewTextRenderer creates a [TextRenderer].
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{funcs: sprig.FuncMap()}
}

func (r *TextRenderer) Render(name, text string, facts map[string]string) (string, error) {
	tmpl, err := template.New(name).
		Funcs(r.funcs).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, facts)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	return buf.String(), nil
}

func (r *TextRenderer) References(text string) ([]string, error) {
	tmpl, err := template.New("refs").
		Funcs(r.funcs).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	refs := make(map[string]struct{})

	for _, t := range tmpl.Templates() {
		if t.Tree != nil && t.Tree.Root != nil {
			collectFields(t.Tree.Root, refs)
		}
	}

	keys := make([]string, 0, len(refs))
	for key := range refs {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys, nil
}

// collectFields walks the parse tree recording the first identifier of every
// field access, which is the fact key for a map context.
func collectFields(node parse.Node, refs map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}

		for _, item := range n.Nodes {
			collectFields(item, refs)
		}

	case *parse.ActionNode:
		collectPipe(n.Pipe, refs)

	case *parse.IfNode:
		collectPipe(n.Pipe, refs)
		collectFields(n.List, refs)

		if n.ElseList != nil {
			collectFields(n.ElseList, refs)
		}

	case *parse.RangeNode:
		collectPipe(n.Pipe, refs)
		collectFields(n.List, refs)

		if n.ElseList != nil {
			collectFields(n.ElseList, refs)
		}

	case *parse.WithNode:
		collectPipe(n.Pipe, refs)
		collectFields(n.List, refs)

		if n.ElseList != nil {
			collectFields(n.ElseList, refs)
		}

	case *parse.TemplateNode:
		collectPipe(n.Pipe, refs)
	}
}

func collectPipe(pipe *parse.PipeNode, refs map[string]struct{}) {
	if pipe == nil {
		return
	}

	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if len(a.Ident) > 0 {
					refs[a.Ident[0]] = struct{}{}
				}

			case *parse.PipeNode:
				collectPipe(a, refs)
			}
		}
	}
}
