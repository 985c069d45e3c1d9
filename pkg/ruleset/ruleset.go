// Package ruleset models rule documents: conditions that gate applicability,
// facts that extract values from the repository, and checks that assert
// properties of it.
package ruleset

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/macropower/checkit/pkg/expr"
)

const (
	ConditionFile       = "file"
	ConditionDirectory  = "directory"
	ConditionFactEquals = "fact-equals"
	ConditionExpr       = "expr"
	ConditionAll        = "all"
	ConditionAny        = "any"
	ConditionNot        = "not"

	FactEvalCommand = "eval-command"
	FactLiteral     = "literal"
	FactPathQuery   = "structured-path-query"
	FactFileContent = "file-content"
	FactEnvVar      = "env-var"

	CheckFile      = "file"
	CheckDirectory = "directory"
	CheckCommand   = "command"
	CheckHTTP      = "http"
	CheckVar       = "var"

	RequirementCommand = "command"
	RequirementEnv     = "env"
)

var (
	ErrInvalidCondition = errors.New("invalid condition")
	ErrInvalidFact      = errors.New("invalid fact")
	ErrInvalidCheck     = errors.New("invalid check")
	ErrDuplicateFactKey = errors.New("duplicate fact key")
	ErrRequirementUnmet = errors.New("requirement unmet")
)

// RuleSet is one rule document. Document-level conditions gate the whole
// document; facts feed fact-equals conditions, expr conditions, and check
// templates; checks assert properties of the repository.
type RuleSet struct {
	// Conditions gate the whole document. All must hold or every check in the
	// document is skipped.
	Conditions []*Condition `json:"condition,omitempty" jsonschema:"title=Conditions"`
	// Facts extract values from the repository.
	Facts []*Fact `json:"fact,omitempty" jsonschema:"title=Facts"`
	// Checks assert properties of the repository.
	Checks []*Check `json:"check,omitempty" jsonschema:"title=Checks"`

	source string
}

// New creates an empty [RuleSet].
func New() *RuleSet {
	return &RuleSet{}
}

// SetSource records the file path the document was loaded from.
func (rs *RuleSet) SetSource(path string) {
	rs.source = path
}

// Source returns the file path the document was loaded from, or "" when the
// document was loaded from bytes.
func (rs *RuleSet) Source() string {
	return rs.source
}

// Name returns a short display name for the document.
func (rs *RuleSet) Name() string {
	if rs.source == "" {
		return "inline"
	}

	name := filepath.Base(rs.source)

	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Dir returns the directory containing the document. Relative paths in
// checks (templates) resolve against it.
func (rs *RuleSet) Dir() string {
	if rs.source == "" {
		return "."
	}

	return filepath.Dir(rs.source)
}

// Fact returns the fact declared with the given key, or nil.
func (rs *RuleSet) Fact(key string) *Fact {
	for _, f := range rs.Facts {
		if f.Key == key {
			return f
		}
	}

	return nil
}

// Build validates cross-field constraints the schema cannot express and
// syntax-checks every expr condition. It must be called once after decoding,
// before the document is evaluated. The engine compiles expressions again
// with the repository root bound, so compiled programs are discarded here.
func (rs *RuleSet) Build() error {
	env, err := expr.NewFactsEnvironment(".")
	if err != nil {
		return fmt.Errorf("create expression environment: %w", err)
	}

	seen := make(map[string]struct{}, len(rs.Facts))

	for i, f := range rs.Facts {
		if _, ok := seen[f.Key]; ok {
			return buildErr(fmt.Sprintf("$.fact[%d].key", i), fmt.Errorf("%w: %q", ErrDuplicateFactKey, f.Key))
		}

		seen[f.Key] = struct{}{}

		if err := f.validate(); err != nil {
			return buildErr(fmt.Sprintf("$.fact[%d]", i), err)
		}
	}

	for i, c := range rs.Conditions {
		if err := c.build(env); err != nil {
			return buildErr(fmt.Sprintf("$.condition[%d]", i), err)
		}
	}

	for i, c := range rs.Checks {
		if err := c.validate(); err != nil {
			return buildErr(fmt.Sprintf("$.check[%d]", i), err)
		}

		for j, cond := range c.Conditions {
			if err := cond.build(env); err != nil {
				return buildErr(fmt.Sprintf("$.check[%d].conditions[%d]", i, j), err)
			}
		}
	}

	return nil
}

// Condition is a single applicability gate.
type Condition struct {
	// Type selects the condition variant.
	Type string `json:"type" jsonschema:"title=Type,enum=file,enum=directory,enum=fact-equals,enum=expr,enum=all,enum=any,enum=not"`
	// Path names a file or directory, relative to the repository root.
	Path string `json:"path,omitempty" jsonschema:"title=Path"`
	// Contains lists entries a directory must hold.
	Contains []string `json:"contains,omitempty" jsonschema:"title=Contains"`
	// Key names the fact compared by fact-equals.
	Key string `json:"key,omitempty" jsonschema:"title=Fact Key"`
	// Expected is the value the fact must equal.
	Expected string `json:"expected,omitempty" jsonschema:"title=Expected Value"`
	// Expr is a CEL expression over the `facts` map.
	Expr string `json:"expr,omitempty" jsonschema:"title=Expression"`
	// Conditions nest under all, any and not.
	Conditions []*Condition `json:"conditions,omitempty" jsonschema:"title=Nested Conditions"`
	// Description overrides the generated display text.
	Description string `json:"description,omitempty" jsonschema:"title=Description"`
}

// Describe returns display text for diagnostics.
func (c *Condition) Describe() string {
	if c.Description != "" {
		return c.Description
	}

	switch c.Type {
	case ConditionFile:
		return fmt.Sprintf("file %q exists", c.Path)
	case ConditionDirectory:
		return fmt.Sprintf("directory %q exists", c.Path)
	case ConditionFactEquals:
		return fmt.Sprintf("fact %q equals %q", c.Key, c.Expected)
	case ConditionExpr:
		return c.Expr
	}

	return c.Type
}

func (c *Condition) build(env *expr.Environment) error {
	switch c.Type {
	case ConditionFile, ConditionDirectory:
		if c.Path == "" {
			return fmt.Errorf("%w: %s condition requires a path", ErrInvalidCondition, c.Type)
		}

	case ConditionFactEquals:
		if c.Key == "" {
			return fmt.Errorf("%w: fact-equals condition requires a key", ErrInvalidCondition)
		}

	case ConditionExpr:
		if c.Expr == "" {
			return fmt.Errorf("%w: expr condition requires an expression", ErrInvalidCondition)
		}

		_, err := env.Compile(c.Expr)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCondition, err)
		}

	case ConditionAll, ConditionAny:
		if len(c.Conditions) == 0 {
			return fmt.Errorf("%w: %s condition requires nested conditions", ErrInvalidCondition, c.Type)
		}

	case ConditionNot:
		if len(c.Conditions) != 1 {
			return fmt.Errorf("%w: not condition requires exactly one nested condition", ErrInvalidCondition)
		}

	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCondition, c.Type)
	}

	for _, sub := range c.Conditions {
		if err := sub.build(env); err != nil {
			return err
		}
	}

	return nil
}

// Fact declares one value extracted from the repository.
type Fact struct {
	// Key is the name facts are referenced by. Unique within a document.
	Key string `json:"key" jsonschema:"title=Key,pattern=^\\S+$"`
	// Type selects the fact source.
	Type string `json:"type" jsonschema:"title=Type,enum=eval-command,enum=literal,enum=structured-path-query,enum=file-content,enum=env-var"`
	// Command is a shell-words command line whose trimmed stdout becomes the
	// value (eval-command).
	Command string `json:"command,omitempty" jsonschema:"title=Command"`
	// Value is the literal value (literal).
	Value string `json:"value,omitempty" jsonschema:"title=Value"`
	// Path is the file whose contents become the value (file-content).
	Path string `json:"path,omitempty" jsonschema:"title=Path"`
	// File is the structured document to query (structured-path-query).
	File string `json:"file,omitempty" jsonschema:"title=File"`
	// Query is a $.dotted.path expression (structured-path-query).
	Query string `json:"query,omitempty" jsonschema:"title=Query"`
	// Name is the environment variable to read (env-var).
	Name string `json:"name,omitempty" jsonschema:"title=Variable Name"`
	// Requires lists preconditions for resolving this fact.
	Requires []*Requirement `json:"requires,omitempty" jsonschema:"title=Requirements"`
}

func (f *Fact) validate() error {
	if f.Key == "" {
		return fmt.Errorf("%w: fact requires a key", ErrInvalidFact)
	}

	switch f.Type {
	case FactEvalCommand:
		if f.Command == "" {
			return fmt.Errorf("%w: eval-command fact requires a command", ErrInvalidFact)
		}

	case FactLiteral:
		// An empty literal is allowed.

	case FactPathQuery:
		if f.File == "" || f.Query == "" {
			return fmt.Errorf("%w: structured-path-query fact requires file and query", ErrInvalidFact)
		}

	case FactFileContent:
		if f.Path == "" {
			return fmt.Errorf("%w: file-content fact requires a path", ErrInvalidFact)
		}

	case FactEnvVar:
		if f.Name == "" {
			return fmt.Errorf("%w: env-var fact requires a name", ErrInvalidFact)
		}

	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidFact, f.Type)
	}

	return nil
}

// Check asserts one property of the repository.
type Check struct {
	// Type selects the check variant.
	Type string `json:"type" jsonschema:"title=Type,enum=file,enum=directory,enum=command,enum=http,enum=var"`
	// Path names the file or directory, relative to the repository root.
	Path string `json:"path,omitempty" jsonschema:"title=Path"`
	// Template names a template file, relative to the rule document, rendered
	// with the fact context and compared against the file.
	Template string `json:"template,omitempty" jsonschema:"title=Template"`
	// Contents is the exact expected file contents.
	Contents string `json:"contents,omitempty" jsonschema:"title=Contents"`
	// Contains lists required fragments (file) or entries (directory).
	Contains []string `json:"contains,omitempty" jsonschema:"title=Contains"`
	// Command is a shell-words command line to run (command).
	Command string `json:"command,omitempty" jsonschema:"title=Command"`
	// Code is the expected exit code (command, default 0) or HTTP status
	// (http, default 200).
	Code int `json:"code,omitempty" jsonschema:"title=Expected Code"`
	// Stdout is the exact expected stdout, after trimming (command).
	Stdout string `json:"stdout,omitempty" jsonschema:"title=Expected Stdout"`
	// Stderr is the exact expected stderr, after trimming (command).
	Stderr string `json:"stderr,omitempty" jsonschema:"title=Expected Stderr"`
	// StdoutContains lists fragments stdout must include (command).
	StdoutContains []string `json:"stdoutContains,omitempty" jsonschema:"title=Stdout Contains"`
	// StderrContains lists fragments stderr must include (command).
	StderrContains []string `json:"stderrContains,omitempty" jsonschema:"title=Stderr Contains"`
	// Method is the HTTP request method (http, default GET).
	Method string `json:"method,omitempty" jsonschema:"title=Method"`
	// URL is the request URL (http).
	URL string `json:"url,omitempty" jsonschema:"title=URL"`
	// Body is the exact expected response body, after trimming (http).
	Body string `json:"body,omitempty" jsonschema:"title=Expected Body"`
	// BodyContains lists fragments the response body must include (http).
	BodyContains []string `json:"bodyContains,omitempty" jsonschema:"title=Body Contains"`
	// Name is the environment variable to inspect (var).
	Name string `json:"name,omitempty" jsonschema:"title=Variable Name"`
	// Value is the value the variable must equal (var). When omitted, any
	// value passes as long as the variable is set.
	Value *string `json:"value,omitempty" jsonschema:"title=Expected Value"`
	// Description overrides the generated display text.
	Description string `json:"description,omitempty" jsonschema:"title=Description"`
	// Conditions gate this check. Unmet conditions skip it without failing.
	Conditions []*Condition `json:"conditions,omitempty" jsonschema:"title=Conditions"`
	// Requires lists preconditions. Unmet requirements fail the check.
	Requires []*Requirement `json:"requires,omitempty" jsonschema:"title=Requirements"`
}

func (c *Check) validate() error {
	switch c.Type {
	case CheckFile:
		if c.Path == "" {
			return fmt.Errorf("%w: file check requires a path", ErrInvalidCheck)
		}

		assertions := 0
		for _, set := range []bool{c.Template != "", c.Contents != "", len(c.Contains) > 0} {
			if set {
				assertions++
			}
		}

		if assertions > 1 {
			return fmt.Errorf("%w: template, contents and contains are mutually exclusive", ErrInvalidCheck)
		}

	case CheckDirectory:
		if c.Path == "" {
			return fmt.Errorf("%w: directory check requires a path", ErrInvalidCheck)
		}

		if c.Template != "" || c.Contents != "" {
			return fmt.Errorf("%w: directory check supports only contains", ErrInvalidCheck)
		}

	case CheckCommand:
		if c.Command == "" {
			return fmt.Errorf("%w: command check requires a command", ErrInvalidCheck)
		}

	case CheckHTTP:
		if c.URL == "" {
			return fmt.Errorf("%w: http check requires a url", ErrInvalidCheck)
		}

	case CheckVar:
		if c.Name == "" {
			return fmt.Errorf("%w: var check requires a name", ErrInvalidCheck)
		}

	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCheck, c.Type)
	}

	return nil
}

// Describe returns display text for diagnostics.
func (c *Check) Describe() string {
	if c.Description != "" {
		return c.Description
	}

	switch c.Type {
	case CheckFile:
		switch {
		case c.Template != "":
			return fmt.Sprintf("File %q matches template %q", c.Path, c.Template)
		case c.Contents != "":
			return fmt.Sprintf("File %q has expected contents", c.Path)
		case len(c.Contains) > 0:
			return fmt.Sprintf("File %q contains required fragments", c.Path)
		}

		return fmt.Sprintf("File %q exists", c.Path)

	case CheckDirectory:
		if len(c.Contains) > 0 {
			return fmt.Sprintf("Directory %q contains %s", c.Path, strings.Join(c.Contains, ", "))
		}

		return fmt.Sprintf("Directory %q exists", c.Path)

	case CheckCommand:
		if c.Code != 0 {
			return fmt.Sprintf("Command %q exits with code %d", c.Command, c.Code)
		}

		return fmt.Sprintf("Command %q succeeds", c.Command)

	case CheckHTTP:
		return fmt.Sprintf("HTTP %s %s returns %d", c.RequestMethod(), c.URL, c.ExpectedStatus())

	case CheckVar:
		if c.Value != nil {
			return fmt.Sprintf("Variable %q equals %q", c.Name, *c.Value)
		}

		return fmt.Sprintf("Variable %q is set", c.Name)
	}

	return c.Path
}

// RequestMethod returns the HTTP method for an http check, defaulting to GET.
func (c *Check) RequestMethod() string {
	if c.Method == "" {
		return "GET"
	}

	return strings.ToUpper(c.Method)
}

// ExpectedStatus returns the expected HTTP status for an http check,
// defaulting to 200.
func (c *Check) ExpectedStatus() int {
	if c.Code == 0 {
		return 200
	}

	return c.Code
}

// Requirement is a precondition on the environment.
type Requirement struct {
	// Type selects the requirement variant.
	Type string `json:"type" jsonschema:"title=Type,enum=command,enum=env"`
	// Command is an executable that must be on PATH (command).
	Command string `json:"command,omitempty" jsonschema:"title=Command"`
	// Name is an environment variable that must be set (env).
	Name string `json:"name,omitempty" jsonschema:"title=Variable Name"`
}

// Verify checks the requirement against the current environment.
func (r *Requirement) Verify() error {
	switch r.Type {
	case RequirementCommand:
		if _, err := exec.LookPath(r.Command); err != nil {
			return fmt.Errorf("%w: command %q is not available on PATH", ErrRequirementUnmet, r.Command)
		}

	case RequirementEnv:
		if _, ok := os.LookupEnv(r.Name); !ok {
			return fmt.Errorf("%w: environment variable %q is not set", ErrRequirementUnmet, r.Name)
		}

	default:
		return fmt.Errorf("%w: unknown requirement type %q", ErrRequirementUnmet, r.Type)
	}

	return nil
}

// VerifyAll checks every requirement, returning the first failure.
func VerifyAll(reqs []*Requirement) error {
	for _, r := range reqs {
		if err := r.Verify(); err != nil {
			return err
		}
	}

	return nil
}
