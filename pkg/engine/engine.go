// Package engine evaluates rule documents against a repository: it gates
// documents and checks on their conditions, schedules fact resolution and
// checks over a bounded worker pool, and produces ordered outcomes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/macropower/checkit/pkg/execs"
	"github.com/macropower/checkit/pkg/expr"
	"github.com/macropower/checkit/pkg/facts"
	"github.com/macropower/checkit/pkg/ruleset"
	"github.com/macropower/checkit/pkg/templates"
)

// Opt configures an [Engine].
type Opt func(*Engine)

// WithJobs bounds check and fact concurrency.
func WithJobs(n int) Opt {
	return func(e *Engine) {
		if n > 0 {
			e.jobs = n
		}
	}
}

// WithFailFast stops scheduling new checks after the first failure.
func WithFailFast(enabled bool) Opt {
	return func(e *Engine) {
		e.failFast = enabled
	}
}

// WithRenderer replaces the template renderer.
func WithRenderer(r templates.Renderer) Opt {
	return func(e *Engine) {
		e.renderer = r
	}
}

// WithTimeout bounds command checks. Zero disables the limit.
func WithTimeout(d time.Duration) Opt {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithHTTPClient replaces the client used by http checks.
func WithHTTPClient(c *http.Client) Opt {
	return func(e *Engine) {
		e.client = c
	}
}

// Engine runs rule documents against one repository root.
type Engine struct {
	resolver *facts.Resolver
	renderer templates.Renderer
	tracer   trace.Tracer
	client   *http.Client
	exprEnv  *expr.Environment
	programs map[string]cel.Program
	root     string
	progMu   sync.Mutex
	jobs     int
	timeout  time.Duration
	failFast bool
}

// New creates an [Engine] for the repository at root.
func New(root string, resolver *facts.Resolver, opts ...Opt) *Engine {
	e := &Engine{
		root:     root,
		resolver: resolver,
		renderer: templates.NewTextRenderer(),
		tracer:   otel.Tracer("engine"),
		client:   &http.Client{Timeout: facts.DefaultTimeout},
		exprEnv:  expr.MustNewFactsEnvironment(root),
		programs: make(map[string]cel.Program),
		jobs:     runtime.NumCPU(),
		timeout:  facts.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// program returns the compiled CEL program for an expr condition, compiling
// it against the repository-rooted environment on first use. Documents pass
// [ruleset.RuleSet.Build] before reaching the engine, so compilation here
// only repeats a check that already succeeded.
//
//nolint:ireturn // Following CEL's function signature.
func (e *Engine) program(c *ruleset.Condition) (cel.Program, error) {
	e.progMu.Lock()
	defer e.progMu.Unlock()

	if p, ok := e.programs[c.Expr]; ok {
		return p, nil
	}

	p, err := e.exprEnv.Compile(c.Expr)
	if err != nil {
		return nil, err
	}

	e.programs[c.Expr] = p

	return p, nil
}

// Run evaluates the documents in order and returns their outcomes. Within a
// document, outcomes follow check declaration order regardless of scheduling.
// Only context cancellation is returned as an error; everything else becomes
// an outcome.
func (e *Engine) Run(ctx context.Context, sets []*ruleset.RuleSet) ([]Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.Int("documents", len(sets)),
	))
	defer span.End()

	var failed atomic.Bool

	outcomes := []Outcome{}

	for _, rs := range sets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run checks: %w", err)
		}

		outcomes = append(outcomes, e.runDocument(ctx, rs, &failed)...)
	}

	return outcomes, nil
}

func (e *Engine) runDocument(ctx context.Context, rs *ruleset.RuleSet, failed *atomic.Bool) []Outcome {
	ctx, span := e.tracer.Start(ctx, "run_document", trace.WithAttributes(
		attribute.String("document", rs.Name()),
	))
	defer span.End()

	// Stage 1: resolve facts up front so later consumers share the results.
	var g errgroup.Group

	g.SetLimit(e.jobs)

	for _, f := range rs.Facts {
		g.Go(func() error {
			_, _ = e.resolver.Resolve(ctx, f)

			return nil
		})
	}

	_ = g.Wait()

	// Stage 2: document conditions gate the whole document. A false
	// condition skips it without a diagnostic; an erroring one fails open
	// with an error outcome.
	ok, err := e.evalConditions(ctx, rs, rs.Conditions)
	if err != nil {
		return []Outcome{errOutcome(rs, err)}
	}
	if !ok {
		return nil
	}

	// Stage 3: run checks concurrently, outcomes at declaration index.
	results := make([]Outcome, len(rs.Checks))

	var checks errgroup.Group

	checks.SetLimit(e.jobs)

	for i, c := range rs.Checks {
		checks.Go(func() error {
			if e.failFast && failed.Load() {
				results[i] = Outcome{
					Document:    rs.Name(),
					Description: c.Describe(),
					Status:      StatusSkip,
					Reason:      "skipped after earlier failure",
				}

				return nil
			}

			results[i] = e.runCheck(ctx, rs, c)

			if results[i].Status == StatusFail || results[i].Status == StatusError {
				failed.Store(true)
			}

			return nil
		})
	}

	_ = checks.Wait()

	return results
}

func errOutcome(rs *ruleset.RuleSet, err error) Outcome {
	var evalErr *EvalError
	if errors.As(err, &evalErr) {
		return Outcome{
			Document:    rs.Name(),
			Description: evalErr.Condition.Describe(),
			Status:      StatusError,
			Reason:      evalErr.Err.Error(),
		}
	}

	return Outcome{
		Document: rs.Name(),
		Status:   StatusError,
		Reason:   err.Error(),
	}
}

func (e *Engine) runCheck(ctx context.Context, rs *ruleset.RuleSet, c *ruleset.Check) Outcome {
	start := time.Now()

	outcome := Outcome{
		Document:    rs.Name(),
		Description: c.Describe(),
		Status:      StatusPass,
	}

	defer func() {
		outcome.Duration = time.Since(start)
	}()

	// Per-check conditions skip rather than fail.
	ok, err := e.evalConditions(ctx, rs, c.Conditions)
	if err != nil {
		outcome.Status = StatusError
		outcome.Reason = err.Error()

		return outcome
	}
	if !ok {
		outcome.Status = StatusSkip
		outcome.Reason = "condition not met"

		return outcome
	}

	err = ruleset.VerifyAll(c.Requires)
	if err != nil {
		outcome.Status = StatusFail
		outcome.Reason = err.Error()

		return outcome
	}

	switch c.Type {
	case ruleset.CheckDirectory:
		e.checkDirectory(c, &outcome)

	case ruleset.CheckFile:
		e.checkFile(ctx, rs, c, &outcome)

	case ruleset.CheckCommand:
		e.checkCommand(ctx, c, &outcome)

	case ruleset.CheckHTTP:
		e.checkHTTP(ctx, c, &outcome)

	case ruleset.CheckVar:
		checkVar(c, &outcome)
	}

	return outcome
}

// checkCommand runs the command in the repository root and asserts its exit
// code and output. A missing executable or a timeout fails the check.
func (e *Engine) checkCommand(ctx context.Context, c *ruleset.Check, outcome *Outcome) {
	cmd, err := execs.Parse(c.Command)
	if err != nil {
		outcome.Status = StatusFail
		outcome.Reason = err.Error()

		return
	}

	executor := execs.NewExecutor(cmd, e.timeout)

	result, err := executor.Exec(ctx, e.root)
	if err != nil && !errors.Is(err, execs.ErrCommandExecution) {
		outcome.Status = StatusFail
		outcome.Reason = err.Error()

		return
	}

	if result.ExitCode != c.Code {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("command exited with code %d, want %d", result.ExitCode, c.Code)
		outcome.Detail = strings.TrimSpace(result.Stderr)

		return
	}

	if c.Stdout != "" {
		compareContents("stdout", c.Stdout, result.Stdout, outcome)
		if outcome.Status != StatusPass {
			return
		}
	}

	if c.Stderr != "" {
		compareContents("stderr", c.Stderr, result.Stderr, outcome)
		if outcome.Status != StatusPass {
			return
		}
	}

	if missing := missingFragments(result.Stdout, c.StdoutContains); len(missing) > 0 {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("stdout is missing fragments: %s", strings.Join(missing, ", "))

		return
	}

	if missing := missingFragments(result.Stderr, c.StderrContains); len(missing) > 0 {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("stderr is missing fragments: %s", strings.Join(missing, ", "))
	}
}

// checkHTTP performs the request and asserts the response status and body.
// Transport failures fail the check, they do not abort the run.
func (e *Engine) checkHTTP(ctx context.Context, c *ruleset.Check, outcome *Outcome) {
	req, err := http.NewRequestWithContext(ctx, c.RequestMethod(), c.URL, nil)
	if err != nil {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("build request for %q: %v", c.URL, err)

		return
	}

	resp, err := e.client.Do(req)
	if err != nil {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("request %q: %v", c.URL, err)

		return
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("read response from %q: %v", c.URL, err)

		return
	}

	if resp.StatusCode != c.ExpectedStatus() {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("%q returned status %d, want %d", c.URL, resp.StatusCode, c.ExpectedStatus())

		return
	}

	if c.Body != "" {
		compareContents(c.URL, c.Body, string(body), outcome)
		if outcome.Status != StatusPass {
			return
		}
	}

	if missing := missingFragments(string(body), c.BodyContains); len(missing) > 0 {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("response from %q is missing fragments: %s", c.URL, strings.Join(missing, ", "))
	}
}

// checkVar asserts an environment variable is set, and optionally equals an
// expected value.
func checkVar(c *ruleset.Check, outcome *Outcome) {
	got, ok := os.LookupEnv(c.Name)
	if !ok {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("environment variable %q is not set", c.Name)

		return
	}

	if c.Value != nil && got != *c.Value {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("environment variable %q is %q, want %q", c.Name, got, *c.Value)
	}
}

func missingFragments(text string, fragments []string) []string {
	var missing []string

	for _, fragment := range fragments {
		if !strings.Contains(text, fragment) {
			missing = append(missing, fragment)
		}
	}

	return missing
}

func (e *Engine) checkDirectory(c *ruleset.Check, outcome *Outcome) {
	dir := filepath.Join(e.root, c.Path)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("%q is not a directory", c.Path)

		return
	}

	var missing []string

	for _, entry := range c.Contains {
		_, err := os.Stat(filepath.Join(dir, entry))
		if err != nil {
			missing = append(missing, entry)
		}
	}

	if len(missing) > 0 {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("%q is missing entries: %s", c.Path, strings.Join(missing, ", "))
	}
}

func (e *Engine) checkFile(ctx context.Context, rs *ruleset.RuleSet, c *ruleset.Check, outcome *Outcome) {
	path := filepath.Join(e.root, c.Path)

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("%q is not a file", c.Path)

		return
	}

	if c.Template == "" && c.Contents == "" && len(c.Contains) == 0 {
		return
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("read %q: %v", c.Path, err)

		return
	}

	actual := string(data)

	switch {
	case c.Template != "":
		e.checkTemplate(ctx, rs, c, actual, outcome)

	case c.Contents != "":
		compareContents(c.Path, c.Contents, actual, outcome)

	case len(c.Contains) > 0:
		if missing := missingFragments(actual, c.Contains); len(missing) > 0 {
			outcome.Status = StatusFail
			outcome.Reason = fmt.Sprintf("%q is missing fragments: %s", c.Path, strings.Join(missing, ", "))
		}
	}
}

// checkTemplate renders the check's template with the fact context and
// compares it against the file. Render failures fail the check, they do not
// abort the run.
func (e *Engine) checkTemplate(ctx context.Context, rs *ruleset.RuleSet, c *ruleset.Check, actual string, outcome *Outcome) {
	tmplPath := filepath.Join(rs.Dir(), c.Template)

	tmplData, err := os.ReadFile(tmplPath) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("read template %q: %v", c.Template, err)

		return
	}

	refs, err := e.renderer.References(string(tmplData))
	if err != nil {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("template %q: %v", c.Template, err)

		return
	}

	factsMap := make(map[string]string, len(refs))
	cached := len(refs) > 0

	for _, ref := range refs {
		f := rs.Fact(ref)
		if f == nil {
			outcome.Status = StatusFail
			outcome.Reason = fmt.Sprintf("template %q references undeclared fact %q", c.Template, ref)

			return
		}

		res, err := e.resolver.Resolve(ctx, f)
		if err != nil {
			outcome.Status = StatusFail
			outcome.Reason = fmt.Sprintf("unresolved fact %q: %v", ref, err)

			return
		}

		factsMap[ref] = res.Value
		cached = cached && res.Cached
	}

	outcome.Cached = cached

	expected, err := e.renderer.Render(c.Template, string(tmplData), factsMap)
	if err != nil {
		outcome.Status = StatusFail
		outcome.Reason = fmt.Sprintf("render template %q: %v", c.Template, err)

		return
	}

	compareContents(c.Path, expected, actual, outcome)
}

// compareContents compares trimmed contents, attaching the first differing
// line and a unified diff on mismatch.
func compareContents(path, expected, actual string, outcome *Outcome) {
	expected = strings.TrimSpace(expected)
	actual = strings.TrimSpace(actual)

	if expected == actual {
		return
	}

	line, unified := diffStrings(expected, actual)

	outcome.Status = StatusFail
	outcome.Reason = fmt.Sprintf("%q differs from expected contents at line %d", path, line)
	outcome.Detail = unified
}
