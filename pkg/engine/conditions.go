package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/macropower/checkit/pkg/ruleset"
)

// EvalError is a condition evaluation failure. Conditions fail open: the
// guarded scope is skipped and the error surfaces as a diagnostic, but the
// run continues.
type EvalError struct {
	Err       error
	Condition *ruleset.Condition
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate condition %q: %v", e.Condition.Describe(), e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// evalConditions reports whether every condition holds, short-circuiting on
// the first false or erroring condition.
func (e *Engine) evalConditions(ctx context.Context, rs *ruleset.RuleSet, conds []*ruleset.Condition) (bool, error) {
	for _, c := range conds {
		ok, err := e.evalCondition(ctx, rs, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func (e *Engine) evalCondition(ctx context.Context, rs *ruleset.RuleSet, c *ruleset.Condition) (bool, error) {
	switch c.Type {
	case ruleset.ConditionFile:
		info, err := os.Stat(filepath.Join(e.root, c.Path))

		return err == nil && info.Mode().IsRegular(), nil

	case ruleset.ConditionDirectory:
		dir := filepath.Join(e.root, c.Path)

		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return false, nil
		}

		for _, entry := range c.Contains {
			_, err := os.Stat(filepath.Join(dir, entry))
			if err != nil {
				return false, nil
			}
		}

		return true, nil

	case ruleset.ConditionFactEquals:
		f := rs.Fact(c.Key)
		if f == nil {
			return false, &EvalError{Condition: c, Err: fmt.Errorf("undeclared fact %q", c.Key)}
		}

		res, err := e.resolver.Resolve(ctx, f)
		if err != nil {
			return false, &EvalError{Condition: c, Err: err}
		}

		return res.Value == c.Expected, nil

	case ruleset.ConditionExpr:
		return e.evalExpr(ctx, rs, c)

	case ruleset.ConditionAll:
		return e.evalConditions(ctx, rs, c.Conditions)

	case ruleset.ConditionAny:
		for _, sub := range c.Conditions {
			ok, err := e.evalCondition(ctx, rs, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}

		return false, nil

	case ruleset.ConditionNot:
		ok, err := e.evalCondition(ctx, rs, c.Conditions[0])
		if err != nil {
			return false, err
		}

		return !ok, nil
	}

	return false, &EvalError{Condition: c, Err: fmt.Errorf("unknown condition type %q", c.Type)}
}

// evalExpr evaluates an expr condition against the document's resolved
// facts. Facts that failed to resolve are absent from the map, so an
// expression reading them errors and fails open.
func (e *Engine) evalExpr(ctx context.Context, rs *ruleset.RuleSet, c *ruleset.Condition) (bool, error) {
	factsMap := make(map[string]string, len(rs.Facts))

	for _, f := range rs.Facts {
		res, err := e.resolver.Resolve(ctx, f)
		if err != nil {
			continue
		}

		factsMap[f.Key] = res.Value
	}

	program, err := e.program(c)
	if err != nil {
		return false, &EvalError{Condition: c, Err: err}
	}

	out, _, err := program.Eval(map[string]any{"facts": factsMap})
	if err != nil {
		return false, &EvalError{Condition: c, Err: err}
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, &EvalError{Condition: c, Err: fmt.Errorf("expression yielded %T, want bool", out.Value())}
	}

	return b, nil
}
