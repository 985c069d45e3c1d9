// Package facts resolves fact declarations to string values, memoizing
// within a run and consulting the persistent cache across runs.
package facts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/checkit/pkg/cache"
	"github.com/macropower/checkit/pkg/execs"
	"github.com/macropower/checkit/pkg/log"
	"github.com/macropower/checkit/pkg/query"
	"github.com/macropower/checkit/pkg/ruleset"
)

// DefaultTimeout bounds eval-command facts.
const DefaultTimeout = 30 * time.Second

// Result is one resolved fact value.
type Result struct {
	// Value is the resolved string value.
	Value string
	// Cached reports whether the value came from the persistent cache.
	Cached bool
}

// ResolverOpt configures a [Resolver].
type ResolverOpt func(*Resolver)

// WithTimeout bounds eval-command execution. Zero disables the limit.
func WithTimeout(d time.Duration) ResolverOpt {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// WithCacheRead toggles consulting the persistent cache.
func WithCacheRead(enabled bool) ResolverOpt {
	return func(r *Resolver) {
		r.readCache = enabled
	}
}

// WithCacheWrite toggles recording resolved values.
func WithCacheWrite(enabled bool) ResolverOpt {
	return func(r *Resolver) {
		r.writeCache = enabled
	}
}

// Resolver resolves facts against one repository. Each fact key is resolved
// at most once per run regardless of how many conditions and checks consume
// it; concurrent callers share the first resolution.
type Resolver struct {
	store    cache.Store
	memo     map[string]*memoEntry
	tracer   trace.Tracer
	repoRoot string

	timeout    time.Duration
	mu         sync.Mutex
	readCache  bool
	writeCache bool
}

type memoEntry struct {
	err  error
	res  Result
	once sync.Once
}

// NewResolver creates a [Resolver] for the repository at repoRoot, backed by
// the given store.
func NewResolver(repoRoot string, store cache.Store, opts ...ResolverOpt) *Resolver {
	r := &Resolver{
		repoRoot:   repoRoot,
		store:      store,
		memo:       make(map[string]*memoEntry),
		tracer:     otel.Tracer("facts"),
		timeout:    DefaultTimeout,
		readCache:  true,
		writeCache: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the value for a fact, computing it on first use.
func (r *Resolver) Resolve(ctx context.Context, f *ruleset.Fact) (Result, error) {
	r.mu.Lock()

	entry, ok := r.memo[f.Key]
	if !ok {
		entry = &memoEntry{}
		r.memo[f.Key] = entry
	}

	r.mu.Unlock()

	entry.once.Do(func() {
		entry.res, entry.err = r.resolve(ctx, f)
	})

	return entry.res, entry.err
}

func (r *Resolver) resolve(ctx context.Context, f *ruleset.Fact) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "resolve_fact", trace.WithAttributes(
		attribute.String("key", f.Key),
		attribute.String("type", f.Type),
	))
	defer span.End()

	// Literals resolve directly and never touch the cache.
	if f.Type == ruleset.FactLiteral {
		return Result{Value: f.Value}, nil
	}

	err := r.verifyRequirements(f)
	if err != nil {
		return Result{}, err
	}

	fingerprint, err := r.fingerprint(f)
	if err != nil {
		return Result{}, err
	}

	if r.readCache {
		if value, ok := r.store.Get(f.Key, fingerprint); ok {
			log.WithContext(ctx).DebugContext(ctx, "fact cache hit",
				slog.String("key", f.Key),
			)

			return Result{Value: value, Cached: true}, nil
		}
	}

	value, err := r.execute(ctx, f)
	if err != nil {
		return Result{}, err
	}

	if r.writeCache {
		err = r.store.Put(f.Key, fingerprint, value)
		if err != nil {
			// A cache write failure degrades the next run, not this one.
			log.WithContext(ctx).WarnContext(ctx, "cache fact value",
				slog.String("key", f.Key),
				slog.Any("error", err),
			)
		}
	}

	return Result{Value: value}, nil
}

func (r *Resolver) verifyRequirements(f *ruleset.Fact) error {
	for _, req := range f.Requires {
		err := req.Verify()
		if err == nil {
			continue
		}

		kind := KindCommandFailed
		if req.Type == ruleset.RequirementEnv {
			kind = KindUnset
		}

		return newError(f.Key, kind, err)
	}

	return nil
}

func (r *Resolver) execute(ctx context.Context, f *ruleset.Fact) (string, error) {
	switch f.Type {
	case ruleset.FactEvalCommand:
		return r.executeCommand(ctx, f)

	case ruleset.FactFileContent:
		path := filepath.Join(r.repoRoot, f.Path)

		data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", newError(f.Key, KindPathNotFound, fmt.Errorf("read %s: %w", f.Path, err))
			}

			return "", newError(f.Key, KindIO, fmt.Errorf("read %s: %w", f.Path, err))
		}

		return string(data), nil

	case ruleset.FactPathQuery:
		path := filepath.Join(r.repoRoot, f.File)

		value, err := query.File(path, f.Query)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, query.ErrNotFound) {
				return "", newError(f.Key, KindPathNotFound, err)
			}

			return "", newError(f.Key, KindIO, err)
		}

		return formatValue(value), nil

	case ruleset.FactEnvVar:
		value, ok := os.LookupEnv(f.Name)
		if !ok {
			return "", newError(f.Key, KindUnset, fmt.Errorf("environment variable %q is not set", f.Name))
		}

		return value, nil
	}

	return "", newError(f.Key, KindIO, fmt.Errorf("unknown fact type %q", f.Type))
}

func (r *Resolver) executeCommand(ctx context.Context, f *ruleset.Fact) (string, error) {
	cmd, err := execs.Parse(f.Command)
	if err != nil {
		return "", newError(f.Key, KindCommandFailed, err)
	}

	executor := execs.NewExecutor(cmd, r.timeout)

	result, err := executor.Exec(ctx, r.repoRoot)
	if err != nil {
		switch {
		case errors.Is(err, execs.ErrTimeout):
			return "", newError(f.Key, KindTimeout, err)

		case errors.Is(err, execs.ErrExecutableNotFound):
			return "", newError(f.Key, KindCommandFailed, err)
		}

		if result != nil && result.Stderr != "" {
			err = fmt.Errorf("%w: %s", err, firstLine(result.Stderr))
		}

		return "", newError(f.Key, KindCommandFailed, err)
	}

	return result.TrimmedStdout(), nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}

	return s
}

// formatValue converts a query result to its string form.
func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v

	case bool:
		return strconv.FormatBool(v)

	case int64:
		return strconv.FormatInt(v, 10)

	case uint64:
		return strconv.FormatUint(v, 10)

	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}

		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	return fmt.Sprintf("%v", value)
}
