package execs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/checkit/pkg/log"
)

// Executor runs a [Command] with a bounded timeout.
type Executor struct {
	tracer  trace.Tracer
	cmd     Command
	timeout time.Duration
}

// NewExecutor creates an [Executor] for cmd. A zero timeout means no limit.
func NewExecutor(cmd Command, timeout time.Duration) Executor {
	return Executor{
		tracer:  otel.Tracer("executor"),
		cmd:     cmd,
		timeout: timeout,
	}
}

// Exec runs the command in dir and captures its output.
// A missing executable returns [ErrExecutableNotFound], an exceeded timeout
// returns [ErrTimeout], and any other failure returns [ErrCommandExecution]
// together with whatever output was produced.
func (e Executor) Exec(ctx context.Context, dir string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "exec", trace.WithAttributes(
		attribute.String("command", e.cmd.String()),
		attribute.String("path", dir),
	))
	defer span.End()

	if e.cmd.Command == "" {
		return nil, ErrEmptyCommand
	}
	if err := e.cmd.Lookup(); err != nil {
		return nil, err
	}

	logger := log.WithContext(ctx).With(
		slog.String("command", e.cmd.String()),
		slog.String("path", dir),
	)

	if e.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()

	//nolint:gosec // G204: Subprocess launched with a potential tainted input or cmd arguments.
	cmd := exec.CommandContext(ctx, e.cmd.Command, e.cmd.Args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), e.cmd.Env...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		logger.DebugContext(ctx, "command failed",
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}

		return result, fmt.Errorf("%w: %w", ErrCommandExecution, err)
	}

	logger.DebugContext(ctx, "command executed successfully",
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}
