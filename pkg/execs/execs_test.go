package execs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/checkit/pkg/execs"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		command string
		want    execs.Command
		wantErr error
	}{
		"simple": {
			command: "echo hello",
			want:    execs.Command{Command: "echo", Args: []string{"hello"}},
		},
		"quoted argument": {
			command: `grep "two words" file.txt`,
			want:    execs.Command{Command: "grep", Args: []string{"two words", "file.txt"}},
		},
		"no arguments": {
			command: "true",
			want:    execs.Command{Command: "true", Args: []string{}},
		},
		"empty": {
			command: "",
			wantErr: execs.ErrEmptyCommand,
		},
		"whitespace only": {
			command: "   ",
			wantErr: execs.ErrEmptyCommand,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := execs.Parse(tc.command)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want.Command, got.Command)
			assert.Equal(t, tc.want.Args, got.Args)
		})
	}
}

func TestExecutor_Exec(t *testing.T) {
	t.Parallel()

	cmd, err := execs.Parse("echo hello world")
	require.NoError(t, err)

	e := execs.NewExecutor(cmd, time.Minute)

	result, err := e.Exec(t.Context(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.TrimmedStdout())
}

func TestExecutor_Exec_MissingExecutable(t *testing.T) {
	t.Parallel()

	cmd, err := execs.Parse("definitely-not-a-real-binary")
	require.NoError(t, err)

	e := execs.NewExecutor(cmd, time.Minute)

	_, err = e.Exec(t.Context(), t.TempDir())
	require.ErrorIs(t, err, execs.ErrExecutableNotFound)
}

func TestExecutor_Exec_Timeout(t *testing.T) {
	t.Parallel()

	cmd, err := execs.Parse("sleep 5")
	require.NoError(t, err)

	e := execs.NewExecutor(cmd, 50*time.Millisecond)

	_, err = e.Exec(t.Context(), t.TempDir())
	require.ErrorIs(t, err, execs.ErrTimeout)
}

func TestExecutor_Exec_Failure(t *testing.T) {
	t.Parallel()

	cmd, err := execs.Parse("false")
	require.NoError(t, err)

	e := execs.NewExecutor(cmd, time.Minute)

	result, err := e.Exec(t.Context(), t.TempDir())
	require.ErrorIs(t, err, execs.ErrCommandExecution)
	require.NotNil(t, result)
}

func TestExecutor_Exec_ExtraEnv(t *testing.T) {
	t.Parallel()

	cmd, err := execs.Parse("sh -c 'echo $CHECK_TARGET'")
	require.NoError(t, err)

	cmd.Env = []string{"CHECK_TARGET=demo"}
	e := execs.NewExecutor(cmd, time.Minute)

	result, err := e.Exec(t.Context(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "demo", result.TrimmedStdout())
}
