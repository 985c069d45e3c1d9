package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagToEnvName(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		flag string
		want string
	}{
		"simple":     {flag: "jobs", want: "CHECKIT_JOBS"},
		"dashed":     {flag: "log-level", want: "CHECKIT_LOG_LEVEL"},
		"multi dash": {flag: "no-read-cache", want: "CHECKIT_NO_READ_CACHE"},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, flagToEnvName(tc.flag))
		})
	}
}

func TestBindEnvVars(t *testing.T) {
	t.Setenv("CHECKIT_LOG_LEVEL", "debug")

	cmd := &cobra.Command{Use: "checkit"}
	cmd.Flags().String("log-level", "warn", "Log level")
	cmd.Flags().String("log-format", "text", "Log format")

	bindEnvVars(cmd)

	level, err := cmd.Flags().GetString("log-level")
	require.NoError(t, err)
	assert.Equal(t, "debug", level)

	format, err := cmd.Flags().GetString("log-format")
	require.NoError(t, err)
	assert.Equal(t, "text", format)

	// Usage strings advertise the environment variable.
	assert.Contains(t, cmd.Flags().Lookup("log-level").Usage, "$CHECKIT_LOG_LEVEL")
}

func TestBindEnvVars_FlagTakesPrecedence(t *testing.T) {
	t.Setenv("CHECKIT_LOG_LEVEL", "debug")

	cmd := &cobra.Command{Use: "checkit"}
	cmd.Flags().String("log-level", "warn", "Log level")
	require.NoError(t, cmd.Flags().Set("log-level", "error"))

	bindEnvVars(cmd)

	level, err := cmd.Flags().GetString("log-level")
	require.NoError(t, err)
	assert.Equal(t, "error", level)
}

func TestFlagSet(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "checkit"}
	cmd.Flags().Int("jobs", 0, "Jobs")
	cmd.Flags().Bool("fail-fast", false, "Fail fast")

	assert.False(t, flagSet(cmd, "jobs"))
	assert.False(t, flagSet(cmd, "missing"))

	require.NoError(t, cmd.Flags().Set("jobs", "4"))
	assert.True(t, flagSet(cmd, "jobs"))

	// A value changed outside Set, as env binding does, still counts.
	require.NoError(t, cmd.Flags().Lookup("fail-fast").Value.Set("true"))
	assert.True(t, flagSet(cmd, "fail-fast"))
}
