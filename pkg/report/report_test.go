package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/checkit/pkg/engine"
	"github.com/macropower/checkit/pkg/report"
)

func TestReport_Counts(t *testing.T) {
	t.Parallel()

	rep := report.New([]engine.Outcome{
		{Status: engine.StatusPass},
		{Status: engine.StatusPass},
		{Status: engine.StatusFail},
		{Status: engine.StatusSkip},
		{Status: engine.StatusError},
	})

	passed, failed, skipped, errored := rep.Counts()
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, errored)
}

func TestReport_ExitCode(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		outcomes []engine.Outcome
		want     int
	}{
		"all pass": {
			outcomes: []engine.Outcome{{Status: engine.StatusPass}},
			want:     0,
		},
		"skips do not fail the run": {
			outcomes: []engine.Outcome{
				{Status: engine.StatusPass},
				{Status: engine.StatusSkip},
			},
			want: 0,
		},
		"failure": {
			outcomes: []engine.Outcome{
				{Status: engine.StatusPass},
				{Status: engine.StatusFail},
			},
			want: 1,
		},
		"error": {
			outcomes: []engine.Outcome{{Status: engine.StatusError}},
			want:     1,
		},
		"empty": {
			want: 0,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			rep := report.New(tc.outcomes)
			assert.Equal(t, tc.want, rep.ExitCode())
		})
	}
}

func TestRenderer_Render(t *testing.T) {
	t.Parallel()

	rep := report.New([]engine.Outcome{
		{
			Document:    "release",
			Description: `File "Cargo.toml" exists`,
			Status:      engine.StatusPass,
		},
		{
			Document:    "release",
			Description: `File "README.md" matches template "readme.tmpl"`,
			Status:      engine.StatusFail,
			Reason:      `"README.md" differs from expected contents at line 1`,
			Detail:      "--- expected\n+++ actual\n-# checklints\n+# wrong-name\n",
		},
		{
			Document:    "docs",
			Description: `File "CHANGELOG.md" exists`,
			Status:      engine.StatusSkip,
			Reason:      "condition not met",
		},
	})

	var b strings.Builder

	r := report.NewRenderer(report.WithColor(false))
	require.NoError(t, r.Render(&b, rep))

	out := b.String()

	assert.Contains(t, out, "> Checklist 'release'")
	assert.Contains(t, out, "> Checklist 'docs'")
	assert.Contains(t, out, `[PASS] File "Cargo.toml" exists`)
	assert.Contains(t, out, `[FAIL] File "README.md" matches template "readme.tmpl"`)
	assert.Contains(t, out, `[SKIP] File "CHANGELOG.md" exists`)

	// Reasons and diff lines are indented beneath their outcome.
	assert.Contains(t, out, "       \"README.md\" differs from expected contents at line 1")
	assert.Contains(t, out, "       +# wrong-name")

	assert.Contains(t, out, "1 passed, 1 failed, 1 skipped")
}

func TestRenderer_Render_Deterministic(t *testing.T) {
	t.Parallel()

	rep := report.New([]engine.Outcome{
		{Document: "release", Description: "a", Status: engine.StatusPass},
		{Document: "release", Description: "b", Status: engine.StatusFail, Reason: "nope"},
	})

	r := report.NewRenderer(report.WithColor(false))

	var first, second strings.Builder

	require.NoError(t, r.Render(&first, rep))
	require.NoError(t, r.Render(&second, rep))

	assert.Equal(t, first.String(), second.String())
}

func TestRenderer_Render_CachedMarker(t *testing.T) {
	t.Parallel()

	rep := report.New([]engine.Outcome{
		{
			Document:    "release",
			Description: `File "README.md" matches template "readme.tmpl"`,
			Status:      engine.StatusPass,
			Cached:      true,
		},
	})

	var b strings.Builder

	r := report.NewRenderer(report.WithColor(false))
	require.NoError(t, r.Render(&b, rep))

	assert.Contains(t, b.String(), "(cached)")
}

func TestRenderer_Render_Duration(t *testing.T) {
	t.Parallel()

	rep := report.New([]engine.Outcome{
		{Document: "d", Description: "fast", Status: engine.StatusPass, Duration: time.Millisecond},
		{Document: "d", Description: "slow", Status: engine.StatusPass, Duration: 1500 * time.Millisecond},
	})

	var b strings.Builder

	r := report.NewRenderer(report.WithColor(false))
	require.NoError(t, r.Render(&b, rep))

	out := b.String()

	// Only durations worth reading are shown.
	assert.Contains(t, out, "[PASS] slow (1.5s)")
	assert.Contains(t, out, "[PASS] fast\n")
}

func TestRenderer_Render_Empty(t *testing.T) {
	t.Parallel()

	var b strings.Builder

	r := report.NewRenderer(report.WithColor(false))
	require.NoError(t, r.Render(&b, report.New(nil)))

	assert.Equal(t, "0 passed, 0 failed\n", b.String())
}
