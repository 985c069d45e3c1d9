package expr_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/checkit/pkg/expr"
)

func TestEnvironment_Compile(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		facts      map[string]string
		expression string
		want       bool
		wantErr    bool
	}{
		"fact comparison": {
			expression: `facts["EDITION"] == "2021"`,
			facts:      map[string]string{"EDITION": "2021"},
			want:       true,
		},
		"fact mismatch": {
			expression: `facts["EDITION"] == "2021"`,
			facts:      map[string]string{"EDITION": "2018"},
			want:       false,
		},
		"membership": {
			expression: `"NAME" in facts`,
			facts:      map[string]string{"NAME": "demo"},
			want:       true,
		},
		"strings extension": {
			expression: `facts["NAME"].startsWith("check")`,
			facts:      map[string]string{"NAME": "checklints"},
			want:       true,
		},
		"pathBase": {
			expression: `pathBase(facts["ENTRYPOINT"]) == "main.rs"`,
			facts:      map[string]string{"ENTRYPOINT": "src/main.rs"},
			want:       true,
		},
		"pathExt": {
			expression: `pathExt(facts["ENTRYPOINT"]) == ".rs"`,
			facts:      map[string]string{"ENTRYPOINT": "src/main.rs"},
			want:       true,
		},
		"syntax error": {
			expression: `facts[`,
			wantErr:    true,
		},
		"unknown variable": {
			expression: `unknown == 1`,
			wantErr:    true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			env, err := expr.NewFactsEnvironment(".")
			require.NoError(t, err)

			program, err := env.Compile(tc.expression)
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)

			out, _, err := program.Eval(map[string]any{"facts": tc.facts})
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Value())
		})
	}
}

func TestEnvironment_QueryPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cargo := filepath.Join(dir, "Cargo.toml")
	require.NoError(t, os.WriteFile(cargo, []byte("[package]\nedition = \"2021\"\n"), 0o600))

	env, err := expr.NewFactsEnvironment(".")
	require.NoError(t, err)

	program, err := env.Compile(`queryPath("` + cargo + `", "$.package.edition") == "2021"`)
	require.NoError(t, err)

	out, _, err := program.Eval(map[string]any{"facts": map[string]string{}})
	require.NoError(t, err)
	assert.Equal(t, true, out.Value())
}

func TestEnvironment_QueryPath_RelativeToRoot(t *testing.T) {
	t.Parallel()

	// Relative paths resolve against the environment's root, not the
	// process working directory.
	dir := t.TempDir()
	cargo := filepath.Join(dir, "Cargo.toml")
	require.NoError(t, os.WriteFile(cargo, []byte("[package]\nedition = \"2021\"\n"), 0o600))

	env, err := expr.NewFactsEnvironment(dir)
	require.NoError(t, err)

	program, err := env.Compile(`queryPath("Cargo.toml", "$.package.edition") == "2021"`)
	require.NoError(t, err)

	out, _, err := program.Eval(map[string]any{"facts": map[string]string{}})
	require.NoError(t, err)
	assert.Equal(t, true, out.Value())
}

func TestEnvironment_QueryPath_Missing(t *testing.T) {
	t.Parallel()

	env, err := expr.NewFactsEnvironment(t.TempDir())
	require.NoError(t, err)

	// Unreadable files yield null so conditions can inspect optional documents.
	program, err := env.Compile(`queryPath("does-not-exist.toml", "$.a") == null`)
	require.NoError(t, err)

	out, _, err := program.Eval(map[string]any{"facts": map[string]string{}})
	require.NoError(t, err)
	assert.Equal(t, true, out.Value())
}
