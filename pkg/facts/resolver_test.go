package facts_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/checkit/pkg/cache"
	"github.com/macropower/checkit/pkg/facts"
	"github.com/macropower/checkit/pkg/ruleset"
)

// spyStore records cache traffic so tests can assert on it.
type spyStore struct {
	inner *cache.Memory
	gets  int
	puts  int
}

func newSpyStore() *spyStore {
	return &spyStore{inner: cache.NewMemory()}
}

func (s *spyStore) Get(key, fingerprint string) (string, bool) {
	s.gets++

	return s.inner.Get(key, fingerprint)
}

func (s *spyStore) Put(key, fingerprint, value string) error {
	s.puts++

	return s.inner.Put(key, fingerprint, value)
}

func (s *spyStore) Clear() error { return s.inner.Clear() }
func (s *spyStore) Close() error { return s.inner.Close() }

func TestResolver_Literal(t *testing.T) {
	t.Parallel()

	store := newSpyStore()
	r := facts.NewResolver(t.TempDir(), store)

	res, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:   "YEAR",
		Type:  ruleset.FactLiteral,
		Value: "2026",
	})
	require.NoError(t, err)
	assert.Equal(t, "2026", res.Value)
	assert.False(t, res.Cached)

	// Literal facts never touch the cache.
	assert.Zero(t, store.gets)
	assert.Zero(t, store.puts)
}

func TestResolver_EvalCommand(t *testing.T) {
	t.Parallel()

	r := facts.NewResolver(t.TempDir(), cache.NewMemory())

	res, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:     "GREETING",
		Type:    ruleset.FactEvalCommand,
		Command: "echo hello world",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Value)
	assert.False(t, res.Cached)
}

func TestResolver_EvalCommand_MissingExecutable(t *testing.T) {
	t.Parallel()

	r := facts.NewResolver(t.TempDir(), cache.NewMemory())

	_, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:     "BROKEN",
		Type:    ruleset.FactEvalCommand,
		Command: "definitely-not-a-real-binary --version",
	})
	require.Error(t, err)

	var factErr *facts.Error
	require.ErrorAs(t, err, &factErr)
	assert.Equal(t, facts.KindCommandFailed, factErr.Kind)
	assert.Contains(t, err.Error(), "definitely-not-a-real-binary")
}

func TestResolver_EvalCommand_CacheRoundTrip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := cache.NewMemory()

	first := facts.NewResolver(root, store)
	fact := &ruleset.Fact{
		Key:     "GREETING",
		Type:    ruleset.FactEvalCommand,
		Command: "echo hello",
	}

	res, err := first.Resolve(t.Context(), fact)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Value)
	assert.False(t, res.Cached)

	// A second run with the same store hits the cache.
	second := facts.NewResolver(root, store)

	res, err = second.Resolve(t.Context(), fact)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Value)
	assert.True(t, res.Cached)

	// A changed command line invalidates the entry.
	third := facts.NewResolver(root, store)

	res, err = third.Resolve(t.Context(), &ruleset.Fact{
		Key:     "GREETING",
		Type:    ruleset.FactEvalCommand,
		Command: "echo goodbye",
	})
	require.NoError(t, err)
	assert.Equal(t, "goodbye", res.Value)
	assert.False(t, res.Cached)
}

func TestResolver_Memoization(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	marker := filepath.Join(root, "ran")

	r := facts.NewResolver(root, cache.NewMemory())
	fact := &ruleset.Fact{
		Key:     "ONCE",
		Type:    ruleset.FactEvalCommand,
		Command: "touch " + marker,
	}

	_, err := r.Resolve(t.Context(), fact)
	require.NoError(t, err)
	require.FileExists(t, marker)

	require.NoError(t, os.Remove(marker))

	// The second resolve within the same run is memoized.
	_, err = r.Resolve(t.Context(), fact)
	require.NoError(t, err)
	assert.NoFileExists(t, marker)
}

func TestResolver_FileContent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "VERSION"), []byte("1.2.3\n"), 0o600))

	store := cache.NewMemory()
	r := facts.NewResolver(root, store)

	res, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:  "VERSION",
		Type: ruleset.FactFileContent,
		Path: "VERSION",
	})
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", res.Value)

	// Editing the file changes the fingerprint, so a fresh resolver
	// recomputes instead of hitting the stale entry.
	require.NoError(t, os.WriteFile(filepath.Join(root, "VERSION"), []byte("2.0.0\n"), 0o600))

	fresh := facts.NewResolver(root, store)

	res, err = fresh.Resolve(t.Context(), &ruleset.Fact{
		Key:  "VERSION",
		Type: ruleset.FactFileContent,
		Path: "VERSION",
	})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0\n", res.Value)
	assert.False(t, res.Cached)
}

func TestResolver_FileContent_Missing(t *testing.T) {
	t.Parallel()

	r := facts.NewResolver(t.TempDir(), cache.NewMemory())

	_, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:  "VERSION",
		Type: ruleset.FactFileContent,
		Path: "VERSION",
	})

	var factErr *facts.Error
	require.ErrorAs(t, err, &factErr)
	assert.Equal(t, facts.KindPathNotFound, factErr.Kind)
}

func TestResolver_PathQuery(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cargo := "[package]\nname = \"checklints\"\nedition = \"2021\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte(cargo), 0o600))

	r := facts.NewResolver(root, cache.NewMemory())

	res, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:   "PROJECT_NAME",
		Type:  ruleset.FactPathQuery,
		File:  "Cargo.toml",
		Query: "$.package.name",
	})
	require.NoError(t, err)
	assert.Equal(t, "checklints", res.Value)
}

func TestResolver_PathQuery_MissingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cargo.toml"), []byte("[package]\n"), 0o600))

	r := facts.NewResolver(root, cache.NewMemory())

	_, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:   "PROJECT_NAME",
		Type:  ruleset.FactPathQuery,
		File:  "Cargo.toml",
		Query: "$.package.name",
	})

	var factErr *facts.Error
	require.ErrorAs(t, err, &factErr)
	assert.Equal(t, facts.KindPathNotFound, factErr.Kind)
}

func TestResolver_EnvVar(t *testing.T) {
	t.Setenv("CHECKIT_TEST_PROJECT", "demo")

	r := facts.NewResolver(t.TempDir(), cache.NewMemory())

	res, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:  "PROJECT",
		Type: ruleset.FactEnvVar,
		Name: "CHECKIT_TEST_PROJECT",
	})
	require.NoError(t, err)
	assert.Equal(t, "demo", res.Value)
}

func TestResolver_EnvVar_Unset(t *testing.T) {
	t.Parallel()

	r := facts.NewResolver(t.TempDir(), cache.NewMemory())

	_, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:  "PROJECT",
		Type: ruleset.FactEnvVar,
		Name: "CHECKIT_TEST_DEFINITELY_UNSET",
	})

	var factErr *facts.Error
	require.ErrorAs(t, err, &factErr)
	assert.Equal(t, facts.KindUnset, factErr.Kind)
}

func TestResolver_Requirements(t *testing.T) {
	t.Parallel()

	r := facts.NewResolver(t.TempDir(), cache.NewMemory())

	_, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:     "GREETING",
		Type:    ruleset.FactEvalCommand,
		Command: "echo hi",
		Requires: []*ruleset.Requirement{
			{Type: ruleset.RequirementCommand, Command: "definitely-not-a-real-binary"},
		},
	})

	var factErr *facts.Error
	require.ErrorAs(t, err, &factErr)
	assert.Equal(t, facts.KindCommandFailed, factErr.Kind)
}

func TestResolver_CacheDisabled(t *testing.T) {
	t.Parallel()

	store := newSpyStore()
	r := facts.NewResolver(t.TempDir(), store,
		facts.WithCacheRead(false),
		facts.WithCacheWrite(false),
	)

	_, err := r.Resolve(t.Context(), &ruleset.Fact{
		Key:     "GREETING",
		Type:    ruleset.FactEvalCommand,
		Command: "echo hi",
	})
	require.NoError(t, err)

	assert.Zero(t, store.gets)
	assert.Zero(t, store.puts)
}
