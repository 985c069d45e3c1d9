package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/checkit/pkg/config"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c := config.New()

	assert.Equal(t, "30s", c.Timeout)
	assert.True(t, c.CacheRead())
	assert.True(t, c.CacheWrite())
	assert.Zero(t, c.Jobs)
	assert.False(t, c.FailFast)
}

func TestLoadBytes(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		check    func(t *testing.T, c *config.Config)
		document string
		errMsg   string
		wantErr  bool
	}{
		"minimal": {
			document: "timeout: 10s\n",
			check: func(t *testing.T, c *config.Config) {
				t.Helper()
				assert.Equal(t, "10s", c.Timeout)
			},
		},
		"defaults fill unset fields": {
			document: "jobs: 4\n",
			check: func(t *testing.T, c *config.Config) {
				t.Helper()
				assert.Equal(t, 4, c.Jobs)
				assert.Equal(t, "30s", c.Timeout)
			},
		},
		"cache toggles": {
			document: "cache:\n  read: false\n  write: true\n",
			check: func(t *testing.T, c *config.Config) {
				t.Helper()
				assert.False(t, c.CacheRead())
				assert.True(t, c.CacheWrite())
			},
		},
		"checklists and remotes": {
			document: "checklists:\n  - extra/checks.yaml\nremotes:\n  - https://example.com/a.yaml::0000000000000000000000000000000000000000000000000000000000000000\n",
			check: func(t *testing.T, c *config.Config) {
				t.Helper()
				assert.Equal(t, []string{"extra/checks.yaml"}, c.Checklists)
				require.Len(t, c.Remotes, 1)
			},
		},
		"fail fast": {
			document: "failFast: true\n",
			check: func(t *testing.T, c *config.Config) {
				t.Helper()
				assert.True(t, c.FailFast)
			},
		},
		"unknown field": {
			document: "timeouts: 10s\n",
			wantErr:  true,
			errMsg:   "additional",
		},
		"wrong type": {
			document: "jobs: lots\n",
			wantErr:  true,
		},
		"negative jobs": {
			document: "jobs: -1\n",
			wantErr:  true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c, err := config.LoadBytes([]byte(tc.document))
			if tc.wantErr {
				require.Error(t, err)

				if tc.errMsg != "" {
					assert.Contains(t, err.Error(), tc.errMsg)
				}

				return
			}

			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}

func TestConfig_GetTimeout(t *testing.T) {
	t.Parallel()

	c := config.New()
	c.Timeout = "2m"

	d, err := c.GetTimeout()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	c.Timeout = "soon"

	_, err = c.GetTimeout()
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 5s\n"), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "5s", c.Timeout)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestWriteIfNotExists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, config.WriteIfNotExists(path, []byte("timeout: 5s\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "timeout: 5s\n", string(data))

	// An existing file is left alone.
	require.NoError(t, config.WriteIfNotExists(path, []byte("timeout: 9s\n")))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "timeout: 5s\n", string(data))
}

func TestWriteDefault(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, config.WriteDefault(path))

	// The written defaults are a valid configuration once uncommented, and
	// a valid (empty) one as-is.
	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "30s", c.Timeout)
}
