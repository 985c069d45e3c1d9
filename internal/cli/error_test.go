package cli

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/fang"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandler_ChecksFailed(t *testing.T) {
	t.Parallel()

	var buf strings.Builder

	err := fmt.Errorf("%w: 2 failed, 1 errors", ErrChecksFailed)
	ErrorHandler(&buf, fang.Styles{}, err)

	// The report already detailed the failures, so only the summary repeats.
	assert.Contains(t, buf.String(), "2 failed, 1 errors")
	assert.NotContains(t, buf.String(), "--help")
}

func TestErrorHandler_UsageError(t *testing.T) {
	t.Parallel()

	var buf strings.Builder

	ErrorHandler(&buf, fang.Styles{}, errors.New("unknown flag: --frobnicate"))

	assert.Contains(t, buf.String(), "unknown flag: --frobnicate")
	assert.Contains(t, buf.String(), "--help")
}

func TestIsUsageError(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		err  error
		want bool
	}{
		"unknown flag": {
			err:  errors.New(`unknown flag: --frobnicate`),
			want: true,
		},
		"unknown command": {
			err:  errors.New(`unknown command "frobnicate" for "checkit"`),
			want: true,
		},
		"missing flag argument": {
			err:  errors.New("flag needs an argument: --timeout"),
			want: true,
		},
		"runtime error": {
			err:  errors.New("stat repository path: no such file or directory"),
			want: false,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, isUsageError(tc.err))
		})
	}
}
