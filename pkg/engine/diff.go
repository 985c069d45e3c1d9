package engine

import (
	"strings"

	"github.com/aymanbagabas/go-udiff"
)

// diffStrings returns the first differing line of expected (1-based) and a
// unified diff of the two contents.
func diffStrings(expected, actual string) (int, string) {
	edits := udiff.Strings(expected, actual)
	if len(edits) == 0 {
		return 0, ""
	}

	line := 1 + strings.Count(expected[:edits[0].Start], "\n")

	return line, udiff.Unified("expected", "actual", expected, actual)
}
