package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
)

// ErrorHandler renders CLI errors with fang's styling. Failed checks already
// produced a report, so [ErrChecksFailed] gets the summary line only, while
// usage errors point at --help.
func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	if errors.Is(err, ErrChecksFailed) {
		printLine(w, styles.ErrorText.UnsetWidth().Render(err.Error()))
		printLine(w, "")

		return
	}

	printLine(w, styles.ErrorHeader.String())
	printLine(w, lipgloss.NewStyle().MarginLeft(2).Render(err.Error()))
	printLine(w, "")

	if isUsageError(err) {
		printLine(w, lipgloss.JoinHorizontal(
			lipgloss.Left,
			styles.ErrorText.UnsetWidth().Render("Try"),
			styles.Program.Flag.Render("--help"),
			styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render("for usage."),
		))
		printLine(w, "")
	}
}

// isUsageError matches the message prefixes cobra and pflag use for bad
// invocations, since neither exposes a typed error for them.
func isUsageError(err error) bool {
	msg := err.Error()

	prefixes := []string{
		"flag needs an argument:",
		"unknown flag:",
		"unknown shorthand flag:",
		"unknown command",
		"invalid argument",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}

	return false
}

func printLine(w io.Writer, s string) {
	_, err := fmt.Fprintln(w, s)
	if err != nil {
		panic(err)
	}
}
