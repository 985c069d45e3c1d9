package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/macropower/checkit/pkg/engine"
)

const indent = "       "

// RendererOpt configures a [Renderer].
type RendererOpt func(*Renderer)

// WithColor toggles ANSI styling. Disable it for non-TTY output.
func WithColor(enabled bool) RendererOpt {
	return func(r *Renderer) {
		r.color = enabled
	}
}

// Renderer writes a [Report] as a human-readable diagnostic listing:
// one section per rule document, one status line per outcome, reasons and
// diff excerpts indented beneath failures.
type Renderer struct {
	headerStyle lipgloss.Style
	passStyle   lipgloss.Style
	failStyle   lipgloss.Style
	skipStyle   lipgloss.Style
	errorStyle  lipgloss.Style
	reasonStyle lipgloss.Style
	detailStyle lipgloss.Style
	cachedStyle lipgloss.Style
	color       bool
}

// NewRenderer creates a [Renderer]. Styling is on by default.
func NewRenderer(opts ...RendererOpt) *Renderer {
	r := &Renderer{
		color:       true,
		headerStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		passStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		failStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		skipStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		errorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		reasonStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		detailStyle: lipgloss.NewStyle().Faint(true),
		cachedStyle: lipgloss.NewStyle().Faint(true),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Render writes the report. Output is deterministic for a fixed report.
func (r *Renderer) Render(w io.Writer, rep *Report) error {
	var b strings.Builder

	document := ""

	for _, o := range rep.Outcomes() {
		if o.Document != document {
			if document != "" {
				b.WriteString("\n")
			}

			document = o.Document
			b.WriteString(r.style(r.headerStyle, fmt.Sprintf("> Checklist '%s'", document)))
			b.WriteString("\n")
		}

		r.renderOutcome(&b, o)
	}

	if document != "" {
		b.WriteString("\n")
	}

	b.WriteString(r.summary(rep))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

func (r *Renderer) renderOutcome(b *strings.Builder, o engine.Outcome) {
	b.WriteString(r.statusLabel(o.Status))
	b.WriteString(" ")
	b.WriteString(o.Description)

	if o.Cached {
		b.WriteString(" ")
		b.WriteString(r.style(r.cachedStyle, "(cached)"))
	}

	if o.Duration >= 10*time.Millisecond {
		b.WriteString(" ")
		b.WriteString(r.style(r.detailStyle, fmt.Sprintf("(%s)", o.Duration.Round(time.Millisecond))))
	}

	b.WriteString("\n")

	if o.Reason != "" && o.Status != engine.StatusPass {
		b.WriteString(indent)
		b.WriteString(r.style(r.reasonStyle, o.Reason))
		b.WriteString("\n")
	}

	if o.Detail != "" {
		for line := range strings.Lines(strings.TrimRight(o.Detail, "\n")) {
			b.WriteString(indent)
			b.WriteString(r.style(r.detailStyle, strings.TrimRight(line, "\n")))
			b.WriteString("\n")
		}
	}
}

func (r *Renderer) statusLabel(s engine.Status) string {
	label := fmt.Sprintf("[%s]", s)

	switch s {
	case engine.StatusPass:
		return r.style(r.passStyle, label)
	case engine.StatusFail:
		return r.style(r.failStyle, label)
	case engine.StatusSkip:
		return r.style(r.skipStyle, label)
	case engine.StatusError:
		return r.style(r.errorStyle, label)
	}

	return label
}

func (r *Renderer) summary(rep *Report) string {
	passed, failed, skipped, errored := rep.Counts()

	parts := []string{
		fmt.Sprintf("%d passed", passed),
		fmt.Sprintf("%d failed", failed),
	}
	if skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", skipped))
	}
	if errored > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", errored))
	}

	summary := strings.Join(parts, ", ")
	if rep.Failed() {
		return r.style(r.failStyle, summary)
	}

	return r.style(r.passStyle, summary)
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}

	return s.Render(text)
}
