// Package report aggregates engine outcomes and renders the diagnostic
// report.
package report

import "github.com/macropower/checkit/pkg/engine"

// Report is the aggregate result of one run.
type Report struct {
	outcomes []engine.Outcome
}

// New creates a [Report] over outcomes, which are expected in document and
// declaration order.
func New(outcomes []engine.Outcome) *Report {
	return &Report{outcomes: outcomes}
}

// Outcomes returns the outcomes in order.
func (r *Report) Outcomes() []engine.Outcome {
	return r.outcomes
}

// Counts returns the number of passed, failed, skipped and errored outcomes.
//
//nolint:revive // Function-result-limit, fine for counters.
func (r *Report) Counts() (int, int, int, int) {
	var passed, failed, skipped, errored int

	for _, o := range r.outcomes {
		switch o.Status {
		case engine.StatusPass:
			passed++
		case engine.StatusFail:
			failed++
		case engine.StatusSkip:
			skipped++
		case engine.StatusError:
			errored++
		}
	}

	return passed, failed, skipped, errored
}

// Failed reports whether any outcome failed or errored.
func (r *Report) Failed() bool {
	_, failed, _, errored := r.Counts()

	return failed > 0 || errored > 0
}

// ExitCode returns 0 when no outcome failed or errored, 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Failed() {
		return 1
	}

	return 0
}
