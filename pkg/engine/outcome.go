package engine

import "time"

// Status is the result class of one check or condition evaluation.
type Status int

const (
	StatusPass Status = iota
	StatusFail
	StatusSkip
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusFail:
		return "FAIL"
	case StatusSkip:
		return "SKIP"
	case StatusError:
		return "ERROR"
	}

	return "UNKNOWN"
}

// Outcome is one diagnostic produced by a run. Outcomes appear in
// declaration order within their document; a check gated out by a false
// document condition produces no outcome at all.
type Outcome struct {
	// Document is the display name of the owning rule document.
	Document string
	// Description is the check or condition display text.
	Description string
	// Reason is the primary failure or skip reason. Empty for passes.
	Reason string
	// Detail is secondary context, such as a unified diff excerpt.
	Detail string
	// Duration is the wall time spent on this check.
	Duration time.Duration
	// Status classifies the outcome.
	Status Status
	// Cached reports that every fact the check consumed was a cache hit.
	Cached bool
}
