package facts

import "fmt"

// Kind classifies fact resolution failures.
type Kind string

const (
	// KindCommandFailed covers missing executables and non-zero exits.
	KindCommandFailed Kind = "command-failed"
	// KindPathNotFound covers missing files and unmatched query paths.
	KindPathNotFound Kind = "path-not-found"
	// KindIO covers unreadable files.
	KindIO Kind = "io"
	// KindTimeout covers commands exceeding the configured timeout.
	KindTimeout Kind = "timeout"
	// KindUnset covers unset environment variables.
	KindUnset Kind = "unset"
)

// Error is a fact resolution failure. It is localized: the engine fails the
// checks that depend on the fact and continues with the rest of the run.
type Error struct {
	Err  error
	Key  string
	Kind Kind
}

func (e *Error) Error() string {
	return fmt.Sprintf("fact %q: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(key string, kind Kind, err error) *Error {
	return &Error{Key: key, Kind: kind, Err: err}
}
