// Package failure defines the error taxonomy shared by the analysis pipeline.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the category of a pipeline error.
type Kind string

const (
	// InvalidInput means the note content is empty or unusable. The note is skipped.
	InvalidInput Kind = "invalid_input"
	// ProviderUnavailable covers embedding provider network, auth, rate-limit, and timeout errors.
	ProviderUnavailable Kind = "provider_unavailable"
	// IndexUnavailable means the candidate index could not be built or queried. Fatal for a run.
	IndexUnavailable Kind = "index_unavailable"
	// StorageUnavailable means the graph store could not be read or written. Fatal for a run.
	StorageUnavailable Kind = "storage_unavailable"
	// RunAlreadyInProgress rejects a trigger while another run holds the workspace lock.
	RunAlreadyInProgress Kind = "run_already_in_progress"
	// NotFound means a note, run, or workspace does not exist.
	NotFound Kind = "not_found"
)

// Error is a categorized error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return string(e.Kind)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, failure.ErrNotFound) works
// regardless of Op and wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput         = &Error{Kind: InvalidInput}
	ErrProviderUnavailable  = &Error{Kind: ProviderUnavailable}
	ErrIndexUnavailable     = &Error{Kind: IndexUnavailable}
	ErrStorageUnavailable   = &Error{Kind: StorageUnavailable}
	ErrRunAlreadyInProgress = &Error{Kind: RunAlreadyInProgress}
	ErrNotFound             = &Error{Kind: NotFound}
)

// New returns a categorized error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns a categorized error with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
