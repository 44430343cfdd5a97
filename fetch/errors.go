package fetch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnreachable matches every *UnreachableError.
	ErrUnreachable = errors.New("fetch: no candidate endpoint reachable")
	// ErrCanceled is returned when the caller's context ends before a candidate
	// succeeds.
	ErrCanceled = errors.New("fetch: canceled")
	// ErrNoEndpoints is returned by NewClient for an empty candidate list.
	ErrNoEndpoints = errors.New("fetch: no candidate endpoints configured")
	// ErrDecode marks bodies that are not a JSON object.
	ErrDecode = errors.New("fetch: undecodable response")
)

// UnreachableError reports that every candidate failed.
type UnreachableError struct {
	CallID   string
	Attempts []Attempt
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%v after %d attempts [%s]", ErrUnreachable, len(e.Attempts), strings.Join(Summaries(e.Attempts), ", "))
}

// Is matches ErrUnreachable.
func (e *UnreachableError) Is(target error) bool {
	return target == ErrUnreachable
}

// TransportError is a failure below HTTP status handling.
type TransportError struct {
	Kind Outcome
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
