package scanner

import (
	"errors"
	"fmt"
)

// Sentinel classifications for per-host failures. Both map to a terminal
// "failed" status; anything unclassified becomes "error".
var (
	// ErrConnect covers refused, reset, timed out, and malformed-greeting
	// failures during connect.
	ErrConnect = errors.New("connection failed")

	// ErrAuth covers reply-level rejection of the anonymous login.
	ErrAuth = errors.New("anonymous login rejected")
)

// classified tags a cause with one of the sentinel classifications while
// keeping the cause in the chain.
type classified struct {
	kind  error
	cause error
}

func classify(kind, cause error) error {
	return &classified{kind: kind, cause: cause}
}

func (e *classified) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.cause)
}

func (e *classified) Unwrap() []error {
	return []error{e.kind, e.cause}
}
