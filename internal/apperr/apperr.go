// Package apperr defines the failure taxonomy shared by queries and sessions.
package apperr

import (
	"errors"
)

// Sentinel errors, one per failure kind. Wrap them with fmt.Errorf("%w: ...").
var (
	// ErrParse indicates a symbol graph could not be built from the input.
	ErrParse = errors.New("parse error")

	// ErrInvalidQuery indicates an empty term or an unresolvable file or type name.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrBackendNotFound indicates no analyzer installation could be discovered.
	ErrBackendNotFound = errors.New("analyzer backend not found")

	// ErrBinaryMissing indicates an installation exists but its entry point does not.
	ErrBinaryMissing = errors.New("analyzer binary missing")

	// ErrProcessLaunchFailed indicates the operating system refused to start the analyzer.
	ErrProcessLaunchFailed = errors.New("analyzer process launch failed")

	// ErrSessionTerminated indicates the analyzer went away while in use.
	ErrSessionTerminated = errors.New("analyzer session terminated")
)

// Kind names a failure class at the public boundary.
type Kind string

const (
	KindParse               Kind = "ParseError"
	KindInvalidQuery        Kind = "InvalidQuery"
	KindBackendNotFound     Kind = "BackendNotFound"
	KindBinaryMissing       Kind = "BinaryMissing"
	KindProcessLaunchFailed Kind = "ProcessLaunchFailed"
	KindSessionTerminated   Kind = "SessionTerminated"
	KindInternal            Kind = "InternalError"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrParse, KindParse},
	{ErrInvalidQuery, KindInvalidQuery},
	{ErrBackendNotFound, KindBackendNotFound},
	{ErrBinaryMissing, KindBinaryMissing},
	{ErrProcessLaunchFailed, KindProcessLaunchFailed},
	{ErrSessionTerminated, KindSessionTerminated},
}

// KindOf classifies err. Errors outside the taxonomy are KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Retryable reports whether a fresh attempt may succeed without caller changes.
func Retryable(err error) bool {
	return errors.Is(err, ErrSessionTerminated)
}
