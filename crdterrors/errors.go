// Package crdterrors defines the domain error kinds raised by the
// annotation log and track-changes engine, following the same
// const-error-with-Is shape juju/errors uses for its built-in kinds
// (NotFound, NotValid, ...), extended here with kinds spec.md §7 calls
// for that have no juju/errors equivalent.
package crdterrors

import (
	"fmt"

	"github.com/juju/errors"
)

// Kind is a sentinel error usable with the standard errors.Is, and with
// juju/errors.Is for parity with the rest of the teacher's stack.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// InvalidRange is returned synchronously to the caller of addComment
	// when start/end indices are out of bounds or inverted.
	InvalidRange Kind = "invalid range"

	// MissingDependency marks a Removal/Update whose dependent_on id has
	// no Addition in the log once causal delivery has completed (I1).
	// The record is dropped; this is never fatal.
	MissingDependency Kind = "missing dependency"

	// StaleOp marks a Removal/Update strictly dominated by a later
	// Removal already held for the same annotation id. Dropped silently.
	StaleOp Kind = "stale operation"

	// MalformedRecord marks an unknown action/description combination,
	// a missing mandatory range field, or a decode failure. Fatal to the
	// current replica.
	MalformedRecord Kind = "malformed record"
)

// wrapped pairs a Kind with a causing error so both errors.Is(err, Kind)
// and errors.Cause(err) (juju/errors style) resolve sensibly.
type wrapped struct {
	kind  Kind
	cause error
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return string(w.kind)
	}
	return fmt.Sprintf("%s: %s", w.kind, w.cause)
}

func (w *wrapped) Unwrap() error { return w.cause }

func (w *wrapped) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == w.kind
}

// New returns an error of the given kind whose detail message is format
// applied to args.
func New(kind Kind, format string, args ...interface{}) error {
	return &wrapped{kind: kind, cause: errors.Errorf(format, args...)}
}

// Annotate wraps cause with kind, tracing through juju/errors so call-site
// file:line is retained for the fatal MalformedRecord path.
func Annotate(kind Kind, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &wrapped{kind: kind, cause: errors.Annotate(cause, message)}
}

// Is reports whether err (or anything it wraps) is of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if w, ok := err.(*wrapped); ok {
			if w.kind == kind {
				return true
			}
			err = w.cause
			continue
		}
		if k, ok := err.(Kind); ok {
			return k == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
