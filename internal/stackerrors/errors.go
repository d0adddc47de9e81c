// Package stackerrors defines the typed error kinds surfaced by the stack
// resolution engine and their HTTP status mapping, following the
// aggregate-errors-with-slice pattern used throughout this codebase for
// validation failures.
package stackerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Kind classifies an Error for propagation and retry purposes.
type Kind string

const (
	// KindNotFound means the named document does not exist.
	KindNotFound Kind = "not_found"
	// KindValidation means the request body was malformed.
	KindValidation Kind = "validation_error"
	// KindResolution means constraint solving failed. Reason is one of a
	// closed set of human-readable strings.
	KindResolution Kind = "resolution_error"
	// KindConflict means a concurrent write lost a race on the same
	// document.
	KindConflict Kind = "conflict_error"
	// KindTransient means the document store or message channel was
	// unavailable; the caller may retry.
	KindTransient Kind = "transient_error"
)

// Closed set of resolution failure reasons the constraint solver reports.
const (
	ReasonNoTarget        = "unsatisfied service with no infrastructure target"
	ReasonUnresolvedDep   = "unsatisfied service with an unresolved service dependency"
	ReasonZoneConflict    = "services that need to share zones but cannot"
	ReasonDependencyCycle = "service dependency cycle"
)

// Error is the single error type returned across the engine's package
// boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a KindNotFound error for the named (type,name) document.
func NotFound(docType, name string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", docType, name)}
}

// Validation builds a KindValidation error, aggregating one or more reasons.
func Validation(reasons ...string) error {
	return &Error{Kind: KindValidation, Message: "validation failed:\n  - " + strings.Join(reasons, "\n  - ")}
}

// Resolution builds a KindResolution error carrying reason, which must be
// one of the Reason* constants above.
func Resolution(reason string) error {
	return &Error{Kind: KindResolution, Message: reason}
}

// Conflict builds a KindConflict error for a lost optimistic-CAS race.
func Conflict(name string) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf("concurrent write conflict on %q", name)}
}

// Transient builds a KindTransient error wrapping the given underlying
// errors, combined with multierror when more than one is passed.
func Transient(attempts ...error) error {
	var merr *multierror.Error
	for _, a := range attempts {
		if a != nil {
			merr = multierror.Append(merr, a)
		}
	}
	var err error
	if merr != nil {
		err = merr.ErrorOrNil()
	}
	return &Error{Kind: KindTransient, Message: "store or channel unavailable", Err: err}
}

// Is reports whether err is a stackerrors.Error of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// Reason extracts the Message of a KindResolution error, or "" if err is
// not a resolution error.
func Reason(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Kind == KindResolution {
		return se.Message
	}
	return ""
}

// HTTPStatus maps err to the HTTP status code it should surface as, per
// the propagation table: NotFound->404, Validation/Resolution->422,
// Conflict->409 (after the serialized path's single retry is exhausted),
// Transient->503.
func HTTPStatus(err error) int {
	var se *Error
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}
	switch se.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindResolution:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
