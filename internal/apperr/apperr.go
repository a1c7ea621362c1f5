// Package apperr provides the error taxonomy shared by the capture pipeline,
// the selection navigator and the caption/query service. Components return
// these typed errors; callers branch on Kind instead of matching strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindCapabilityUnavailable means the map view is not initialized or was torn down.
	KindCapabilityUnavailable
	// KindUnrecognizedCaptureShape means a screenshot result matched none of the known shapes.
	KindUnrecognizedCaptureShape
	// KindNetworkFailure covers upload, caption, search and geosearch request failures.
	KindNetworkFailure
	// KindAnimationFailure means a camera goTo call failed.
	KindAnimationFailure
	// KindOverlayCreationFailure means a picture marker could not be created.
	KindOverlayCreationFailure
	// KindBusy means another orchestrator operation is already running.
	KindBusy
	// KindValidation indicates invalid input data.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindCapabilityUnavailable:
		return "capability_unavailable"
	case KindUnrecognizedCaptureShape:
		return "unrecognized_capture_shape"
	case KindNetworkFailure:
		return "network_failure"
	case KindAnimationFailure:
		return "animation_failure"
	case KindOverlayCreationFailure:
		return "overlay_creation_failure"
	case KindBusy:
		return "busy"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Op      string // Operation that failed (optional)
	Message string
	Err     error // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to a status code for the caption/query service.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindUnrecognizedCaptureShape:
		return http.StatusBadRequest
	case KindNetworkFailure:
		return http.StatusBadGateway
	case KindBusy:
		return http.StatusConflict
	case KindCapabilityUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an error of the given kind around err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// CapabilityUnavailable is returned by every map view call once the session is detached.
func CapabilityUnavailable(op string) *Error {
	return New(KindCapabilityUnavailable, op, "map view is not available")
}

// UnrecognizedCaptureShape reports a screenshot value that could not be decoded.
func UnrecognizedCaptureShape(shape string) *Error {
	return New(KindUnrecognizedCaptureShape, "normalize", fmt.Sprintf("unrecognized capture shape %s", shape))
}

// Network wraps a transport or status failure from an external service.
func Network(op string, err error) *Error {
	return Wrap(KindNetworkFailure, op, err)
}

// Animation wraps a failed goTo call.
func Animation(op string, err error) *Error {
	return Wrap(KindAnimationFailure, op, err)
}

// OverlayCreation wraps a failed picture-marker construction.
func OverlayCreation(err error) *Error {
	return Wrap(KindOverlayCreationFailure, "overlay", err)
}

// Busy reports an overlapping orchestrator trigger.
func Busy(op, running string) *Error {
	return New(KindBusy, op, fmt.Sprintf("%s is already running", running))
}

// Validation reports invalid input.
func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
