// Package failure defines the error taxonomy shared by the transformation
// pipeline.
//
// Every failure that can end a transformation cycle carries a Kind. Kinds are
// themselves errors, so callers test for them with errors.Is:
//
//	if errors.Is(err, failure.MissingCredential) { ... }
//
// The overlay controller is the only component that turns a failure into a
// user-visible notice; it uses Message for that.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failed transformation cycle.
type Kind int

const (
	// Unknown is returned by KindOf for errors outside the taxonomy.
	Unknown Kind = iota
	// NoSelectionAvailable means there was no text to transform.
	NoSelectionAvailable
	// MissingCredential means the provider has no API key configured.
	MissingCredential
	// TransportFailure means the request never produced an HTTP response.
	TransportFailure
	// BackendRejected means the backend answered with a non-success status.
	BackendRejected
	// MalformedResponse means the response body did not have the expected shape.
	MalformedResponse
	// EmptyResult means the backend returned only whitespace.
	EmptyResult
	// MutationRejected means the host refused the write-back, or the target
	// field was no longer available.
	MutationRejected
)

var kindNames = map[Kind]string{
	Unknown:              "unknown",
	NoSelectionAvailable: "no_selection",
	MissingCredential:    "missing_credential",
	TransportFailure:     "transport_failure",
	BackendRejected:      "backend_rejected",
	MalformedResponse:    "malformed_response",
	EmptyResult:          "empty_result",
	MutationRejected:     "mutation_rejected",
}

// String returns the snake_case name used in logs and metrics.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error makes Kind usable as an errors.Is target.
func (k Kind) Error() string {
	return "failure: " + k.String()
}

// Error is a classified failure.
type Error struct {
	Kind Kind

	// Message is the human-readable text shown to the user.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// New creates a classified failure.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of err, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}

// UserMessage returns the text to show the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}
