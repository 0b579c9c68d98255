// Package werrors defines the error taxonomy shared by the workflow engine,
// validator, and node executors. Every engine failure is classified into one
// of these kinds so subscribers and transports can report a stable
// error_stage without inspecting message text.
package werrors

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error
type Kind string

const (
	KindValidation       Kind = "validation"
	KindPreparation      Kind = "preparation"
	KindRuntime          Kind = "runtime"
	KindResultProcessing Kind = "result_processing"
	KindResourceLimit    Kind = "resource_limit"
	KindCancelled        Kind = "cancelled"
	KindTimeout          Kind = "timeout"
	KindRetriever        Kind = "retriever"
	KindTemplate         Kind = "template"
)

// Stage returns the error_stage reported on EXECUTION_FAILED events
func (k Kind) Stage() string {
	switch k {
	case KindValidation, KindPreparation, KindTemplate:
		return "preparation"
	case KindRuntime, KindResourceLimit, KindCancelled, KindTimeout, KindRetriever:
		return "runtime"
	case KindResultProcessing:
		return "result_processing"
	default:
		return "unknown"
	}
}

// Error is a classified workflow error. NodeID is set when the failure is
// attributable to a single node.
type Error struct {
	Kind   Kind
	NodeID string
	Err    error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %v", e.Kind, e.NodeID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error, preserving the original chain
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WrapNode classifies an error and attributes it to a node
func WrapNode(kind Kind, nodeID string, err error) *Error {
	return &Error{Kind: kind, NodeID: nodeID, Err: err}
}

// KindOf returns the kind of err, or KindRuntime for unclassified errors
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindRuntime
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind == kind
	}
	return false
}

// ValidationError carries the findings that rejected a graph. It wraps the
// first fatal message so plain error formatting stays readable.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", e.Messages[0])
}

// ResourceLimitExceeded signals that a declared limit was reached
func ResourceLimitExceeded(nodeID, limit string, max int) *Error {
	return WrapNode(KindResourceLimit, nodeID, fmt.Errorf("%s limit exceeded (max %d)", limit, max))
}
