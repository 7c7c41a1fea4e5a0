package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the API and CLI boundaries.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnverified       = errors.New("principal is not verified")
	ErrForbidden        = errors.New("forbidden")
	ErrCraftingDisabled = errors.New("manual incantation crafting is disabled")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// SynthesisError means the collaborator returned unusable output, possibly
// after the retry budget was spent.
type SynthesisError struct {
	Op       string // craft, describe, repair, adjust, resolve
	Attempts int
	Err      error
}

func (e *SynthesisError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("synthesis %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("synthesis %s failed: %v", e.Op, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// TransformError means a syntax-tree transform could not be applied.
type TransformError struct {
	Func   string
	Reason string
	Err    error
}

func (e *TransformError) Error() string {
	msg := "transform"
	if e.Func != "" {
		msg += " " + e.Func
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformError) Unwrap() error { return e.Err }

// ExecutionError means the synthesized artifact failed while being loaded or
// called. Trace is the human readable diagnostic stored on a mishap.
type ExecutionError struct {
	Func  string
	Trace string
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Func == "" {
		return fmt.Sprintf("execution failed: %v", e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Func, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NotFoundError means a lookup by id failed or failed an ownership check.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
