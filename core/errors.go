package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrInstanceNotFound = errors.New("workflow instance not found")
	ErrBatchNotFound    = errors.New("batch job not found")

	// ErrNoActiveStage is returned when an operation requires an in-progress
	// stage execution and the instance has none.
	ErrNoActiveStage = errors.New("instance has no active stage execution")

	// ErrTerminalInstance is returned when an operation is attempted on a
	// completed, cancelled, or failed instance.
	ErrTerminalInstance = errors.New("instance is in a terminal status")

	// ErrEmptyBatch rejects batches with no target instances before they
	// ever reach processing.
	ErrEmptyBatch = errors.New("batch has no target instances")

	// ErrRetriesExhausted is returned by retry scheduling when the retry budget
	// is spent.
	ErrRetriesExhausted = errors.New("batch retry limit reached")
)

// InvalidTransitionError reports an operation that is not legal for the
// current status. These are client errors and are never retried.
type InvalidTransitionError struct {
	Op     string
	Status string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s in status %q", e.Op, e.Status)
}

// EscalationExhaustedError reports that an instance has reached the top of
// its escalation matrix. It surfaces as a needs-attention condition rather
// than auto-resolving anything.
type EscalationExhaustedError struct {
	InstanceID string
	Level      int
}

func (e *EscalationExhaustedError) Error() string {
	return fmt.Sprintf("escalation exhausted for instance %s at level %d", e.InstanceID, e.Level)
}

// ConflictError reports a stale optimistic-concurrency write. The caller
// must reload and retry the specific operation.
type ConflictError struct {
	ID      string
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting write for %s at version %d", e.ID, e.Version)
}

// ClassifiedError attaches an error class to an underlying error, for batch
// item reporting.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// WithClass wraps err with an explicit error class.
func WithClass(class ErrorClass, err error) error {
	if err == nil {
		return nil
	}

	return &ClassifiedError{Class: class, Err: err}
}

// ClassOf maps an error to its batch error class. Explicit classification
// wins; otherwise the error shape decides, defaulting to System.
func ClassOf(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	var ite *InvalidTransitionError
	if errors.As(err, &ite) {
		return ErrorClassBusinessRule
	}

	var eee *EscalationExhaustedError
	if errors.As(err, &eee) {
		return ErrorClassBusinessRule
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return ErrorClassSystem
	}

	// context.DeadlineExceeded satisfies net.Error, so context errors must
	// be ruled out before the network shape is considered.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorClassSystem
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return ErrorClassNetwork
	}

	switch {
	case errors.Is(err, ErrInstanceNotFound), errors.Is(err, ErrBatchNotFound):
		return ErrorClassData
	case errors.Is(err, ErrEmptyBatch):
		return ErrorClassValidation
	default:
		return ErrorClassSystem
	}
}
