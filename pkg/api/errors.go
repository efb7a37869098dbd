package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no flow state exists for a flowId.
	ErrNotFound = errors.New("flow state not found")

	// ErrAlreadyExists is returned when creating a flow state whose flowId
	// is already present in the store.
	ErrAlreadyExists = errors.New("flow state already exists")

	// ErrInvalidState is returned when a control message is not applicable
	// to the flow's current state, for example resuming a flow that is not
	// blocked on any step.
	ErrInvalidState = errors.New("invalid flow state for operation")
)

// ValidationError reports a schema mismatch on a flow or action boundary.
// It is never retried and surfaces to the caller immediately.
type ValidationError struct {
	// Subject identifies what was being validated, e.g. "input", "output",
	// "chunk", or a step name.
	Subject string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Subject + " validation failed"
	}
	return fmt.Sprintf("%s validation failed: %s", e.Subject, strings.Join(e.Details, "; "))
}

// AuthorizationError is returned when a flow's auth policy denies a request.
// The flow is never created or executed.
type AuthorizationError struct {
	Flow string
	Err  error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("flow %q: authorization denied: %v", e.Flow, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// StepExecutionError wraps an error returned by a step thunk. The failure is
// recorded into the flow's operation result and the flow is marked failed;
// the failed step is never cached, so a later retry re-executes it.
type StepExecutionError struct {
	Step  string
	Err   error
	Stack string
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// persistError wraps a store failure that happened while a flow body was
// executing. It must not be recorded as a business failure: the flow state
// stays at its last successfully persisted snapshot and the error propagates
// to the dispatcher's caller, which may safely retry the message.
type persistError struct {
	Err error
}

func (e *persistError) Error() string { return "persist flow state: " + e.Err.Error() }

func (e *persistError) Unwrap() error { return e.Err }

// NewPersistError marks err as a flow-state persistence failure. It is used
// by the step runner and the dispatcher; application code should not need it.
func NewPersistError(err error) error {
	return &persistError{Err: err}
}

// IsPersistError reports whether err originated from the flow state store
// rather than from flow business logic.
func IsPersistError(err error) bool {
	var p *persistError
	return errors.As(err, &p)
}

// blockedError is returned by blocking steps that want to suspend the flow
// until external input arrives. The dispatcher recognizes it and parks the
// flow instead of failing it.
type blockedError struct {
	Step   string
	Schema *Schema
}

func (e *blockedError) Error() string {
	return "blocked on step: " + e.Step
}

// NewBlockedError is primarily intended for use by helper step constructors
// (like WaitForEvent), but custom blocking steps can use it to integrate
// with the dispatcher's suspension semantics.
func NewBlockedError(step string, schema *Schema) error {
	return &blockedError{Step: step, Schema: schema}
}

// IsBlockedError returns the blocking step's name and resume-payload schema
// if err indicates that the flow wants to suspend.
func IsBlockedError(err error) (string, *Schema, bool) {
	var b *blockedError
	if errors.As(err, &b) {
		return b.Step, b.Schema, true
	}
	return "", nil, false
}
