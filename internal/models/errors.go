package models

import (
	"errors"
	"fmt"
)

// CollaboratorError reports a downstream service that was unreachable
// or timed out. It is retryable: the caller may repeat the stage
// without losing prior progress.
type CollaboratorError struct {
	Service string
	Err     error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// StageSequenceError reports a pipeline stage invoked out of order.
// No partial state change happens when it is returned.
type StageSequenceError struct {
	Stage    Stage
	Current  SessionState
	Required SessionState
}

func (e *StageSequenceError) Error() string {
	return fmt.Sprintf("stage %s requires state %q, current state is %q", e.Stage, e.Required, e.Current)
}

// ValidationError reports malformed input rejected before any side
// effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsRetryable reports whether err is a collaborator failure the caller
// may retry.
func IsRetryable(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}
