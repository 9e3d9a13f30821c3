package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnTimeout is returned when a turn does not finish within the turn timeout.
	ErrTurnTimeout = errors.New("turn timed out")
	// ErrIterationLimit is returned when the planner keeps calling tools past the cap.
	ErrIterationLimit = errors.New("turn exceeded the planning iteration limit")
)

// ValidationError reports a missing or malformed request field. It is raised
// before any model or tool call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ToolExecutionError is a failed capability invocation. The agent folds it into
// the transcript so the planner can recover.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("capability %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// UpstreamModelError is a failure of the planning or embedding endpoint. It
// fails the whole turn.
type UpstreamModelError struct {
	Op  string
	Err error
}

func (e *UpstreamModelError) Error() string {
	return fmt.Sprintf("%s model call failed: %v", e.Op, e.Err)
}

func (e *UpstreamModelError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamModelError for op. A nil err stays nil and
// an existing UpstreamModelError is returned unchanged.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var up *UpstreamModelError
	if errors.As(err, &up) {
		return err
	}
	return &UpstreamModelError{Op: op, Err: err}
}
