package lua

import (
	"errors"
	"fmt"
)

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrSchedulerRunning is returned when Run is called re-entrantly.
	ErrSchedulerRunning = errors.New("scheduler is already running")
)

// TaskError reports a task that ended with a Lua error.
type TaskError struct {
	Task int
	Err  error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Task, e.Err)
}

// Unwrap returns the Lua error.
func (e *TaskError) Unwrap() error {
	return e.Err
}
