package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"

	"github.com/dshills/luaproc/internal/resource"
	"github.com/dshills/luaproc/internal/security"
)

// Sentinel errors for the process package.
var (
	// ErrInvalidArgument marks malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptyCommand is returned when RunArgs.Cmd has no elements.
	ErrEmptyCommand = fmt.Errorf("%w: command is empty", ErrInvalidArgument)

	// ErrSignalUnsupported is returned when the platform cannot deliver a signal.
	ErrSignalUnsupported = fmt.Errorf("%w: signal not supported on this platform", ErrInvalidArgument)
)

// SpawnError is returned when the OS refuses to start a child.
type SpawnError struct {
	Cmd string
	Err error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Cmd, e.Err)
}

// Unwrap returns the underlying OS error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// SignalError is returned when a signal could not be delivered.
type SignalError struct {
	Pid   int
	Signo int
	Err   error
}

// Error implements the error interface.
func (e *SignalError) Error() string {
	return fmt.Sprintf("kill pid %d with signal %d: %v", e.Pid, e.Signo, e.Err)
}

// Unwrap returns the underlying OS error.
func (e *SignalError) Unwrap() error {
	return e.Err
}

// Error classes reported to scripts.
const (
	ClassPermissionDenied      = "PermissionDenied"
	ClassBadResource           = "BadResource"
	ClassNotFound              = "NotFound"
	ClassSpawnFailure          = "SpawnFailure"
	ClassSignalDeliveryFailure = "SignalDeliveryFailure"
	ClassInvalidArgument       = "InvalidArgument"
	ClassOther                 = "Other"
)

// ErrorClass maps err to the class name scripts see. It returns "" for nil.
func ErrorClass(err error) string {
	var (
		spawnErr  *SpawnError
		signalErr *SignalError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, security.ErrPermissionDenied):
		return ClassPermissionDenied
	case errors.Is(err, resource.ErrBadResource),
		errors.Is(err, resource.ErrNotReadable),
		errors.Is(err, resource.ErrNotWritable):
		return ClassBadResource
	case errors.Is(err, ErrInvalidArgument):
		return ClassInvalidArgument
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, exec.ErrNotFound):
		return ClassNotFound
	case errors.As(err, &spawnErr):
		return ClassSpawnFailure
	case errors.As(err, &signalErr):
		return ClassSignalDeliveryFailure
	default:
		return ClassOther
	}
}
