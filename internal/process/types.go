package process

import (
	"github.com/dshills/luaproc/internal/resource"
)

// Gate is the capability pre-check consulted before any OS action.
type Gate interface {
	// CheckRun guards spawning and awaiting children.
	CheckRun() error
	// CheckSignal guards signal delivery.
	CheckSignal() error
}

// EnvVar is a single environment override.
type EnvVar struct {
	Key   string
	Value string
}

// RunArgs describes a child to spawn.
type RunArgs struct {
	// Cmd is the executable followed by its arguments.
	Cmd []string
	// Cwd is the working directory. Empty inherits the host's.
	Cwd string
	// Env is applied in order on top of the host environment.
	Env []EnvVar

	Stdin  StdioMode
	Stdout StdioMode
	Stderr StdioMode

	// A non-zero rid takes precedence over the mode of the same stream.
	// Zero is resource.StdinID, which tables only hold when created with
	// resource.WithStdio; the inherit mode covers that stream.
	StdinRid  resource.ID
	StdoutRid resource.ID
	StderrRid resource.ID
}

// RunResult reports the ids of a spawned child and its pipes.
type RunResult struct {
	Rid resource.ID
	Pid int

	// Nil unless the stream was piped.
	StdinRid  *resource.ID
	StdoutRid *resource.ID
	StderrRid *resource.ID
}

// StatusResult reports how a child terminated.
type StatusResult struct {
	GotSignal bool
	// ExitCode is -1 when the child was killed by a signal.
	ExitCode int
	// ExitSignal is -1 when the child exited with a code.
	ExitSignal int
}

// KillArgs selects a process and the signal to deliver.
type KillArgs struct {
	Pid   int
	Signo int
}
