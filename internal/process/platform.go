package process

import "os"

// Termination is the platform's view of how a child ended.
type Termination struct {
	Code     int
	Exited   bool
	Signal   int
	Signaled bool
}

// Platform abstracts the OS-specific parts of termination reporting and
// signal delivery.
type Platform interface {
	// SupportsSignals reports whether children can terminate by signal.
	SupportsSignals() bool
	// Termination decodes the state of a reaped child.
	Termination(state *os.ProcessState) Termination
	// Kill delivers signo to pid.
	Kill(pid, signo int) error
}

// statusFrom maps a termination to a StatusResult. An exit code wins over a
// signal. A termination with neither cannot happen on supported platforms.
func statusFrom(t Termination) StatusResult {
	switch {
	case t.Exited:
		return StatusResult{GotSignal: false, ExitCode: t.Code, ExitSignal: -1}
	case t.Signaled:
		return StatusResult{GotSignal: true, ExitCode: -1, ExitSignal: t.Signal}
	default:
		panic("process: child terminated with neither exit code nor signal")
	}
}
