//go:build !windows

package process

import (
	"os"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

type unixPlatform struct{}

// DefaultPlatform returns the platform of the running OS.
func DefaultPlatform() Platform {
	return unixPlatform{}
}

func (unixPlatform) SupportsSignals() bool {
	return true
}

func (unixPlatform) Termination(state *os.ProcessState) Termination {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return Termination{Code: state.ExitCode(), Exited: state.Exited()}
	}
	switch {
	case ws.Exited():
		return Termination{Code: ws.ExitStatus(), Exited: true}
	case ws.Signaled():
		return Termination{Signal: int(ws.Signal()), Signaled: true}
	default:
		return Termination{}
	}
}

func (unixPlatform) Kill(pid, signo int) error {
	return unix.Kill(pid, unix.Signal(signo))
}

// SignalNum returns the number of a signal given as "SIGTERM" or "TERM".
func SignalNum(name string) (int, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	n := unix.SignalNum(name)
	return int(n), n != 0
}

// SignalName returns the name of signo, or "" if it is unknown.
func SignalName(signo int) string {
	return unix.SignalName(unix.Signal(signo))
}

// Signals returns every named signal of the platform.
func Signals() map[string]int {
	sigs := make(map[string]int)
	for i := 1; i < 65; i++ {
		if name := unix.SignalName(unix.Signal(i)); name != "" {
			sigs[name] = i
		}
	}
	return sigs
}
