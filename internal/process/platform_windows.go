//go:build windows

package process

import (
	"fmt"
	"os"
	"strings"
)

const (
	sigKill = 9
	sigTerm = 15
)

var windowsSignals = map[string]int{
	"SIGKILL": sigKill,
	"SIGTERM": sigTerm,
}

type windowsPlatform struct{}

// DefaultPlatform returns the platform of the running OS.
func DefaultPlatform() Platform {
	return windowsPlatform{}
}

func (windowsPlatform) SupportsSignals() bool {
	return false
}

func (windowsPlatform) Termination(state *os.ProcessState) Termination {
	return Termination{Code: state.ExitCode(), Exited: true}
}

// Kill terminates pid for SIGKILL and SIGTERM. Windows has no other signals.
func (windowsPlatform) Kill(pid, signo int) error {
	if signo != sigKill && signo != sigTerm {
		return ErrSignalUnsupported
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}
	defer p.Release()
	return p.Kill()
}

// SignalNum returns the number of a signal given as "SIGTERM" or "TERM".
func SignalNum(name string) (int, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	n, ok := windowsSignals[name]
	return n, ok
}

// SignalName returns the name of signo, or "" if it is unknown.
func SignalName(signo int) string {
	for name, n := range windowsSignals {
		if n == signo {
			return name
		}
	}
	return ""
}

// Signals returns every named signal of the platform.
func Signals() map[string]int {
	sigs := make(map[string]int, len(windowsSignals))
	for name, n := range windowsSignals {
		sigs[name] = n
	}
	return sigs
}
