package process

import (
	"github.com/dshills/luaproc/internal/metrics"
)

// Kill delivers a signal to an arbitrary process id. The pid does not have
// to belong to a registered child.
func (s *Service) Kill(args KillArgs) error {
	if err := s.check("kill", s.gate.CheckSignal); err != nil {
		return err
	}

	err := s.platform.Kill(args.Pid, args.Signo)
	metrics.ObserveSignal(err)
	if err != nil {
		s.log.WithField("pid", args.Pid).WithError(err).Debug("signal %d not delivered", args.Signo)
		return &SignalError{Pid: args.Pid, Signo: args.Signo, Err: err}
	}

	s.log.WithField("pid", args.Pid).Debug("sent signal %d", args.Signo)
	return nil
}
