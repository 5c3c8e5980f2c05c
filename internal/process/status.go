package process

import (
	"context"
	"os"

	"github.com/dshills/luaproc/internal/resource"
)

// Poll makes one non-blocking attempt to collect the exit status of the
// child registered under rid. It reports false while the child is running.
//
// An unknown rid, or one that does not name a child, fails with
// resource.ErrBadResource.
func (s *Service) Poll(rid resource.ID) (StatusResult, bool, error) {
	if err := s.check("status", s.gate.CheckRun); err != nil {
		return StatusResult{}, false, err
	}

	var (
		state  *os.ProcessState
		exited bool
	)
	err := resource.With(s.table, rid, func(c *Child) error {
		var err error
		state, exited, err = c.TryWait()
		return err
	})
	if err != nil || !exited {
		return StatusResult{}, false, err
	}

	return statusFrom(s.platform.Termination(state)), true, nil
}

// Status waits for the child registered under rid to terminate.
//
// The table is not locked while waiting. When ctx is done the wait is
// abandoned and ctx.Err() returned; the child keeps running and stays
// registered.
func (s *Service) Status(ctx context.Context, rid resource.ID) (StatusResult, error) {
	for {
		res, exited, err := s.Poll(rid)
		if err != nil || exited {
			return res, err
		}

		child, err := resource.Get[*Child](s.table, rid)
		if err != nil {
			return StatusResult{}, err
		}

		select {
		case <-child.Done():
		case <-ctx.Done():
			return StatusResult{}, ctx.Err()
		}
	}
}
