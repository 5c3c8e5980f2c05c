package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/dshills/luaproc/internal/resource"
)

// Child is a running or terminated child process registered in a table.
//
// A reaper goroutine waits on the OS process and closes Done when the child
// has been reaped. Closing a Child that is still running kills it.
type Child struct {
	cmd     *exec.Cmd
	pid     int
	started time.Time

	// done is closed by reap once state and waitErr are set.
	done    chan struct{}
	state   *os.ProcessState
	waitErr error

	onExit func(*os.ProcessState)
}

func newChild(cmd *exec.Cmd, onExit func(*os.ProcessState)) *Child {
	c := &Child{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		started: time.Now(),
		done:    make(chan struct{}),
		onExit:  onExit,
	}
	go c.reap()
	return c
}

func (c *Child) reap() {
	err := c.cmd.Wait()
	c.state = c.cmd.ProcessState
	if c.state == nil {
		c.waitErr = err
	}
	if c.onExit != nil && c.state != nil {
		c.onExit(c.state)
	}
	close(c.done)
}

// Kind implements resource.Resource.
func (c *Child) Kind() resource.Kind {
	return resource.KindChild
}

// Pid returns the OS process id recorded at spawn.
func (c *Child) Pid() int {
	return c.pid
}

// Started returns the spawn time.
func (c *Child) Started() time.Time {
	return c.started
}

// Done returns a channel that is closed when the child has been reaped.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// TryWait reports the child's state without blocking. It returns false while
// the child is running.
func (c *Child) TryWait() (*os.ProcessState, bool, error) {
	select {
	case <-c.done:
		if c.state == nil {
			return nil, true, fmt.Errorf("wait for pid %d: %w", c.pid, c.waitErr)
		}
		return c.state, true, nil
	default:
		return nil, false, nil
	}
}

// Close kills the child if it has not terminated and waits for it to be
// reaped. Closing an exited child is a no-op.
func (c *Child) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", c.pid, err)
	}
	<-c.done
	return nil
}
