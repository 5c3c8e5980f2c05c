package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/dshills/luaproc/internal/logging"
	"github.com/dshills/luaproc/internal/metrics"
	"github.com/dshills/luaproc/internal/resource"
	"github.com/dshills/luaproc/internal/security"
)

// Service spawns, awaits and signals children registered in one table.
//
// Service is safe for concurrent use.
type Service struct {
	table    *resource.Table
	gate     Gate
	platform Platform
	log      *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// WithPlatform replaces the OS platform.
func WithPlatform(p Platform) Option {
	return func(s *Service) {
		s.platform = p
	}
}

// NewService creates a Service that registers children in table and asks
// gate before every operation.
func NewService(table *resource.Table, gate Gate, opts ...Option) *Service {
	s := &Service{
		table:    table,
		gate:     gate,
		platform: DefaultPlatform(),
		log:      logging.Null(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("process").WithField("table", s.table.Instance())
	return s
}

// Table returns the table children are registered in.
func (s *Service) Table() *resource.Table {
	return s.table
}

// Platform returns the platform in use.
func (s *Service) Platform() Platform {
	return s.platform
}

// Run spawns a child as described by args and registers it, along with the
// host ends of any piped streams.
//
// On failure nothing is registered and every handle created for the attempt
// is closed.
func (s *Service) Run(args RunArgs) (RunResult, error) {
	if err := s.check("run", s.gate.CheckRun); err != nil {
		return RunResult{}, err
	}
	if len(args.Cmd) == 0 {
		return RunResult{}, ErrEmptyCommand
	}

	var endpoints [3]endpoint
	closeAll := func(n int) {
		for i := 0; i < n; i++ {
			endpoints[i].closeAll()
		}
	}

	wanted := [3]struct {
		rid  resource.ID
		mode StdioMode
	}{
		{args.StdinRid, args.Stdin},
		{args.StdoutRid, args.Stdout},
		{args.StderrRid, args.Stderr},
	}
	for i, w := range wanted {
		ep, err := resolve(s.table, w.rid, w.mode, stream(i))
		if err != nil {
			closeAll(i)
			return RunResult{}, err
		}
		endpoints[i] = ep
	}

	cmd := exec.Command(args.Cmd[0], args.Cmd[1:]...)
	cmd.Dir = args.Cwd
	cmd.Env = environ(args.Env)
	cmd.Stdin = endpoints[streamStdin].child
	cmd.Stdout = endpoints[streamStdout].child
	cmd.Stderr = endpoints[streamStderr].child

	if err := cmd.Start(); err != nil {
		closeAll(len(endpoints))
		metrics.IncSpawnFailure()
		s.log.WithError(err).Debug("spawn %s failed", args.Cmd[0])
		return RunResult{}, &SpawnError{Cmd: args.Cmd[0], Err: err}
	}

	// The child holds its own copies now.
	for _, ep := range endpoints {
		ep.closeChild()
	}

	child := newChild(cmd, s.exited)
	res := RunResult{Pid: child.Pid()}

	var registered []resource.ID
	abort := func(err error) (RunResult, error) {
		for _, id := range registered {
			_ = s.table.Remove(id)
		}
		_ = child.Close()
		return RunResult{}, fmt.Errorf("register child %d: %w", child.Pid(), err)
	}

	slots := [3]**resource.ID{&res.StdinRid, &res.StdoutRid, &res.StderrRid}
	for i, ep := range endpoints {
		if ep.host == nil {
			continue
		}
		id, err := s.table.Add(newChildStream(ep.host, stream(i).kind()))
		if err != nil {
			for _, rest := range endpoints[i+1:] {
				if rest.host != nil {
					_ = rest.host.Close()
				}
			}
			return abort(err)
		}
		registered = append(registered, id)
		*slots[i] = &id
	}

	rid, err := s.table.Add(child)
	if err != nil {
		return abort(err)
	}
	res.Rid = rid

	metrics.IncSpawned()
	s.log.WithFields(map[string]any{"pid": res.Pid, "rid": res.Rid}).
		Debug("spawned %s", args.Cmd[0])

	return res, nil
}

// environ returns the host environment with overrides appended. os/exec keeps
// the last value of a duplicated key.
func environ(overrides []EnvVar) []string {
	env := os.Environ()
	for _, kv := range overrides {
		env = append(env, kv.Key+"="+kv.Value)
	}
	return env
}

// exited runs on the reaper goroutine of every child.
func (s *Service) exited(state *os.ProcessState) {
	t := s.platform.Termination(state)
	kind := metrics.ExitCode
	if !t.Exited && t.Signaled {
		kind = metrics.ExitSignal
	}
	metrics.ObserveExit(kind)
	s.log.WithFields(map[string]any{"pid": state.Pid(), "code": t.Code, "signal": t.Signal}).
		Debug("child exited (%s)", kind)
}

func (s *Service) check(op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if errors.Is(err, security.ErrPermissionDenied) {
		metrics.IncPermissionDenied(op)
		s.log.WithField("op", op).Warn("permission denied: %v", err)
	}
	return err
}
