package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaproc/internal/config"
	"github.com/dshills/luaproc/internal/logging"
	plua "github.com/dshills/luaproc/internal/lua"
	"github.com/dshills/luaproc/internal/lua/api"
	"github.com/dshills/luaproc/internal/metrics"
	"github.com/dshills/luaproc/internal/process"
	"github.com/dshills/luaproc/internal/resource"
	"github.com/dshills/luaproc/internal/security"
)

// ErrClosed is returned when running a script on a closed host.
var ErrClosed = errors.New("host is closed")

// Host runs Lua scripts against one resource table.
//
// Scripts run one at a time on the caller's goroutine. ApplyConfig may be
// called from any goroutine; Close must not overlap a running script.
type Host struct {
	mu sync.Mutex

	cfg *config.Config
	log *logging.Logger

	table   *resource.Table
	checker *security.PermissionChecker
	procs   *process.Service

	state    *plua.State
	sched    *plua.Scheduler
	registry *api.Registry

	// Options
	stdin, stdout, stderr *os.File
	platform              process.Platform

	closed bool
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger. By default one is built from the config.
func WithLogger(l *logging.Logger) Option {
	return func(h *Host) {
		h.log = l
	}
}

// WithStdio replaces the host streams registered as resource.StdinID,
// StdoutID and StderrID.
func WithStdio(stdin, stdout, stderr *os.File) Option {
	return func(h *Host) {
		h.stdin, h.stdout, h.stderr = stdin, stdout, stderr
	}
}

// WithPlatform replaces the OS platform used by the process service.
func WithPlatform(p process.Platform) Option {
	return func(h *Host) {
		h.platform = p
	}
}

// New creates a host for cfg. A nil cfg means config.Default().
func New(cfg *config.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Host{
		cfg:    cfg,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logging.New(cfg.LogConfig())
	}

	h.table = resource.NewTable(
		resource.WithChangeCallback(metrics.SetOpenResources),
		resource.WithStdio(h.stdin, h.stdout, h.stderr))

	h.checker = security.NewPermissionChecker("luaproc")
	if err := h.applyPermissions(cfg); err != nil {
		_ = h.table.Close()
		return nil, err
	}

	procOpts := []process.Option{process.WithLogger(h.log)}
	if h.platform != nil {
		procOpts = append(procOpts, process.WithPlatform(h.platform))
	}
	h.procs = process.NewService(h.table, h.checker, procOpts...)

	if err := h.initLua(); err != nil {
		_ = h.table.Close()
		return nil, err
	}

	h.log.WithField("table", h.table.Instance()).
		Debug("host ready with capabilities %v", h.checker.Capabilities())
	return h, nil
}

func (h *Host) initLua() error {
	state, err := plua.NewState(
		plua.WithCallStackSize(h.cfg.Lua.CallStackSize),
		plua.WithRegistryMaxSize(h.cfg.Lua.RegistryMaxSize),
	)
	if err != nil {
		return fmt.Errorf("create lua state: %w", err)
	}

	sched, err := plua.NewScheduler(state,
		plua.WithSchedulerLogger(h.log),
		plua.WithErrorFormatter(api.FormatError))
	if err != nil {
		_ = state.Close()
		return fmt.Errorf("create scheduler: %w", err)
	}

	registry, err := api.DefaultRegistry(&api.Context{
		Scheduler: sched,
		Process:   h.procs,
		Checker:   h.checker,
		Bridge:    plua.NewBridge(state.L),
		Log:       h.log.WithComponent("api"),
	})
	if err == nil {
		err = registry.InjectAll(state)
	}
	if err != nil {
		_ = state.Close()
		return fmt.Errorf("install modules: %w", err)
	}

	h.state = state
	h.sched = sched
	h.registry = registry
	return nil
}

// Table returns the resource table.
func (h *Host) Table() *resource.Table {
	return h.table
}

// Checker returns the permission checker.
func (h *Host) Checker() *security.PermissionChecker {
	return h.checker
}

// Logger returns the logger.
func (h *Host) Logger() *logging.Logger {
	return h.log
}

// Modules returns the names of the installed API modules.
func (h *Host) Modules() []string {
	return h.registry.List()
}

// Config returns the configuration in effect.
func (h *Host) Config() *config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// ApplyConfig replaces permissions and logging settings. Lua limits only
// take effect for new hosts.
func (h *Host) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := h.applyPermissions(cfg); err != nil {
		return err
	}

	lc := cfg.LogConfig()
	h.log.SetLevel(lc.Level)
	h.log.SetFormat(lc.Format)

	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()

	h.log.Info("configuration applied, capabilities %v", h.checker.Capabilities())
	return nil
}

func (h *Host) applyPermissions(cfg *config.Config) error {
	set, err := cfg.PermissionSet()
	if err != nil {
		return err
	}
	h.checker.Replace(set)
	return nil
}

// RunFile runs the script at path as the main task. args are passed to the
// chunk as varargs and stored in the arg global, with arg[0] set to path.
func (h *Host) RunFile(ctx context.Context, path string, args []string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	fn, err := h.state.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return h.run(ctx, path, fn, args)
}

// RunString runs src as the main task. name appears in error messages.
func (h *Host) RunString(ctx context.Context, name, src string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	fn, err := h.state.LoadString(name, src)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return h.run(ctx, name, fn, nil)
}

func (h *Host) checkOpen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return nil
}

func (h *Host) run(ctx context.Context, name string, fn *lua.LFunction, args []string) error {
	if timeout := h.Config().Lua.Timeout.Std(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	argTable := h.state.L.CreateTable(len(args), 1)
	argTable.RawSetInt(0, lua.LString(name))
	varargs := make([]lua.LValue, len(args))
	for i, a := range args {
		argTable.RawSetInt(i+1, lua.LString(a))
		varargs[i] = lua.LString(a)
	}
	h.state.SetGlobal("arg", argTable)

	log := h.log.WithField("script", name)
	log.Debug("script started")

	h.sched.Spawn(fn, varargs...)
	start := time.Now()
	err := h.sched.Run(ctx)
	elapsed := time.Since(start)
	metrics.ObserveScript(elapsed, err)

	if err != nil {
		log.WithError(err).Debug("script failed after %s", elapsed)
		return err
	}
	log.Debug("script finished in %s", elapsed)
	return nil
}

// Close closes every resource, killing children that are still running,
// and releases the Lua state.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	return errors.Join(h.table.Close(), h.state.Close())
}
