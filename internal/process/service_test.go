//go:build !windows

package process

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/dshills/luaproc/internal/resource"
	"github.com/dshills/luaproc/internal/security"
)

type denyGate struct{}

func (denyGate) CheckRun() error {
	return security.NewCapabilityError(security.CapabilitySpawn, "run process", "not granted")
}

func (denyGate) CheckSignal() error {
	return security.NewCapabilityError(security.CapabilitySignal, "kill process", "not granted")
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	table := resource.NewTable()
	t.Cleanup(func() { _ = table.Close() })

	checker := security.NewPermissionChecker(t.Name())
	checker.Grant(security.CapabilityProcess)
	return NewService(table, checker)
}

func waitStatus(t *testing.T, svc *Service, rid resource.ID) StatusResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := svc.Status(ctx, rid)
	require.NoError(t, err)
	return st
}

func readAll(t *testing.T, table *resource.Table, rid resource.ID) string {
	t.Helper()
	r, err := resource.Get[resource.Reader](table, rid)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestRunPipedStdout(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{
		Cmd:    []string{"sh", "-c", "printf hello"},
		Stdout: Piped,
	})
	require.NoError(t, err)
	require.Positive(t, res.Pid)
	require.Nil(t, res.StdinRid)
	require.Nil(t, res.StderrRid)
	require.NotNil(t, res.StdoutRid)
	require.Less(t, *res.StdoutRid, res.Rid, "streams are registered before the child")

	require.Equal(t, "hello", readAll(t, svc.Table(), *res.StdoutRid))
	require.Equal(t, StatusResult{ExitCode: 0, ExitSignal: -1}, waitStatus(t, svc, res.Rid))

	kinds := map[resource.ID]resource.Kind{}
	for _, info := range svc.Table().List() {
		kinds[info.ID] = info.Kind
	}
	require.Equal(t, resource.KindChild, kinds[res.Rid])
	require.Equal(t, resource.KindChildStdout, kinds[*res.StdoutRid])
}

func TestRunPipedStdinRoundTrip(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{
		Cmd:    []string{"cat"},
		Stdin:  Piped,
		Stdout: Piped,
	})
	require.NoError(t, err)
	require.NotNil(t, res.StdinRid)

	w, err := resource.Get[resource.Writer](svc.Table(), *res.StdinRid)
	require.NoError(t, err)
	_, err = w.Write([]byte("ping"))
	require.NoError(t, err)

	// Closing the host end delivers EOF to cat.
	require.NoError(t, svc.Table().Remove(*res.StdinRid))

	require.Equal(t, "ping", readAll(t, svc.Table(), *res.StdoutRid))
	require.Equal(t, 0, waitStatus(t, svc, res.Rid).ExitCode)
}

func TestChildStreamDirections(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{
		Cmd:    []string{"cat"},
		Stdin:  Piped,
		Stdout: Piped,
	})
	require.NoError(t, err)

	in, err := resource.Get[*ChildStream](svc.Table(), *res.StdinRid)
	require.NoError(t, err)
	_, err = in.Read(make([]byte, 1))
	require.ErrorIs(t, err, resource.ErrNotReadable)

	out, err := resource.Get[*ChildStream](svc.Table(), *res.StdoutRid)
	require.NoError(t, err)
	_, err = out.Write([]byte("x"))
	require.ErrorIs(t, err, resource.ErrNotWritable)
}

func TestRunStdoutFromFileResource(t *testing.T) {
	svc := newTestService(t)

	path := filepath.Join(t.TempDir(), "out.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	fileRid, err := svc.Table().Add(resource.NewFile(f))
	require.NoError(t, err)
	require.NotEqual(t, resource.StdinID, fileRid, "the first resource of a fresh table must be usable as a source")

	res, err := svc.Run(RunArgs{
		Cmd:       []string{"sh", "-c", "echo from-child"},
		StdoutRid: fileRid,
		Stdout:    Piped, // ignored, the rid wins
	})
	require.NoError(t, err)
	require.Nil(t, res.StdoutRid)
	require.Equal(t, 0, waitStatus(t, svc, res.Rid).ExitCode)

	// The original resource is still usable.
	w, err := resource.Get[resource.Writer](svc.Table(), fileRid)
	require.NoError(t, err)
	_, err = w.Write([]byte("after\n"))
	require.NoError(t, err)
	require.NoError(t, svc.Table().Remove(fileRid))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "from-child\nafter\n", string(data))
}

func TestRunStdoutFromHostStdio(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	table := resource.NewTable(resource.WithStdio(os.Stdin, w, os.Stderr))
	t.Cleanup(func() { _ = table.Close() })
	checker := security.NewPermissionChecker(t.Name())
	checker.Grant(security.CapabilitySpawn)
	svc := NewService(table, checker)

	res, err := svc.Run(RunArgs{
		Cmd:       []string{"sh", "-c", "printf to-host"},
		StdoutRid: resource.StdoutID,
	})
	require.NoError(t, err)
	require.Nil(t, res.StdoutRid)
	require.Equal(t, resource.ID(3), res.Rid)
	require.Equal(t, 0, waitStatus(t, svc, res.Rid).ExitCode)
	require.NoError(t, w.Close())

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "to-host", string(data))

	// The host stream stays registered.
	_, err = resource.Get[resource.Writer](table, resource.StdoutID)
	require.NoError(t, err)
}

func TestRunChildPipeIsNotDuplicable(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.Run(RunArgs{Cmd: []string{"sh", "-c", "echo x"}, Stdout: Piped})
	require.NoError(t, err)
	before := svc.Table().Len()

	_, err = svc.Run(RunArgs{Cmd: []string{"cat"}, StdinRid: *first.StdoutRid})
	require.ErrorIs(t, err, resource.ErrBadResource)
	require.Equal(t, before, svc.Table().Len())
}

func TestRunExitCode(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{Cmd: []string{"sh", "-c", "exit 42"}})
	require.NoError(t, err)

	require.Equal(t, StatusResult{GotSignal: false, ExitCode: 42, ExitSignal: -1}, waitStatus(t, svc, res.Rid))

	// Polling an exited child keeps answering the same way.
	st, exited, err := svc.Poll(res.Rid)
	require.NoError(t, err)
	require.True(t, exited)
	require.Equal(t, 42, st.ExitCode)
}

func TestRunEnvAndCwd(t *testing.T) {
	svc := newTestService(t)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	res, err := svc.Run(RunArgs{
		Cmd:    []string{"sh", "-c", `printf '%s:%s' "$LUAPROC_TEST" "$(pwd -P)"`},
		Cwd:    dir,
		Env:    []EnvVar{{"LUAPROC_TEST", "first"}, {"LUAPROC_TEST", "second"}},
		Stdout: Piped,
	})
	require.NoError(t, err)

	require.Equal(t, "second:"+dir, readAll(t, svc.Table(), *res.StdoutRid))
	waitStatus(t, svc, res.Rid)
}

func TestRunNullStreams(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{
		Cmd:    []string{"sh", "-c", "read line; echo out; echo err >&2"},
		Stdin:  Null,
		Stdout: Null,
		Stderr: Null,
	})
	require.NoError(t, err)
	require.Nil(t, res.StdinRid)
	require.Nil(t, res.StdoutRid)
	require.Nil(t, res.StderrRid)
	require.Equal(t, 1, svc.Table().Len())

	// read hits EOF on the null device, so the script still exits 0.
	require.Equal(t, 0, waitStatus(t, svc, res.Rid).ExitCode)
}

func TestKillReportsSignal(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{Cmd: []string{"sleep", "30"}})
	require.NoError(t, err)

	require.NoError(t, svc.Kill(KillArgs{Pid: res.Pid, Signo: int(unix.SIGTERM)}))

	require.Equal(t, StatusResult{GotSignal: true, ExitCode: -1, ExitSignal: 15}, waitStatus(t, svc, res.Rid))
}

func TestKillUnknownPid(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{Cmd: []string{"sh", "-c", "exit 0"}})
	require.NoError(t, err)
	waitStatus(t, svc, res.Rid)
	require.NoError(t, svc.Table().Remove(res.Rid))

	// The child has been reaped, so its pid is gone.
	err = svc.Kill(KillArgs{Pid: res.Pid, Signo: int(unix.SIGTERM)})
	var sigErr *SignalError
	require.ErrorAs(t, err, &sigErr)
	require.ErrorIs(t, err, unix.ESRCH)
	require.Equal(t, ClassSignalDeliveryFailure, ErrorClass(err))
}

func TestStatusBadResource(t *testing.T) {
	svc := newTestService(t)

	start := time.Now()
	_, err := svc.Status(context.Background(), 999)
	require.ErrorIs(t, err, resource.ErrBadResource)

	_, _, err = svc.Poll(999)
	require.ErrorIs(t, err, resource.ErrBadResource)
	require.Less(t, time.Since(start), time.Second)

	// A resource of another kind is just as bad.
	f, err := os.Open(os.DevNull)
	require.NoError(t, err)
	rid, err := svc.Table().Add(resource.NewFile(f))
	require.NoError(t, err)
	_, err = svc.Status(context.Background(), rid)
	require.ErrorIs(t, err, resource.ErrBadResource)
}

func TestStatusConcurrentWaits(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{Cmd: []string{"sh", "-c", "sleep 0.2; exit 3"}})
	require.NoError(t, err)

	var results [2]StatusResult
	g, ctx := errgroup.WithContext(context.Background())
	for i := range results {
		g.Go(func() error {
			st, err := svc.Status(ctx, res.Rid)
			results[i] = st
			return err
		})
	}
	require.NoError(t, g.Wait())

	want := StatusResult{ExitCode: 3, ExitSignal: -1}
	require.Equal(t, want, results[0])
	require.Equal(t, want, results[1])
}

func TestStatusAbandonedWait(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{Cmd: []string{"sleep", "30"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = svc.Status(ctx, res.Rid)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Still running and still registered.
	_, exited, err := svc.Poll(res.Rid)
	require.NoError(t, err)
	require.False(t, exited)
	require.NoError(t, unix.Kill(res.Pid, 0))
}

func TestRemoveKillsRunningChild(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Run(RunArgs{Cmd: []string{"sleep", "30"}})
	require.NoError(t, err)
	child, err := resource.Get[*Child](svc.Table(), res.Rid)
	require.NoError(t, err)

	require.NoError(t, svc.Table().Remove(res.Rid))

	select {
	case <-child.Done():
	default:
		t.Fatal("child not reaped after removal")
	}
	require.ErrorIs(t, unix.Kill(res.Pid, 0), unix.ESRCH)
}

func TestDeniedGateBlocksEverything(t *testing.T) {
	allowed := newTestService(t)
	res, err := allowed.Run(RunArgs{Cmd: []string{"sleep", "30"}})
	require.NoError(t, err)

	denied := NewService(allowed.Table(), denyGate{})
	before := allowed.Table().Len()

	_, err = denied.Run(RunArgs{Cmd: []string{"sh", "-c", "exit 0"}, Stdout: Piped})
	require.ErrorIs(t, err, security.ErrPermissionDenied)
	require.Equal(t, before, allowed.Table().Len())

	_, err = denied.Status(context.Background(), res.Rid)
	require.ErrorIs(t, err, security.ErrPermissionDenied)

	_, _, err = denied.Poll(999)
	require.ErrorIs(t, err, security.ErrPermissionDenied, "the gate runs before the lookup")

	err = denied.Kill(KillArgs{Pid: res.Pid, Signo: int(unix.SIGKILL)})
	require.ErrorIs(t, err, security.ErrPermissionDenied)
	require.Equal(t, ClassPermissionDenied, ErrorClass(err))

	// The denied kill never reached the child: the next one decides its fate.
	require.NoError(t, allowed.Kill(KillArgs{Pid: res.Pid, Signo: int(unix.SIGKILL)}))
	require.Equal(t, int(unix.SIGKILL), waitStatus(t, allowed, res.Rid).ExitSignal)
}

func TestRunSpawnFailureRegistersNothing(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Run(RunArgs{
		Cmd:    []string{filepath.Join(t.TempDir(), "missing")},
		Stdin:  Piped,
		Stdout: Piped,
		Stderr: Piped,
	})
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	require.Equal(t, ClassNotFound, ErrorClass(err))
	require.Zero(t, svc.Table().Len())
}

func TestRunEmptyCommand(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Run(RunArgs{})
	require.ErrorIs(t, err, ErrEmptyCommand)
	require.Equal(t, ClassInvalidArgument, ErrorClass(err))
}

func TestRunIntoClosedTable(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Table().Close())

	_, err := svc.Run(RunArgs{Cmd: []string{"sleep", "30"}, Stdout: Piped})
	require.ErrorIs(t, err, resource.ErrTableClosed)
}

func TestSignalNames(t *testing.T) {
	n, ok := SignalNum("SIGTERM")
	require.True(t, ok)
	require.Equal(t, 15, n)

	n, ok = SignalNum("kill")
	require.True(t, ok)
	require.Equal(t, 9, n)

	_, ok = SignalNum("SIGNOPE")
	require.False(t, ok)

	require.Equal(t, "SIGTERM", SignalName(15))
	require.Empty(t, SignalName(0))

	sigs := Signals()
	require.Equal(t, 2, sigs["SIGINT"])
	for name := range sigs {
		require.True(t, strings.HasPrefix(name, "SIG"), name)
	}
}

func TestServiceSharedAcrossGoroutines(t *testing.T) {
	svc := newTestService(t)

	g := new(errgroup.Group)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			res, err := svc.Run(RunArgs{Cmd: []string{"sh", "-c", "exit 7"}})
			if err != nil {
				return err
			}
			st, err := svc.Status(context.Background(), res.Rid)
			if err != nil {
				return err
			}
			if st.ExitCode != 7 {
				return errors.New("unexpected exit code")
			}
			return svc.Table().Remove(res.Rid)
		})
	}
	require.NoError(t, g.Wait())
	require.Zero(t, svc.Table().Len())
}
