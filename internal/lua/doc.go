// Package lua provides the Lua runtime that scripts run in.
//
// This package wraps the gopher-lua library to provide:
//   - Sandboxed Lua state management
//   - Go-Lua type conversion bridge
//   - A cooperative task scheduler for non-blocking host calls
//
// # State
//
// The State type manages a Lua runtime with only safe libraries opened:
//
//	state, err := lua.NewState(lua.WithCallStackSize(256))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer state.Close()
//
// # Sandbox
//
// The Sandbox removes functions that load code from disk or strings and
// replaces require with one that only resolves registered modules.
//
// # Scheduler
//
// Every script runs as a task: a Lua coroutine driven by a Scheduler that
// owns the state. A Go function suspends the calling task with Await; the
// operation runs on its own goroutine and the task resumes with its results
// once it completes, while other tasks keep running:
//
//	func sleep(L *lua.LState) int {
//	    d := time.Duration(L.CheckInt(1)) * time.Millisecond
//	    return sched.Await(L, func(ctx context.Context) (lua.Completion, error) {
//	        select {
//	        case <-time.After(d):
//	        case <-ctx.Done():
//	            return nil, ctx.Err()
//	        }
//	        return nil, nil
//	    })
//	}
//
// Functions that may call Await must be exposed through Scheduler.Wrap so
// that failures after a suspension surface as ordinary Lua errors.
//
// gopher-lua cannot yield across pcall, so NewScheduler replaces pcall with
// a coroutine based version that passes suspensions through. A suspending
// call made inside a coroutine the script created itself blocks the
// scheduler until it completes instead.
package lua
