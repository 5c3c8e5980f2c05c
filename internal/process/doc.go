// Package process spawns, awaits and signals child processes on behalf of a
// script.
//
// Every handle the package creates lives in a resource.Table and is referred
// to by its resource.ID: the child itself and the host ends of any pipes
// created for its standard streams.
//
// # Spawning
//
// Each standard stream is routed by an explicit resource id or by a mode:
//
//	svc := process.NewService(table, checker)
//	res, err := svc.Run(process.RunArgs{
//	    Cmd:    []string{"sh", "-c", "echo hello"},
//	    Stdout: process.Piped,
//	})
//
// A non-zero StdoutRid duplicates an existing file or stdio resource for the
// child instead. Pipe ends are registered as childStdin/childStdout/
// childStderr resources and are read or written through the resource API.
//
// # Waiting
//
// Poll is a single non-blocking check. Status blocks the calling goroutine
// (never the table) until the child exits or the context is done. Abandoning
// a wait leaves the child running and registered.
//
// # Lifetime
//
// Removing a Child from the table kills the process if it has not exited yet.
// Closing the table therefore kills every remaining child.
//
// # Thread Safety
//
// Service is safe for concurrent use.
package process
