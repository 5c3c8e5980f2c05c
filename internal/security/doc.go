// Package security provides the capability gate for script operations.
//
// The security package implements a capability-based model for deciding
// whether a script may touch sensitive resources:
//
// # Capabilities
//
// Capabilities are hierarchical - granting a parent capability
// (e.g., "process") implicitly grants all child capabilities (e.g.,
// "process.spawn", "process.signal").
//
// Core capability categories:
//   - process.spawn: Spawn child processes and await their exit
//   - process.signal: Deliver signals to arbitrary process ids
//   - filesystem.read/write: File system access
//
// # Permissions
//
// The PermissionChecker validates operations against granted capabilities
// and optional path restrictions:
//
//   - File path allowlists/blocklists
//   - Workspace boundary enforcement
//
// Example usage:
//
//	checker := security.NewPermissionChecker("build.lua")
//	checker.Grant(security.CapabilityProcess)
//
//	// Gate before spawning
//	if err := checker.CheckRun(); err != nil {
//	    // errors.Is(err, security.ErrPermissionDenied) == true
//	}
package security
