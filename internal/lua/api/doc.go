// Package api provides the Lua modules scripts use to reach the host.
//
// Each module is a table registered as a global and made available through
// require. The luaproc module aggregates all of them:
//
//	local luaproc = require("luaproc")
//	local child = luaproc.process.run({cmd = {"echo", "hi"}, stdout = "piped"})
//	local out = luaproc.resources.read(child.stdout_rid)
//	local status = luaproc.process.status(child.rid)
//
// Calls that wait on the OS (process.status, resources.read,
// resources.write, task.sleep) suspend only the calling task. Errors reach
// scripts as Lua errors of the form "Class: message", where Class is one of
// the names returned by process.ErrorClass.
package api
