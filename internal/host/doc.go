// Package host assembles a luaproc runtime: logger, resource table,
// permission checker, process service, Lua state, scheduler and API
// modules.
//
//	h, err := host.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//	err = h.RunFile(ctx, "build.lua", os.Args[2:])
//
// Closing the host closes the resource table, which kills every child that
// is still running.
package host
