package host

// Version is the luaproc release, set at build time with
// -ldflags "-X github.com/dshills/luaproc/internal/host.Version=...".
var Version = "dev"
