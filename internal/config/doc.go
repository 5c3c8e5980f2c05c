// Package config loads luaproc settings.
//
// Settings come from three places, later ones overriding earlier ones:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, chosen by extension
//  3. LUAPROC_* environment variables
//
// A Watcher reloads the file when it changes so permissions can be adjusted
// without restarting a long-running script.
package config
