// Package main is the entry point for luaproc.
package main

import "github.com/dshills/luaproc/internal/cli"

func main() {
	cli.Execute()
}
