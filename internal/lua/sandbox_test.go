package lua

import (
	"sort"
	"strings"
	"testing"

	glua "github.com/yuin/gopher-lua"
)

func TestSandboxInstall(t *testing.T) {
	state := newTestState(t)

	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "module"} {
		if v := state.GetGlobal(fn); v != glua.LNil {
			t.Errorf("%s should be removed, got %T", fn, v)
		}
	}
}

func TestSandboxRequire(t *testing.T) {
	state := newTestState(t)

	tests := []struct {
		name    string
		code    string
		wantErr string
	}{
		{"builtin", `assert(require("string") == string)`, ""},
		{"coroutine", `assert(require("coroutine") == coroutine)`, ""},
		{"io", `require("io")`, `module "io" is not available`},
		{"os", `require("os")`, `module "os" is not available`},
		{"path", `require("./evil")`, `module "./evil" is not available`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := state.DoString(tt.code)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("DoString(%q) error = %v", tt.code, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("DoString(%q) error = %v, want %q", tt.code, err, tt.wantErr)
			}
		})
	}
}

func TestSandboxModules(t *testing.T) {
	state := newTestState(t)
	state.RegisterModule("b", state.L.NewTable())
	state.RegisterModule("a", state.L.NewTable())

	names := state.Sandbox().Modules()
	sort.Strings(names)
	if strings.Join(names, ",") != "a,b" {
		t.Errorf("Modules() = %v, want [a b]", names)
	}
}
