package api

import (
	"errors"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaproc/internal/process"
	"github.com/dshills/luaproc/internal/resource"
)

// FormatError renders err the way scripts see it: "Class: message".
func FormatError(err error) string {
	return process.ErrorClass(err) + ": " + err.Error()
}

// invalidArg returns an error of class InvalidArgument.
func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", process.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// toRid converts argument n to a resource id.
func toRid(L *lua.LState, n int) (resource.ID, error) {
	num := L.CheckNumber(n)
	return ridFrom(num)
}

func ridFrom(num lua.LNumber) (resource.ID, error) {
	f := float64(num)
	if f != math.Trunc(f) || f < 0 || f > math.MaxUint32 {
		return 0, invalidArg("%v is not a resource id", f)
	}
	return resource.ID(f), nil
}

var errCoroutineMissing = errors.New("coroutine library is not open")
