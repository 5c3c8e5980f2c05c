package lua

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Bridge converts values between Go and Lua.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// ToGoValue converts a Lua value to a Go value.
//
// Integral numbers become int64, sequences become []any and other tables
// become map[string]any. Functions convert to nil. Cycles are cut.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGo(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return b.tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

func (b *Bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	if n := sequenceLen(t); n > 0 {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = b.toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		m[keyString(k)] = b.toGo(v, visited)
	})
	return m
}

// sequenceLen returns n when t holds exactly the keys 1..n, else 0.
func sequenceLen(t *lua.LTable) int {
	count, maxN := 0, 0
	isSeq := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		kn, ok := k.(lua.LNumber)
		if !ok || float64(kn) != math.Trunc(float64(kn)) || kn < 1 {
			isSeq = false
			return
		}
		if int(kn) > maxN {
			maxN = int(kn)
		}
	})
	if !isSeq || count != maxN {
		return 0
	}
	return maxN
}

func keyString(k lua.LValue) string {
	switch kv := k.(type) {
	case lua.LString:
		return string(kv)
	case lua.LNumber:
		return fmt.Sprint(float64(kv))
	default:
		return k.String()
	}
}

// ToLuaValue converts a Go value to a Lua value.
//
// Structs convert to tables keyed by their `lua` tag, or the lowercased field
// name when untagged. Nil pointers convert to nil.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []string:
		t := b.L.CreateTable(len(val), 0)
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	case map[string]any:
		t := b.L.CreateTable(0, len(val))
		for k, e := range val {
			t.RawSetString(k, b.ToLuaValue(e))
		}
		return t
	default:
		return b.reflectToLua(reflect.ValueOf(v))
	}
}

func (b *Bridge) reflectToLua(rv reflect.Value) lua.LValue {
	if !rv.IsValid() {
		return lua.LNil
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return lua.LNil
		}
		return b.reflectToLua(rv.Elem())

	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())

	case reflect.Slice, reflect.Array:
		t := b.L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, b.reflectToLua(rv.Index(i)))
		}
		return t

	case reflect.Map:
		t := b.L.CreateTable(0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(b.reflectToLua(iter.Key()), b.reflectToLua(iter.Value()))
		}
		return t

	case reflect.Struct:
		return b.structToTable(rv)

	default:
		ud := b.L.NewUserData()
		ud.Value = rv.Interface()
		return ud
	}
}

func (b *Bridge) structToTable(rv reflect.Value) *lua.LTable {
	rt := rv.Type()
	t := b.L.CreateTable(0, rt.NumField())

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name := strings.ToLower(field.Name)
		if tag, _, _ := strings.Cut(field.Tag.Get("lua"), ","); tag != "" {
			if tag == "-" {
				continue
			}
			name = tag
		}
		t.RawSetString(name, b.reflectToLua(rv.Field(i)))
	}
	return t
}

// GetTableString gets a string field from a Lua table.
func (b *Bridge) GetTableString(t *lua.LTable, key string) (string, bool) {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s), true
	}
	return "", false
}

// GetTableInt gets an integral number field from a Lua table.
func (b *Bridge) GetTableInt(t *lua.LTable, key string) (int, bool) {
	n, ok := t.RawGetString(key).(lua.LNumber)
	if !ok || float64(n) != math.Trunc(float64(n)) {
		return 0, false
	}
	return int(n), true
}

// GetTableTable gets a table field from a Lua table.
func (b *Bridge) GetTableTable(t *lua.LTable, key string) (*lua.LTable, bool) {
	v, ok := t.RawGetString(key).(*lua.LTable)
	return v, ok
}

// StringMap converts a table of string keys to strings, sorted by key.
// Numbers are formatted; any other value is an error.
func (b *Bridge) StringMap(t *lua.LTable) ([][2]string, error) {
	var pairs [][2]string
	var err error
	t.ForEach(func(k, v lua.LValue) {
		if err != nil {
			return
		}
		ks, ok := k.(lua.LString)
		if !ok {
			err = fmt.Errorf("key %s is not a string", k.String())
			return
		}
		switch v.(type) {
		case lua.LString, lua.LNumber:
			pairs = append(pairs, [2]string{string(ks), v.String()})
		default:
			err = fmt.Errorf("value of %q is a %s, not a string", string(ks), v.Type())
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs, nil
}
