package sandbox

import (
	"context"
	"fmt"
	"math"

	"github.com/Shopify/go-lua"
)

const (
	luaGlobalTable = "_G"
	luaHookCount   = 1000
	luaOverflow    = "stack overflow"
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// runLua loads the chunk, which either returns the entry function or
// defines a global named code, and calls it with the inputs table. The
// interpreter raises an error at its next hook once ctx ends, and when a
// call goes deeper than the call stack limit
func runLua(
	ctx context.Context, unit *CodeUnit, inputs map[string]any, lim Limits,
) (any, error) {
	l := lua.NewState()
	defer l.SetTop(0)
	openSandbox(l)
	lua.SetDebugHook(l, luaGuard(ctx, lim.MaxCallStack),
		lua.MaskCall|lua.MaskCount, luaHookCount,
	)

	if err := lua.LoadString(l, unit.Source); err != nil {
		return nil, NewCodeError(luaMessage(l, err))
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return nil, NewCodeError(luaMessage(l, err))
	}
	if !l.IsFunction(-1) {
		l.Pop(1)
		l.Global(entryFunction)
		if !l.IsFunction(-1) {
			return nil, ErrNoEntryFunction
		}
	}

	pushLua(l, inputs, 0, lim.MaxCallStack)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return nil, NewCodeError(luaMessage(l, err))
	}
	res := luaToGo(l, -1, 0, lim.MaxCallStack)
	l.Pop(1)
	return res, nil
}

func openSandbox(l *lua.State) {
	lua.OpenLibraries(l)
	l.Global(luaGlobalTable)
	for _, name := range luaExclude {
		l.PushNil()
		l.SetField(-2, name)
	}
	l.Pop(1)
}

func luaGuard(ctx context.Context, limit int) lua.Hook {
	return func(l *lua.State, ar lua.Debug) {
		if err := ctx.Err(); err != nil {
			lua.Errorf(l, "%s", err.Error())
		}
		if ar.Event != lua.HookCall || limit <= 0 {
			return
		}
		if _, ok := lua.Stack(l, limit); ok {
			lua.Errorf(l, luaOverflow)
		}
	}
}

func luaMessage(l *lua.State, err error) string {
	if msg, ok := l.ToString(-1); ok && msg != "" {
		return msg
	}
	return err.Error()
}

func tooDeep(depth, limit int) bool {
	return limit > 0 && depth > limit
}

func pushLua(l *lua.State, value any, depth, limit int) {
	if tooDeep(depth, limit) {
		l.PushNil()
		return
	}
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case string:
		l.PushString(v)
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushInteger(int(v))
	case float64:
		l.PushNumber(v)
	case []any:
		l.CreateTable(len(v), 0)
		for i, item := range v {
			pushLua(l, item, depth+1, limit)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(v))
		for k, item := range v {
			pushLua(l, item, depth+1, limit)
			l.SetField(-2, k)
		}
	default:
		l.PushString(fmt.Sprintf("%v", v))
	}
}

func luaToGo(l *lua.State, index, depth, limit int) any {
	index = l.AbsIndex(index)
	switch l.TypeOf(index) {
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int(n)
		}
		return n
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeTable:
		if tooDeep(depth, limit) {
			return nil
		}
		return luaTable(l, index, depth, limit)
	default:
		return nil
	}
}

func luaTable(l *lua.State, index, depth, limit int) any {
	length := l.RawLength(index)
	count := 0
	l.PushNil()
	for l.Next(index) {
		count++
		l.Pop(1)
	}

	if length > 0 && length == count {
		res := make([]any, length)
		for i := 1; i <= length; i++ {
			l.RawGetInt(index, i)
			res[i-1] = luaToGo(l, -1, depth+1, limit)
			l.Pop(1)
		}
		return res
	}

	res := make(map[string]any, count)
	l.PushNil()
	for l.Next(index) {
		var key string
		if l.TypeOf(-2) == lua.TypeString {
			key, _ = l.ToString(-2)
		} else {
			key = fmt.Sprint(luaToGo(l, -2, depth+1, limit))
		}
		res[key] = luaToGo(l, -1, depth+1, limit)
		l.Pop(1)
	}
	return res
}
