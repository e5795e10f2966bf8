package vm

import (
	"strings"
	"time"

	"github.com/birdlang/bird/pkg/value"
)

// registerNatives binds the native functions every VM starts with. This
// core deliberately stays small: clock and print exist to exercise the
// native-function calling convention (spec.md §6) end to end, not to give
// scripts a standard library. A fuller built-in method library (string/list
// helpers, I/O, regex) is out of scope; see DESIGN.md.
func registerNatives(v *VM) {
	defineNative(v, "clock", nativeClock)
	defineNative(v, "print", nativePrint)
}

func defineNative(v *VM, name string, fn value.NativeFn) {
	native := value.NewNativeObject(name, fn)
	v.registerObject(native)
	v.globals.Set(value.FromObject(v.internString(name)), value.FromObject(native))
}

func nativeClock(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
}

func nativePrint(ctx value.NativeContext, args []value.Value) (value.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	ctx.Write(strings.Join(parts, " "))
	ctx.Write("\n")
	return value.Nil(), nil
}
