package vm

import (
	"errors"
	"fmt"

	"github.com/birdlang/bird/pkg/value"
)

// errHandledRaise is returned by the fail/raise helpers below when a raised
// value was caught by some active handler: run()'s dispatch loop treats it
// as "instruction pointer and stack have already been adjusted, resume the
// loop" rather than as a failure to propagate out of Interpret.
var errHandledRaise = errors.New("vm: raise handled")

// initExceptionClass builds the one built-in class this runtime predefines
// (spec.md §8 scenario 5, `raise Exception("message")` / `e.message`).
// Every other class is user-defined; this one exists natively because its
// constructor needs to run before any bytecode has compiled, and because a
// runtime-detected error (a native's RaiseError, or a type mismatch inside
// run()) needs some instance to wrap its message in without going through
// the compiler at all.
func (v *VM) initExceptionClass() {
	name := v.internString("Exception")
	class := value.NewClassObject(name)
	v.registerObject(class)
	v.globals.Set(value.FromObject(name), value.FromObject(class))
	v.exceptionClass = class
	v.messageKey = v.internString("message")
}

// newExceptionValue builds an Exception instance carrying msg as its
// "message" field, the same shape a scripted `Exception("msg")` call
// produces (see instantiate's special case for v.exceptionClass).
func (v *VM) newExceptionValue(msg string) value.Value {
	instance := value.NewInstanceObject(v.exceptionClass)
	v.registerObject(instance)
	v.push(value.FromObject(instance)) // push-protect across the Set below
	instance.InstanceFields.Set(value.FromObject(v.messageKey), value.FromObject(v.internString(msg)))
	v.pop()
	return value.FromObject(instance)
}

// fail is the internal error-reporting path for conditions the interpreter
// itself detects (type mismatches, undefined variables, division by zero,
// arity mismatches...). It raises a fresh Exception the same way a user's
// `raise` statement would, so these are catchable by ordinary try/catch
// (spec.md §4.6: "runtime errors raise a runtime error object that can be
// caught like any other raised value").
func (v *VM) fail(format string, args ...interface{}) error {
	return v.raise(v.newExceptionValue(fmt.Sprintf(format, args...)))
}

// raise implements OP_RAISE and every internal fail() call: it captures the
// current call stack (in case nothing catches this and Interpret needs to
// report it), then searches outward through active frames for a handler.
func (v *VM) raise(val value.Value) error {
	frames := v.captureStackFrames()
	if v.propagateRaise(val) {
		return errHandledRaise
	}
	return &RuntimeError{Message: v.exceptionMessage(val), Frames: frames}
}

// propagateRaise implements spec.md §4.6's unwind: search the innermost
// active frame's handler stack first; if it has one, jump to its catch arm
// with the stack trimmed back to the depth it was pushed at and the raised
// value sitting on top (ready for the catch clause's implicit binding).
// If a frame has no active handler, close its upvalues, discard it, and
// retry in the caller. Returns false once every frame is exhausted.
func (v *VM) propagateRaise(val value.Value) bool {
	for len(v.frames) > 0 {
		f := v.frame()
		if n := len(f.handlers); n > 0 {
			h := f.handlers[n-1]
			f.handlers = f.handlers[:n-1]
			v.closeUpvalues(h.stackDepth)
			v.top = h.stackDepth
			v.push(val)
			f.ip = h.catchIP
			return true
		}
		v.closeUpvalues(f.base)
		v.frames = v.frames[:len(v.frames)-1]
	}
	return false
}

// captureStackFrames snapshots the active call stack for a RuntimeError,
// before propagateRaise has a chance to pop any of it away.
func (v *VM) captureStackFrames() []StackFrame {
	out := make([]StackFrame, 0, len(v.frames))
	for i := range v.frames {
		f := &v.frames[i]
		fn := f.closure.Function
		name := "<script>"
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		line := 0
		if f.ip > 0 && f.ip-1 < len(fn.Lines) {
			line = fn.Lines[f.ip-1]
		}
		out = append(out, StackFrame{FunctionName: name, Line: line})
	}
	return out
}

// exceptionMessage extracts the display message for a raised value: an
// Exception instance's "message" field if it has one, otherwise the
// value's ordinary string form (so `raise "plain string"` and `raise 42`
// both still print something sensible).
func (v *VM) exceptionMessage(val value.Value) string {
	if value.IsObjKind(val, value.ObjInstance) {
		inst := val.AsObject()
		if m, ok := inst.InstanceFields.Get(value.FromObject(v.messageKey)); ok {
			return m.String()
		}
	}
	return val.String()
}
