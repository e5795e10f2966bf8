package vm

import (
	"fmt"
	"math"
	"os"

	"github.com/birdlang/bird/pkg/bytecode"
	"github.com/birdlang/bird/pkg/value"
)

func (v *VM) readByte() byte {
	f := v.frame()
	b := f.closure.Function.Code[f.ip]
	f.ip++
	return b
}

func (v *VM) readShort() int {
	hi := v.readByte()
	lo := v.readByte()
	return int(hi)<<8 | int(lo)
}

func (v *VM) readConstant() value.Value {
	return v.frame().closure.Function.Constants[v.readByte()]
}

func (v *VM) readString() *Object {
	return v.readConstant().AsObject()
}

func (v *VM) traceStack() {
	fmt.Fprint(os.Stderr, "          ")
	for i := 0; i < v.top; i++ {
		fmt.Fprintf(os.Stderr, "[ %s ]", v.stack[i].String())
	}
	fmt.Fprintln(os.Stderr)
}

// run is the interpreter's main dispatch loop: decode one instruction,
// execute it, repeat until the outermost frame returns (spec.md §4.6
// "Interpreter: call/return/exception/closure semantics"). Every opcode
// handler that can fail returns an error; errHandledRaise means a raise
// was caught and the frame/ip have already been repositioned to the
// handler, so the loop simply continues, while any other non-nil error
// propagates out of Interpret as an uncaught RuntimeError.
func (v *VM) run() error {
	for {
		if v.shouldDebugStack {
			v.traceStack()
		}
		var err error
		op := bytecode.Op(v.readByte())
		switch op {
		case bytecode.OpConstant:
			v.push(v.readConstant())
		case bytecode.OpNil:
			v.push(value.Nil())
		case bytecode.OpTrue:
			v.push(value.Bool(true))
		case bytecode.OpFalse:
			v.push(value.Bool(false))
		case bytecode.OpEmpty:
			v.push(value.Empty())
		case bytecode.OpPop:
			v.pop()

		case bytecode.OpAdd:
			err = v.execAdd()
		case bytecode.OpSubtract:
			err = v.numericBinary(op)
		case bytecode.OpMultiply:
			err = v.numericBinary(op)
		case bytecode.OpDivide:
			err = v.numericBinary(op)
		case bytecode.OpModulo:
			err = v.numericBinary(op)
		case bytecode.OpNegate:
			if !v.peek(0).IsNumber() {
				err = v.fail("operand must be a number")
			} else {
				v.push(value.Number(-v.pop().AsNumber()))
			}
		case bytecode.OpNot:
			v.push(value.Bool(!value.IsTruthy(v.pop())))

		case bytecode.OpEqual:
			b := v.pop()
			a := v.pop()
			v.push(value.Bool(value.Equal(a, b)))
		case bytecode.OpGreater:
			err = v.compare(op)
		case bytecode.OpLess:
			err = v.compare(op)

		case bytecode.OpJump:
			offset := v.readShort()
			v.frame().ip += offset
		case bytecode.OpJumpIfFalse:
			offset := v.readShort()
			if !value.IsTruthy(v.peek(0)) {
				v.frame().ip += offset
			}
		case bytecode.OpLoop:
			offset := v.readShort()
			v.frame().ip -= offset
		case bytecode.OpAnd:
			offset := v.readShort()
			if !value.IsTruthy(v.peek(0)) {
				v.frame().ip += offset
			}
		case bytecode.OpOr:
			offset := v.readShort()
			if value.IsTruthy(v.peek(0)) {
				v.frame().ip += offset
			}

		case bytecode.OpGetLocal:
			slot := int(v.readByte())
			v.push(v.stack[v.frame().base+slot])
		case bytecode.OpSetLocal:
			slot := int(v.readByte())
			v.stack[v.frame().base+slot] = v.peek(0)

		case bytecode.OpGetGlobal:
			name := v.readString()
			val, ok := v.globals.Get(value.FromObject(name))
			if !ok {
				err = v.fail("undefined variable '%s'", name.Chars)
			} else {
				v.push(val)
			}
		case bytecode.OpDefineGlobal:
			name := v.readString()
			v.globals.Set(value.FromObject(name), v.pop())
		case bytecode.OpSetGlobal:
			name := v.readString()
			if v.globals.Set(value.FromObject(name), v.peek(0)) {
				v.globals.Delete(value.FromObject(name))
				err = v.fail("undefined variable '%s'", name.Chars)
			}

		case bytecode.OpGetUpvalue:
			slot := int(v.readByte())
			up := v.frame().closure.Upvalues[slot]
			if up.Location != nil {
				v.push(*up.Location)
			} else {
				v.push(up.Closed)
			}
		case bytecode.OpSetUpvalue:
			slot := int(v.readByte())
			up := v.frame().closure.Upvalues[slot]
			if up.Location != nil {
				*up.Location = v.peek(0)
			} else {
				up.Closed = v.peek(0)
			}
		case bytecode.OpCloseUpvalue:
			v.closeUpvalues(v.top - 1)
			v.pop()

		case bytecode.OpClosure:
			v.execClosure()

		case bytecode.OpCall:
			argc := int(v.readByte())
			err = v.callValue(v.peek(argc), argc)
		case bytecode.OpInvoke:
			name := v.readString()
			argc := int(v.readByte())
			err = v.invoke(name, argc)
		case bytecode.OpInvokeSuper:
			name := v.readString()
			argc := int(v.readByte())
			superclass := v.pop().AsObject()
			err = v.invokeFromClass(superclass, name, argc)
		case bytecode.OpReturn:
			if done := v.execReturn(); done {
				return nil
			}
		case bytecode.OpReturnTry:
			if done := v.execReturnTry(); done {
				return nil
			}
		case bytecode.OpFinallyEnd:
			if done := v.execFinallyEnd(); done {
				return nil
			}

		case bytecode.OpClass:
			name := v.readString()
			class := value.NewClassObject(name)
			v.registerObject(class)
			v.push(value.FromObject(class))
		case bytecode.OpInherit:
			err = v.execInherit()
		case bytecode.OpMethod:
			name := v.readString()
			method := v.peek(0)
			class := v.peek(1).AsObject()
			class.Methods.Set(value.FromObject(name), method)
			if name.Chars == "@new" || name.Chars == "init" {
				class.Initializer = method.AsObject()
			}
			v.pop()
		case bytecode.OpField:
			name := v.readString()
			val := v.peek(0)
			class := v.peek(1).AsObject()
			class.Fields.Set(value.FromObject(name), val)
			v.pop()
		case bytecode.OpGetProperty:
			err = v.execGetProperty()
		case bytecode.OpSetProperty:
			v.execSetProperty()
		case bytecode.OpGetSuper:
			name := v.readString()
			superclass := v.pop().AsObject()
			bound, e := v.bindMethod(superclass, name)
			if e != nil {
				err = e
			} else {
				v.push(bound)
			}

		case bytecode.OpBuildList:
			v.execBuildList()
		case bytecode.OpBuildDict:
			v.execBuildDict()
		case bytecode.OpGetIndex:
			idx := v.pop()
			target := v.pop()
			val, e := v.indexGet(target, idx)
			if e != nil {
				err = e
			} else {
				v.push(val)
			}
		case bytecode.OpSetIndex:
			val := v.pop()
			idx := v.pop()
			target := v.pop()
			if e := v.indexSet(target, idx, val); e != nil {
				err = e
			} else {
				v.push(val)
			}

		case bytecode.OpImport:
			name := v.readString()
			if v.importHook == nil {
				err = v.fail("cannot import '%s': no module loader configured", name.Chars)
			} else {
				err = v.importHook(v, name.Chars)
			}

		case bytecode.OpPushTry:
			catchDelta := v.readShort()
			finallyDelta := v.readShort()
			base := v.frame().ip
			v.pushHandler(tryHandler{catchIP: base + catchDelta, finallyIP: base + finallyDelta, stackDepth: v.top})
		case bytecode.OpPopTry:
			v.popHandler()
		case bytecode.OpRaise:
			val := v.pop()
			err = v.raise(val)

		case bytecode.OpLen:
			err = v.execLen()
		case bytecode.OpToString:
			v.execToString()
		case bytecode.OpEcho:
			val := v.pop()
			fmt.Fprintln(v.out, val.String())

		default:
			err = v.fail("unknown opcode %d", byte(op))
		}

		if err != nil {
			if err == errHandledRaise {
				continue
			}
			return err
		}
	}
}

func (v *VM) execAdd() error {
	b := v.peek(0)
	a := v.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		v.pop()
		v.pop()
		v.push(value.Number(a.AsNumber() + b.AsNumber()))
	case value.IsObjKind(a, value.ObjString) && value.IsObjKind(b, value.ObjString):
		v.pop()
		v.pop()
		s := a.AsObject().Chars + b.AsObject().Chars
		v.push(value.FromObject(v.internString(s)))
	case value.IsObjKind(a, value.ObjList):
		items := append(append([]value.Value(nil), a.AsObject().Items...), b)
		list := value.NewListObject()
		v.registerObject(list) // a and b are still rooted on the stack here
		list.Items = items
		v.pop()
		v.pop()
		v.push(value.FromObject(list))
	default:
		return v.fail("operands must be two numbers, two strings, or a list and a value")
	}
	return nil
}

func (v *VM) numericBinary(op bytecode.Op) error {
	b := v.peek(0)
	a := v.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return v.fail("operands must be numbers")
	}
	v.pop()
	v.pop()
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case bytecode.OpSubtract:
		v.push(value.Number(x - y))
	case bytecode.OpMultiply:
		v.push(value.Number(x * y))
	case bytecode.OpDivide:
		if y == 0 {
			return v.fail("division by zero")
		}
		v.push(value.Number(x / y))
	case bytecode.OpModulo:
		if y == 0 {
			return v.fail("division by zero")
		}
		v.push(value.Number(math.Mod(x, y)))
	}
	return nil
}

func (v *VM) compare(op bytecode.Op) error {
	b := v.peek(0)
	a := v.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return v.fail("operands must be numbers")
	}
	v.pop()
	v.pop()
	x, y := a.AsNumber(), b.AsNumber()
	if op == bytecode.OpGreater {
		v.push(value.Bool(x > y))
	} else {
		v.push(value.Bool(x < y))
	}
	return nil
}

// execClosure implements OP_CLOSURE: wrap the constant function in a new
// closure, push it immediately to root it (captureUpvalue below can
// itself allocate and trigger a collection), then resolve each upvalue
// descriptor pair trailing the instruction.
func (v *VM) execClosure() {
	fn := v.readConstant().AsObject()
	closure := value.NewClosureObject(fn)
	v.registerObject(closure)
	v.push(value.FromObject(closure))
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := v.readByte()
		index := v.readByte()
		if isLocal == 1 {
			closure.Upvalues[i] = v.captureUpvalue(v.frame().base + int(index))
		} else {
			closure.Upvalues[i] = v.frame().closure.Upvalues[index]
		}
	}
}

// execReturn implements OP_RETURN: close upvalues owned by the returning
// frame, discard it, and splice the return value in where the callee and
// its arguments used to be. Reports true once the outermost frame has
// returned, telling run() to stop.
func (v *VM) execReturn() bool {
	result := v.pop()
	base := v.frame().base
	v.closeUpvalues(base)
	v.frames = v.frames[:len(v.frames)-1]
	if len(v.frames) == 0 {
		return true
	}
	v.top = base
	v.push(result)
	return false
}

// execReturnTry implements OP_RETURN_TRY: a `return` lexically inside a
// try block. If the current frame still has an active handler (the try
// this return is inside of hasn't reached its OP_POP_TRY/catch yet), the
// return value is stashed in v.pendingReturn and control jumps to that
// handler's finally arm instead of actually returning; OP_FINALLY_END
// completes the return once every enclosing finally has run. With no
// active handler left in this frame, it behaves exactly like OP_RETURN.
func (v *VM) execReturnTry() bool {
	result := v.pop()
	f := v.frame()
	if n := len(f.handlers); n > 0 {
		h := f.handlers[n-1]
		f.handlers = f.handlers[:n-1]
		v.closeUpvalues(h.stackDepth)
		v.top = h.stackDepth
		v.pendingReturn = &result
		f.ip = h.finallyIP
		return false
	}
	v.closeUpvalues(f.base)
	v.frames = v.frames[:len(v.frames)-1]
	if len(v.frames) == 0 {
		return true
	}
	v.top = f.base
	v.push(result)
	return false
}

// execFinallyEnd implements OP_FINALLY_END, emitted at the fallthrough
// point of every try statement's finally arm (spec.md §9 "finally ...
// equivalently as a single handler that re-raises [or, here, returns]
// after running"). With no pending return it is a no-op: normal
// completion and handled raises both fall through here and keep
// executing whatever follows the try statement. With a pending return,
// it either routes to the next enclosing handler's finally (nested try)
// or, once none remain in this frame, performs the actual return.
func (v *VM) execFinallyEnd() bool {
	if v.pendingReturn == nil {
		return false
	}
	f := v.frame()
	if n := len(f.handlers); n > 0 {
		h := f.handlers[n-1]
		f.handlers = f.handlers[:n-1]
		v.closeUpvalues(h.stackDepth)
		v.top = h.stackDepth
		f.ip = h.finallyIP
		return false
	}
	result := *v.pendingReturn
	v.pendingReturn = nil
	v.closeUpvalues(f.base)
	v.frames = v.frames[:len(v.frames)-1]
	if len(v.frames) == 0 {
		return true
	}
	v.top = f.base
	v.push(result)
	return false
}

// execInherit implements OP_INHERIT: copy the superclass's methods and
// fields into the subclass (spec.md §4.5 "single inheritance copies the
// parent's methods/fields before the child's own definitions run"), link
// SuperClass for OP_GET_SUPER/OP_INVOKE_SUPER, and drop the subclass the
// compiler pushed for this instruction (the superclass below it stays on
// the stack as the "super" local the compiler declared).
func (v *VM) execInherit() error {
	superVal := v.peek(1)
	if !value.IsObjKind(superVal, value.ObjClass) {
		return v.fail("superclass must be a class")
	}
	superclass := superVal.AsObject()
	subclass := v.peek(0).AsObject()
	superclass.Methods.AddAllInto(subclass.Methods)
	superclass.Fields.AddAllInto(subclass.Fields)
	subclass.SuperClass = superclass
	v.pop()
	return nil
}

func (v *VM) execGetProperty() error {
	name := v.readString()
	receiver := v.peek(0)
	if !value.IsObjKind(receiver, value.ObjInstance) {
		return v.fail("only instances have properties")
	}
	instance := receiver.AsObject()
	if val, ok := instance.InstanceFields.Get(value.FromObject(name)); ok {
		v.pop()
		v.push(val)
		return nil
	}
	bound, err := v.bindMethod(instance.Class, name)
	if err != nil {
		return err
	}
	v.push(bound)
	return nil
}

func (v *VM) execSetProperty() {
	name := v.readString()
	instance := v.peek(1).AsObject()
	val := v.pop()
	instance.InstanceFields.Set(value.FromObject(name), val)
	v.pop()
	v.push(val)
}

// execBuildList implements OP_BUILD_LIST: the elements are read off the
// stack by peeking (not popping) so they remain roots for registerObject's
// GC check, then the stack is trimmed to make room for the finished list
// (spec.md §4.3 push-protect discipline).
func (v *VM) execBuildList() {
	count := int(v.readByte())
	base := v.top - count
	list := value.NewListObject()
	list.Items = make([]value.Value, count)
	copy(list.Items, v.stack[base:v.top])
	v.registerObject(list)
	v.top = base
	v.push(value.FromObject(list))
}

func (v *VM) execBuildDict() {
	count := int(v.readByte())
	base := v.top - 2*count
	dict := value.NewDictObject()
	for i := 0; i < count; i++ {
		key := v.stack[base+2*i]
		val := v.stack[base+2*i+1]
		if dict.Table.Set(key, val) {
			dict.Keys = append(dict.Keys, key)
		}
	}
	v.registerObject(dict)
	v.top = base
	v.push(value.FromObject(dict))
}

func (v *VM) execLen() error {
	val := v.pop()
	switch {
	case value.IsObjKind(val, value.ObjList):
		v.push(value.Number(float64(len(val.AsObject().Items))))
	case value.IsObjKind(val, value.ObjDict):
		v.push(value.Number(float64(len(val.AsObject().Keys))))
	case value.IsObjKind(val, value.ObjString):
		v.push(value.Number(float64(len(val.AsObject().Chars))))
	default:
		return v.fail("value has no length")
	}
	return nil
}

// execToString implements OP_TO_STRING: pop a value and push its string
// coercion, already interned. This is the coercion spec.md §4.4 requires
// string interpolation to apply to each embedded expression before
// concatenating — a string operand is left untouched (no-op redundant
// intern through Value.String, still correct) and every other kind
// (number, bool, nil, list, dict, instance, ...) renders the same way
// echo does, via Value.String.
func (v *VM) execToString() {
	val := v.pop()
	if value.IsObjKind(val, value.ObjString) {
		v.push(val)
		return
	}
	v.push(value.FromObject(v.internString(val.String())))
}
