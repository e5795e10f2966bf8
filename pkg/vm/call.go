package vm

import "github.com/birdlang/bird/pkg/value"

// frame returns a pointer into the live frames slice so callers can mutate
// ip/handlers in place; safe to call between instructions (append only
// happens via call(), never mid-instruction-decode).
func (v *VM) frame() *callFrame {
	return &v.frames[len(v.frames)-1]
}

func (v *VM) pushHandler(h tryHandler) {
	f := v.frame()
	f.handlers = append(f.handlers, h)
}

func (v *VM) popHandler() {
	f := v.frame()
	f.handlers = f.handlers[:len(f.handlers)-1]
}

// callValue implements OP_CALL's callee dispatch: a closure pushes a new
// frame, a native runs synchronously, a class constructs an instance, and a
// bound method rewrites the receiver slot before forwarding to the
// underlying callable (spec.md §4.6 "call semantics").
func (v *VM) callValue(callee value.Value, argc int) error {
	if callee.Kind() == value.KindObject {
		obj := callee.AsObject()
		switch obj.Kind {
		case value.ObjClosure:
			return v.call(obj, argc)
		case value.ObjNative:
			return v.callNative(obj, argc)
		case value.ObjClass:
			return v.instantiate(obj, argc)
		case value.ObjBoundMethod:
			v.stack[v.top-argc-1] = obj.Receiver
			return v.callValue(value.FromObject(obj.Method), argc)
		}
	}
	return v.fail("can only call functions and classes")
}

// call pushes a new call frame for closure, checking arity and packing any
// trailing arguments into a list when the function is variadic (spec.md
// §3 "Variadic functions pack trailing arguments into a list; arity
// mismatch raises").
func (v *VM) call(closure *Object, argc int) error {
	fn := closure.Function
	if fn.Variadic {
		if argc < fn.Arity {
			return v.fail("expected at least %d arguments but got %d", fn.Arity, argc)
		}
		extra := argc - fn.Arity
		base := v.top - extra
		rest := value.NewListObject()
		rest.Items = append(rest.Items, v.stack[base:v.top]...)
		v.registerObject(rest)
		v.top = base
		v.push(value.FromObject(rest))
		argc = fn.Arity + 1
	} else if argc != fn.Arity {
		return v.fail("expected %d arguments but got %d", fn.Arity, argc)
	}

	if len(v.frames) >= framesMax {
		return v.fail("stack overflow")
	}
	v.frames = append(v.frames, callFrame{
		closure: closure,
		base:    v.top - argc - 1,
	})
	return nil
}

func (v *VM) callNative(native *Object, argc int) error {
	base := v.top - argc
	args := make([]value.Value, argc)
	copy(args, v.stack[base:v.top])

	result, err := native.Native(v, args)
	if err != nil {
		if err == errHandledRaise {
			return err
		}
		if _, ok := err.(*RuntimeError); ok {
			return err
		}
		return v.fail("%s", err.Error())
	}
	v.top = base - 1 // drop the native value and its arguments
	v.push(result)
	return nil
}

// instantiate implements calling a class as OP_CALL's callee: build an
// instance seeded from the class's field defaults, then either run the
// compiled initializer (if any) or, for the one built-in class this
// runtime predefines, fill in its fields natively (spec.md §8 scenario 5).
func (v *VM) instantiate(class *Object, argc int) error {
	if class != v.exceptionClass && class.Initializer == nil && argc != 0 {
		return v.fail("expected 0 arguments but got %d", argc)
	}

	instance := value.NewInstanceObject(class)
	v.registerObject(instance)
	v.stack[v.top-argc-1] = value.FromObject(instance)

	if class == v.exceptionClass {
		msg := ""
		if argc > 0 {
			msg = v.peek(0).String()
		}
		instance.InstanceFields.Set(value.FromObject(v.messageKey), value.FromObject(v.internString(msg)))
		v.top -= argc
		return nil
	}

	if class.Initializer != nil {
		return v.callValue(value.FromObject(class.Initializer), argc)
	}
	return nil
}

// invoke implements OP_INVOKE: `receiver.name(args)` fused into one
// dispatch, checking instance fields first (a field may itself hold a
// callable) before falling back to the class's method table (spec.md
// §4.6, mirroring clox's invoke/invokeFromClass split).
func (v *VM) invoke(name *Object, argc int) error {
	receiver := v.peek(argc)
	if !value.IsObjKind(receiver, value.ObjInstance) {
		return v.fail("only instances have methods")
	}
	instance := receiver.AsObject()
	if field, ok := instance.InstanceFields.Get(value.FromObject(name)); ok {
		v.stack[v.top-argc-1] = field
		return v.callValue(field, argc)
	}
	return v.invokeFromClass(instance.Class, name, argc)
}

func (v *VM) invokeFromClass(class *Object, name *Object, argc int) error {
	method, ok := class.Methods.Get(value.FromObject(name))
	if !ok {
		return v.fail("undefined method '%s'", name.Chars)
	}
	return v.callValue(method, argc)
}

// bindMethod looks up name on class and pairs it with the current
// receiver (popped off the stack top) into a bound-method value, used by
// plain `.name` property access and by `super.name` (OP_GET_SUPER).
func (v *VM) bindMethod(class *Object, name *Object) (value.Value, error) {
	method, ok := class.Methods.Get(value.FromObject(name))
	if !ok {
		return value.Nil(), v.fail("undefined property '%s'", name.Chars)
	}
	receiver := v.pop()
	bound := value.NewBoundMethodObject(receiver, method.AsObject())
	v.registerObject(bound)
	return value.FromObject(bound), nil
}

// indexGet implements OP_GET_INDEX for lists, dicts, and strings (spec.md
// §4.6 subscript semantics). A missing dict key yields the Empty sentinel
// rather than raising, matching Table.Get's own "absent" convention.
func (v *VM) indexGet(target, idx value.Value) (value.Value, error) {
	switch {
	case value.IsObjKind(target, value.ObjList):
		items := target.AsObject().Items
		if !idx.IsNumber() {
			return value.Nil(), v.fail("list index must be a number")
		}
		i := int(idx.AsNumber())
		if i < 0 || i >= len(items) {
			return value.Nil(), v.fail("list index out of range")
		}
		return items[i], nil
	case value.IsObjKind(target, value.ObjDict):
		val, ok := target.AsObject().Table.Get(idx)
		if !ok {
			return value.Empty(), nil
		}
		return val, nil
	case value.IsObjKind(target, value.ObjString):
		if !idx.IsNumber() {
			return value.Nil(), v.fail("string index must be a number")
		}
		chars := target.AsObject().Chars
		i := int(idx.AsNumber())
		if i < 0 || i >= len(chars) {
			return value.Nil(), v.fail("string index out of range")
		}
		return value.FromObject(v.internString(string(chars[i]))), nil
	default:
		return value.Nil(), v.fail("value is not indexable")
	}
}

// indexSet implements OP_SET_INDEX for lists and dicts; strings are
// immutable and have no assignable index (spec.md §3 "strings are
// immutable once interned").
func (v *VM) indexSet(target, idx, val value.Value) error {
	switch {
	case value.IsObjKind(target, value.ObjList):
		items := target.AsObject().Items
		if !idx.IsNumber() {
			return v.fail("list index must be a number")
		}
		i := int(idx.AsNumber())
		if i < 0 || i >= len(items) {
			return v.fail("list index out of range")
		}
		items[i] = val
		return nil
	case value.IsObjKind(target, value.ObjDict):
		dict := target.AsObject()
		if dict.Table.Set(idx, val) {
			dict.Keys = append(dict.Keys, idx)
		}
		return nil
	default:
		return v.fail("value does not support index assignment")
	}
}
