// Package value implements the runtime's value representation, heap
// object model, and hash table.
//
// These three concerns live in one package rather than three because they
// are mutually referential: a Value can hold a pointer to an Object, an
// Object's list/dict variants hold Values, and the hash table (used for
// globals, instance fields, class methods, and string interning alike)
// stores Values as both keys and values. In the C runtime this module is
// modeled on (see original_source/src/object.c, value.c, table.c) that
// mutual reference is resolved with forward-declared structs sharing one
// translation unit; Go has no equivalent across package boundaries, so the
// three stay together here.
//
// Object variants are a closed set (ObjKind below), dispatched by a tag
// test and switch rather than by Go type assertions on many concrete
// struct types. This keeps every heap object a single concrete pointer
// type (*Object), which is what makes the NaN-boxed Value encoding
// (value_nanbox.go) possible: there is exactly one pointer shape to box.
package value

import "fmt"

// ObjKind discriminates the variant an Object carries. Every heap object
// is one of these; there is no dynamic-type machinery beyond this tag.
type ObjKind uint8

const (
	ObjString ObjKind = iota
	ObjList
	ObjDict
	ObjFunction
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjNative
)

func (k ObjKind) String() string {
	switch k {
	case ObjString:
		return "string"
	case ObjList:
		return "list"
	case ObjDict:
		return "dict"
	case ObjFunction:
		return "function"
	case ObjClosure:
		return "closure"
	case ObjUpvalue:
		return "upvalue"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjBoundMethod:
		return "bound method"
	case ObjNative:
		return "native function"
	default:
		return "unknown"
	}
}

// NativeContext is the minimal VM surface a native function needs: the
// ability to push a not-yet-rooted value during construction (the
// push-protect discipline, spec.md §4.3) and to raise a runtime error
// without importing the vm package (which would cycle back here).
type NativeContext interface {
	Push(Value) error
	Pop() (Value, error)
	NewString(s string) *Object
	RaiseError(format string, args ...interface{}) error
	Write(s string)
}

// NativeFn is the native-function calling convention described in
// spec.md §6: a native receives the VM (here, the narrower NativeContext)
// plus its arguments, and returns a value or an error.
type NativeFn func(ctx NativeContext, args []Value) (Value, error)

// Object is the heap object header plus every variant's payload, unioned
// into one struct (spec.md §3 "Heap object header"). Only the fields for
// the active Kind are meaningful; the rest are zero. This wastes some
// memory relative to a true tagged union or per-kind struct hierarchy,
// but keeps allocation, GC tracing, and NaN-boxing all working against a
// single pointer type, matching the "prefer an explicit discriminant over
// dynamic-type machinery" guidance in spec.md §9.
type Object struct {
	Kind   ObjKind
	Marked bool
	// Next links every live heap object into the VM's global allocation
	// list (spec.md §3 invariant: "every reachable value's object pointer
	// is in the allocation list"). Objects are only ever created by an
	// allocator that prepends to this list.
	Next *Object

	// --- String ---
	Chars string
	Hash  uint32 // cached FNV-1a hash over Chars

	// --- List ---
	Items []Value

	// --- Dict: ordered keys plus a hash table for O(1) lookup. ---
	Keys  []Value
	Table *Table

	// --- Function: immutable bytecode blob. Code/Lines/Constants are
	// filled in by the compiler and never mutated after. ---
	Code         []byte
	Lines        []int
	Constants    []Value
	Arity        int
	Variadic     bool
	UpvalueCount int
	Name         *Object // ObjString, nullable for the top-level script
	IsScript     bool

	// --- Closure ---
	Function *Object   // the ObjFunction this closure wraps
	Upvalues []*Object // each an ObjUpvalue, length == Function.UpvalueCount

	// --- Upvalue ---
	// Location is non-nil while OPEN and points at a stack slot owned by
	// the VM. Closed holds the value once CLOSED; Location becomes nil
	// and never points at the stack again (spec.md §3: "the transition
	// OPEN->CLOSED is one-way").
	Location *Value
	Closed   Value
	// OpenNext links open upvalues in the VM's per-VM list, ordered by
	// descending stack address. Separate from Next (the allocation list)
	// because an upvalue belongs to both lists simultaneously.
	OpenNext *Object

	// --- Class ---
	SuperClass  *Object // ObjClass, nil for root classes
	Methods     *Table  // string name -> ObjClosure/ObjNative
	Fields      *Table  // string name -> default Value
	Initializer *Object // cached ObjClosure for the initializer, nullable

	// --- Instance ---
	Class          *Object // ObjClass
	InstanceFields *Table  // string name -> Value, shallow-copied from Class.Fields

	// --- Bound method ---
	Receiver Value
	Method   *Object // ObjClosure or ObjNative

	// --- Native ---
	Native     NativeFn
	NativeName string
}

// NewStringObject builds a raw string object. Hash must already be
// computed by the caller (see HashBytes) because interning needs the hash
// before deciding whether to allocate at all.
func NewStringObject(chars string, hash uint32) *Object {
	return &Object{Kind: ObjString, Chars: chars, Hash: hash}
}

// NewListObject builds an empty list object.
func NewListObject() *Object {
	return &Object{Kind: ObjList}
}

// NewDictObject builds an empty ordered dict object.
func NewDictObject() *Object {
	return &Object{Kind: ObjDict, Table: NewTable()}
}

// NewFunctionObject builds an empty function blob, ready for the compiler
// to append instructions and constants to.
func NewFunctionObject() *Object {
	return &Object{Kind: ObjFunction}
}

// NewClosureObject wraps a function object with upvalue slots sized to
// match it.
func NewClosureObject(fn *Object) *Object {
	return &Object{
		Kind:     ObjClosure,
		Function: fn,
		Upvalues: make([]*Object, fn.UpvalueCount),
	}
}

// NewOpenUpvalue builds an upvalue pointing at a live stack slot.
func NewOpenUpvalue(slot *Value) *Object {
	return &Object{Kind: ObjUpvalue, Location: slot}
}

// NewClassObject builds a class with empty method/field tables.
func NewClassObject(name *Object) *Object {
	return &Object{
		Kind:    ObjClass,
		Name:    name,
		Methods: NewTable(),
		Fields:  NewTable(),
	}
}

// NewInstanceObject builds an instance whose field table is a shallow
// copy of its class's field defaults (spec.md §3 invariant), mirroring
// original_source/src/object.c's new_instance -> table_add_all.
func NewInstanceObject(class *Object) *Object {
	inst := &Object{
		Kind:           ObjInstance,
		Class:          class,
		InstanceFields: NewTable(),
	}
	class.Fields.AddAllInto(inst.InstanceFields)
	return inst
}

// NewBoundMethodObject pairs a receiver with a callable (closure or
// native) obtained without an immediate call, e.g. `obj.method`.
func NewBoundMethodObject(receiver Value, method *Object) *Object {
	return &Object{Kind: ObjBoundMethod, Receiver: receiver, Method: method}
}

// NewNativeObject wraps a Go function pointer as a callable native value.
func NewNativeObject(name string, fn NativeFn) *Object {
	return &Object{Kind: ObjNative, NativeName: name, Native: fn}
}

// String renders a debug/echo representation of the object. This is the
// "print a value" path used by echo and by error messages; it is not
// used for equality (spec.md §4.1: object equality is pointer identity,
// never structural, except via explicit library calls for lists/dicts).
func (o *Object) String() string {
	if o == nil {
		return "nil"
	}
	switch o.Kind {
	case ObjString:
		return o.Chars
	case ObjList:
		return formatList(o)
	case ObjDict:
		return formatDict(o)
	case ObjFunction:
		if o.IsScript {
			return "<script>"
		}
		if o.Name != nil {
			return fmt.Sprintf("<function %s>", o.Name.Chars)
		}
		return "<function>"
	case ObjClosure:
		return o.Function.String()
	case ObjUpvalue:
		return "<upvalue>"
	case ObjClass:
		return o.Name.Chars
	case ObjInstance:
		return fmt.Sprintf("<%s instance>", o.Class.Name.Chars)
	case ObjBoundMethod:
		return o.Method.String()
	case ObjNative:
		return fmt.Sprintf("<native %s>", o.NativeName)
	default:
		return "<object>"
	}
}

func formatList(o *Object) string {
	s := "["
	for i, v := range o.Items {
		if i > 0 {
			s += ", "
		}
		s += v.String()
	}
	return s + "]"
}

func formatDict(o *Object) string {
	s := "{"
	for i, k := range o.Keys {
		if i > 0 {
			s += ", "
		}
		v, _ := o.Table.Get(k)
		s += fmt.Sprintf("%s: %s", k.String(), v.String())
	}
	return s + "}"
}
