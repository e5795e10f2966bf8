//go:build !nanbox

package value

// Value is the default tagged-union representation: an explicit Kind tag
// plus a payload wide enough for either a float64 or an *Object. This is
// the straightforward encoding; value_nanbox.go (built with -tags nanbox)
// packs the same five variants into a single 64-bit word instead.
//
// The two files expose an identical method set and constructor set so
// every other package in this module (bytecode, compiler, vm) is written
// once against Value and compiles unchanged against either encoding.
type Value struct {
	kind Kind
	num  float64
	obj  *Object
	b    bool
}

// Nil returns the nil value.
func Nil() Value { return Value{kind: KindNil} }

// Empty returns the sentinel "no value" that Table.Get and dict indexing
// return for a missing key (spec.md §3: distinct from nil, never user
// constructible).
func Empty() Value { return Value{kind: KindEmpty} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// FromObject wraps a heap object pointer. Passing nil panics: every
// object-kind Value must point at a real allocation, since Kind()==KindObject
// is taken as a promise that AsObject() is safe to dereference.
func FromObject(o *Object) Value {
	if o == nil {
		panic("value: FromObject(nil)")
	}
	return Value{kind: KindObject, obj: o}
}

// Kind reports which of the five variants v holds.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean payload. Only meaningful when Kind() == KindBool.
func (v Value) AsBool() bool { return v.b }

// AsNumber returns the float64 payload. Only meaningful when Kind() == KindNumber.
func (v Value) AsNumber() float64 { return v.num }

// AsObject returns the object pointer. Only meaningful when Kind() == KindObject.
func (v Value) AsObject() *Object { return v.obj }
