//go:build nanbox

package value

import (
	"math"
	"unsafe"
)

// Value is the NaN-boxed representation described in spec.md §4.1: every
// value is a single 64-bit word. A real double is stored as its own IEEE-754
// bits. Every non-number variant is encoded as a quiet NaN payload: the
// exponent and mantissa's top bits are forced to the canonical QNAN pattern,
// and the low bits carry a small tag (nil/empty/false/true) or, with the
// sign bit additionally set, a 48-bit object pointer.
//
// This trades one thing away: a NaN whose payload bits would collide with
// the reserved QNAN pattern loses its payload and is stored as the
// canonical math.NaN() bit pattern instead. It is still a number and still
// unequal to itself; no arithmetic in this language relies on
// distinguishing NaN payloads, so the loss is invisible. This is the same tradeoff clox's NAN_BOXING option
// makes, which original_source's memory layout is modeled on.
type Value struct {
	bits uint64
}

const (
	qnan    uint64 = 0x7ffc000000000000
	signBit uint64 = 0x8000000000000000

	tagNil   uint64 = 1
	tagFalse uint64 = 2
	tagTrue  uint64 = 3
	tagEmpty uint64 = 4
)

// Nil returns the nil value.
func Nil() Value { return Value{bits: qnan | tagNil} }

// Empty returns the sentinel "no value".
func Empty() Value { return Value{bits: qnan | tagEmpty} }

// Bool wraps a boolean.
func Bool(b bool) Value {
	if b {
		return Value{bits: qnan | tagTrue}
	}
	return Value{bits: qnan | tagFalse}
}

// Number wraps a float64. A NaN whose bits overlap the reserved QNAN
// pattern is replaced by math.NaN()'s bit pattern, which stays outside
// that pattern and so still decodes as a number — see the type doc
// comment.
func Number(n float64) Value {
	bits := math.Float64bits(n)
	if bits&qnan == qnan {
		return Value{bits: math.Float64bits(math.NaN())}
	}
	return Value{bits: bits}
}

// FromObject wraps a heap object pointer into the sign-bit-tagged region.
func FromObject(o *Object) Value {
	if o == nil {
		panic("value: FromObject(nil)")
	}
	addr := uint64(uintptr(unsafe.Pointer(o)))
	return Value{bits: signBit | qnan | addr}
}

// Kind reports which of the five variants v holds.
func (v Value) Kind() Kind {
	if v.bits&qnan != qnan {
		return KindNumber
	}
	if v.bits&signBit != 0 {
		return KindObject
	}
	switch v.bits & ^signBit & ^qnan {
	case tagNil:
		return KindNil
	case tagEmpty:
		return KindEmpty
	case tagFalse, tagTrue:
		return KindBool
	default:
		return KindNil
	}
}

// AsBool returns the boolean payload. Only meaningful when Kind() == KindBool.
func (v Value) AsBool() bool {
	return v.bits&^signBit&^qnan == tagTrue
}

// AsNumber returns the float64 payload. Only meaningful when Kind() == KindNumber.
func (v Value) AsNumber() float64 {
	return math.Float64frombits(v.bits)
}

// AsObject returns the object pointer. Only meaningful when Kind() == KindObject.
// The pointed-to object is kept alive by the VM's allocation list, not by
// this word, so Go's garbage collector never sees this pointer — which is
// exactly why the VM's own mark-sweep cycle (pkg/vm) must never let an
// object drop off that list while any live Value still boxes it.
func (v Value) AsObject() *Object {
	addr := uintptr(v.bits &^ signBit &^ qnan)
	return (*Object)(unsafe.Pointer(addr))
}
