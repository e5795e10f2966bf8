package value

import "strconv"

// Kind is the tag distinguishing the five value variants from spec.md §3:
// number, boolean, nil, empty, or heap object pointer.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindEmpty
	KindObject
)

// Value is implemented twice, selected by build tag:
//   - value_tagged.go (default): a tagged-union struct, simple and
//     portable.
//   - value_nanbox.go (-tags nanbox): a NaN-boxed 64-bit word, matching
//     spec.md §4.1's "sign bit + quiet-NaN bits identify the tag; low 48
//     bits hold an object pointer" layout.
//
// Both expose the same method set (Kind, IsNil, IsBool, IsNumber,
// IsEmpty, IsObject, AsBool, AsNumber, AsObject, String) and the same
// package-level constructors (Nil, Empty, Bool, Number, FromObject), so
// everything below this point is encoding-agnostic and compiles against
// either.

// Equal implements spec.md §4.1's VM-level equality: numeric equality for
// numbers (so NaN != NaN, per IEEE-754), pointer equality for interned
// strings and all other objects, and tag equality for nil/empty/bool.
// Structural equality for lists and dicts is deliberately not here — it
// is provided only via explicit library calls, not this operator.
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindNil, KindEmpty:
		return true
	case KindBool:
		return a.AsBool() == b.AsBool()
	case KindNumber:
		return a.AsNumber() == b.AsNumber()
	case KindObject:
		return a.AsObject() == b.AsObject()
	default:
		return false
	}
}

// IsTruthy implements the language's notion of "falsy": nil, empty, and
// boolean false are falsy; everything else (including 0 and "") is
// truthy. Only nil/empty/false are excluded so that arithmetic and string
// results behave predictably in conditionals.
func IsTruthy(v Value) bool {
	switch v.Kind() {
	case KindNil, KindEmpty:
		return false
	case KindBool:
		return v.AsBool()
	default:
		return true
	}
}

// String renders v for echo/print and error messages.
func (v Value) String() string {
	switch v.Kind() {
	case KindNil:
		return "nil"
	case KindEmpty:
		return "empty"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.AsNumber())
	case KindObject:
		return v.AsObject().String()
	default:
		return "?"
	}
}

// FormatNumber renders a number the way the language's default number
// format does, used both by Value.String and by the to_string/to_number
// round-trip property in spec.md §8. Integral floats print without a
// decimal point; everything else uses the shortest round-trippable
// representation.
func FormatNumber(f float64) string {
	if f == float64(int64(f)) && !isNegativeZero(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func isNegativeZero(f float64) bool {
	return f == 0 && 1/f < 0
}

// IsNil, IsBool, IsNumber, IsEmpty, IsObject are convenience wrappers over
// Kind(), defined once here against the shared method set.
func (v Value) IsNil() bool    { return v.Kind() == KindNil }
func (v Value) IsBool() bool   { return v.Kind() == KindBool }
func (v Value) IsNumber() bool { return v.Kind() == KindNumber }
func (v Value) IsEmpty() bool  { return v.Kind() == KindEmpty }
func (v Value) IsObject() bool { return v.Kind() == KindObject }

// IsObjKind reports whether v is a heap object of the given kind.
func IsObjKind(v Value, k ObjKind) bool {
	return v.Kind() == KindObject && v.AsObject() != nil && v.AsObject().Kind == k
}

// UpvalueCount reports the number of (is_local,index) descriptor pairs
// trailing an OP_CLOSURE instruction whose constant operand is this value,
// or 0 if v isn't a function. Lets pkg/bytecode's disassembler skip those
// trailing bytes without importing this package (see bytecode.Constant).
func (v Value) UpvalueCount() int {
	if v.Kind() != KindObject {
		return 0
	}
	o := v.AsObject()
	if o == nil || o.Kind != ObjFunction {
		return 0
	}
	return o.UpvalueCount
}
