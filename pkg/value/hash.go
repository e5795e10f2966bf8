package value

import (
	"math"
	"unsafe"
)

// objectAddr returns the bit pattern of an Object pointer, used only for
// hashing non-string object keys and never exposed or relied upon for
// anything beyond table bucket placement.
func objectAddr(o *Object) uintptr {
	return uintptr(unsafe.Pointer(o))
}

// FNV-1a 32-bit offset basis and prime, per spec.md §3: strings cache a
// 32-bit hash computed with FNV-1a over their raw bytes.
const (
	fnvOffsetBasis32 uint32 = 2166136261
	fnvPrime32       uint32 = 16777619
)

// HashBytes computes the FNV-1a hash of s. Used once at string
// construction time; the result is cached on the Object so later hash
// table operations never rehash the same string twice.
func HashBytes(s string) uint32 {
	h := fnvOffsetBasis32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// HashValue hashes a Value for use as a table key. String keys use their
// cached FNV-1a hash (the ObjString case below); every other kind of key
// hashes by bit pattern, per spec.md §4.2 ("non-string keys hash by bit
// pattern").
func HashValue(v Value) uint32 {
	switch v.Kind() {
	case KindNil:
		return 0x9e3779b9
	case KindEmpty:
		return 0x85ebca6b
	case KindBool:
		if v.AsBool() {
			return 1
		}
		return 0
	case KindNumber:
		bits := math.Float64bits(v.AsNumber())
		return uint32(bits) ^ uint32(bits>>32)
	case KindObject:
		obj := v.AsObject()
		if obj != nil && obj.Kind == ObjString {
			return obj.Hash
		}
		// Pointer identity hash for non-string objects: fold the
		// pointer's bit pattern, matching "non-string keys hash by bit
		// pattern" for object keys too.
		p := objectAddr(obj)
		return uint32(p) ^ uint32(p>>32)
	default:
		return 0
	}
}
