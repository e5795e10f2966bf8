package vm

import (
	"unsafe"

	"github.com/birdlang/bird/pkg/value"
)

// captureUpvalue returns the open upvalue for the stack slot at index local
// (an absolute index into v.stack), reusing an existing one if this slot is
// already captured by another closure (spec.md §4.3: "capturing the same
// local twice shares one upvalue object"). The open list is kept sorted by
// descending stack index so the search can stop as soon as it passes the
// target slot.
func (v *VM) captureUpvalue(local int) *Object {
	var prev *Object
	cur := v.openUpvalues
	for cur != nil && stackIndexOf(v, cur) > local {
		prev = cur
		cur = cur.OpenNext
	}
	if cur != nil && stackIndexOf(v, cur) == local {
		return cur
	}

	created := value.NewOpenUpvalue(&v.stack[local])
	v.registerObject(created)
	created.OpenNext = cur
	if prev == nil {
		v.openUpvalues = created
	} else {
		prev.OpenNext = created
	}
	return created
}

// stackIndexOf recovers the absolute stack index an open upvalue points at,
// by pointer arithmetic against the VM's own backing array.
func stackIndexOf(v *VM, up *Object) int {
	base := unsafe.Pointer(&v.stack[0])
	slot := unsafe.Pointer(up.Location)
	return int((uintptr(slot) - uintptr(base)) / unsafe.Sizeof(v.stack[0]))
}

// closeUpvalues closes every open upvalue at or above the stack slot last,
// copying each one's value out of the stack into its own Closed field and
// severing Location (spec.md §4.3: "the OPEN->CLOSED transition is
// one-way"). Called when a scope holding captured locals exits or a
// function returns.
func (v *VM) closeUpvalues(last int) {
	for v.openUpvalues != nil && stackIndexOf(v, v.openUpvalues) >= last {
		up := v.openUpvalues
		up.Closed = *up.Location
		up.Location = nil
		v.openUpvalues = up.OpenNext
		up.OpenNext = nil
	}
}
