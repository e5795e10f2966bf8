package vm

import (
	"fmt"

	"github.com/birdlang/bird/pkg/value"
)

// objectSize is a rough per-kind byte cost used to drive the collector's
// pacing heuristic (spec.md §4.3: "next_gc := bytes_allocated * 2 after each
// cycle"). It doesn't need to be exact, only proportional, since it only
// ever feeds a threshold comparison.
func objectSize(o *value.Object) int64 {
	base := int64(32)
	switch o.Kind {
	case value.ObjString:
		return base + int64(len(o.Chars))
	case value.ObjList:
		return base + int64(len(o.Items))*16
	case value.ObjDict:
		return base + int64(len(o.Keys))*32
	case value.ObjFunction:
		return base + int64(len(o.Code)) + int64(len(o.Constants))*16
	case value.ObjClosure:
		return base + int64(len(o.Upvalues))*8
	default:
		return base
	}
}

// registerObject prepends o to the allocation list and accounts for its
// size, triggering a collection first if the configured threshold has been
// crossed (spec.md §4.3 "every allocation checks bytes_allocated against
// next_gc before linking the new object in").
func (v *VM) registerObject(o *Object) {
	if v.bytesAllocated > v.nextGC {
		v.collectGarbage()
	}
	o.Next = v.objects
	v.objects = o
	v.bytesAllocated += objectSize(o)
}

// Object is a local alias so gc.go and the rest of pkg/vm read naturally
// without repeating the value. qualifier on every allocation site.
type Object = value.Object

// internString returns the interned Object for s, allocating and
// registering a new one only if no equal string is already present (spec.md
// §3: "construction returns the pre-existing entry if contents+length+hash
// match").
func (v *VM) internString(s string) *Object {
	hash := value.HashBytes(s)
	if existing := v.strings.FindInternedString(s, hash); existing != nil {
		return existing
	}
	obj := value.NewStringObject(s, hash)
	v.registerObject(obj)
	// Push-protect (spec.md §4.3): the string stays on the stack while it is
	// inserted into the intern table. Table.Set itself never runs a
	// collection; the bracket mirrors the allocator discipline.
	v.push(value.FromObject(obj))
	v.strings.Set(value.FromObject(obj), value.Bool(true))
	v.pop()
	return obj
}

// NewString implements value.NativeContext for native functions that need
// to construct a result string.
func (v *VM) NewString(s string) *Object {
	return v.internString(s)
}

// Write implements value.NativeContext, letting natives (e.g. print) share
// the VM's configured output stream with OP_ECHO rather than writing
// straight to stdout.
func (v *VM) Write(s string) {
	fmt.Fprint(v.out, s)
}

// internConstants walks a freshly compiled function's constant pool,
// replacing every raw string constant the compiler emitted with the
// canonical interned object (spec.md §3: two strings with equal contents
// are the same object). The compiler has no VM reference and so cannot
// intern as it emits; this pass is the one place that gap gets closed,
// run once per Interpret call before the function is reachable from
// anywhere else. It recurses into nested function constants (closures
// compiled inside this one) since those carry their own constant pools.
func (v *VM) internConstants(fn *Object) {
	if fn.Name != nil {
		fn.Name = v.internString(fn.Name.Chars)
	}
	for i, c := range fn.Constants {
		if c.Kind() != value.KindObject {
			continue
		}
		obj := c.AsObject()
		switch obj.Kind {
		case value.ObjString:
			fn.Constants[i] = value.FromObject(v.internString(obj.Chars))
		case value.ObjFunction:
			v.internConstants(obj)
		}
	}
}

// collectGarbage runs one full tracing mark-sweep cycle: mark every root,
// trace outward from the gray worklist until it's empty, sweep the string
// table of unmarked entries, then sweep the allocation list itself (spec.md
// §4.3).
func (v *VM) collectGarbage() {
	v.markRoots()
	v.traceReferences()
	v.strings.RemoveWhiteStrings(func(o *Object) bool { return !o.Marked })
	v.sweep()
	v.nextGC = v.bytesAllocated * 2
	if v.nextGC < 1<<16 {
		v.nextGC = 1 << 16
	}
}

func (v *VM) markRoots() {
	for i := 0; i < v.top; i++ {
		v.markValue(v.stack[i])
	}
	for i := range v.frames {
		v.markObject(v.frames[i].closure)
	}
	for up := v.openUpvalues; up != nil; up = up.OpenNext {
		v.markObject(up)
	}
	v.markTable(v.globals)
	if v.pendingReturn != nil {
		v.markValue(*v.pendingReturn)
	}
}

func (v *VM) markTable(t *value.Table) {
	for _, k := range t.Keys() {
		v.markValue(k)
		if val, ok := t.Get(k); ok {
			v.markValue(val)
		}
	}
}

func (v *VM) markValue(val value.Value) {
	if val.Kind() == value.KindObject {
		v.markObject(val.AsObject())
	}
}

func (v *VM) markObject(o *Object) {
	if o == nil || o.Marked {
		return
	}
	o.Marked = true
	v.grayStack = append(v.grayStack, o)
}

// traceReferences blackens the gray worklist: for each object popped, mark
// everything it directly references, possibly pushing more gray objects,
// until the worklist is empty.
func (v *VM) traceReferences() {
	for len(v.grayStack) > 0 {
		o := v.grayStack[len(v.grayStack)-1]
		v.grayStack = v.grayStack[:len(v.grayStack)-1]
		v.blacken(o)
	}
}

func (v *VM) blacken(o *Object) {
	switch o.Kind {
	case value.ObjList:
		for _, item := range o.Items {
			v.markValue(item)
		}
	case value.ObjDict:
		v.markTable(o.Table)
	case value.ObjFunction:
		v.markObject(o.Name)
		for _, c := range o.Constants {
			v.markValue(c)
		}
	case value.ObjClosure:
		v.markObject(o.Function)
		for _, up := range o.Upvalues {
			v.markObject(up)
		}
	case value.ObjUpvalue:
		if o.Location != nil {
			v.markValue(*o.Location)
		} else {
			v.markValue(o.Closed)
		}
	case value.ObjClass:
		v.markObject(o.Name)
		v.markObject(o.SuperClass)
		v.markTable(o.Methods)
		v.markTable(o.Fields)
		v.markObject(o.Initializer)
	case value.ObjInstance:
		v.markObject(o.Class)
		v.markTable(o.InstanceFields)
	case value.ObjBoundMethod:
		v.markValue(o.Receiver)
		v.markObject(o.Method)
	}
}

// sweep walks the allocation list, freeing (unlinking) every object that
// wasn't reached this cycle and clearing the mark bit on every survivor for
// the next cycle.
func (v *VM) sweep() {
	var prev *Object
	obj := v.objects
	for obj != nil {
		if obj.Marked {
			obj.Marked = false
			prev = obj
			obj = obj.Next
			continue
		}
		unreached := obj
		obj = obj.Next
		v.bytesAllocated -= objectSize(unreached)
		if prev == nil {
			v.objects = obj
		} else {
			prev.Next = obj
		}
	}
}
