// Package vm executes the bytecode pkg/compiler produces: a stack-based
// interpreter with call frames, closures with upvalues, class dispatch,
// exception handling, and a tracing mark-sweep garbage collector that owns
// every heap object the VM can reach.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/birdlang/bird/pkg/compiler"
	"github.com/birdlang/bird/pkg/value"
)

const (
	framesMax = 512
	stackMax  = framesMax * 256
)

// tryHandler is one active exception handler within a call frame: the
// bytecode offsets (within the frame's function) to jump to for the catch
// and finally arms, per spec.md §4.5 PUSH_TRY.
type tryHandler struct {
	catchIP    int
	finallyIP  int
	stackDepth int // value stack height to restore to when this handler fires
}

// callFrame is one activation of a closure.
type callFrame struct {
	closure  *value.Object // ObjClosure
	ip       int
	base     int // index into vm.stack where this frame's locals start
	handlers []tryHandler
}

// VM is a single self-contained interpreter instance: its value stack,
// call-frame stack, global table, string intern table, and allocation list
// are all private to it (spec.md §5 "Shared resources"); nothing here is
// safe to drive from more than one goroutine concurrently.
type VM struct {
	// stack is preallocated to stackMax and never reallocated: an open
	// upvalue holds a *Value pointing directly into this array (see
	// upvalues.go), which a reallocating append would invalidate. top is
	// the index one past the current top-of-stack element.
	stack []value.Value
	top   int

	frames []callFrame

	globals *value.Table
	strings *value.Table

	openUpvalues *value.Object // head of the OPEN upvalue list, sorted by descending stack index
	objects      *value.Object // head of the allocation list

	bytesAllocated int64
	nextGC         int64
	grayStack      []*value.Object

	shouldDebugStack    bool
	shouldPrintBytecode bool
	isREPL              bool

	out    io.Writer
	lastFn *value.Object // the most recently compiled top-level script, for disassembly dumps

	exceptionClass *Object // the built-in Exception class; fail() wraps interpreter-detected errors in it
	messageKey     *Object // interned "message", the field instantiate/newExceptionValue set and exceptionMessage reads

	// pendingReturn holds a return value in flight through one or more
	// enclosing finally blocks (spec.md §4.6, §8 "return inside a finally
	// supersedes a pending raise or return"). Non-nil only between an
	// OP_RETURN_TRY that found an active handler and the OP_FINALLY_END
	// that eventually completes (or supersedes) it.
	pendingReturn *value.Value

	importHook func(v *VM, name string) error // optional; nil means OP_IMPORT always raises
}

// WithImportHook installs the callback OP_IMPORT invokes for `import name;`.
// Resolving a module name to a file or package on disk is outside this
// runtime's scope (spec.md §1 Non-goals); embedders that want import to do
// something wire it up here, typically by compiling another source string
// and running it against the same VM before returning.
func WithImportHook(hook func(v *VM, name string) error) Option {
	return func(v *VM) { v.importHook = hook }
}

// Option configures a VM at construction time, matching the configuration
// fields spec.md §6 names: should_debug_stack, should_print_bytecode,
// next_gc, is_repl.
type Option func(*VM)

// WithStackTrace enables per-instruction stack tracing to stderr.
func WithStackTrace() Option { return func(v *VM) { v.shouldDebugStack = true } }

// WithBytecodeDump enables dumping a disassembly of each compiled function
// after compilation, before execution.
func WithBytecodeDump() Option { return func(v *VM) { v.shouldPrintBytecode = true } }

// WithInitialGC sets the initial byte threshold before the first
// collection cycle runs.
func WithInitialGC(bytes int64) Option { return func(v *VM) { v.nextGC = bytes } }

// WithREPL marks the VM as driven by cmd/bird's interactive mode. The flag
// is only recorded: compilation and execution do not read it, so
// expression statements still need their ';' and their values are not
// printed automatically.
func WithREPL() Option { return func(v *VM) { v.isREPL = true } }

// WithOutput redirects everything echo/print write, in place of the
// default os.Stdout. Embedders and tests use this to capture output
// without needing a real file descriptor.
func WithOutput(w io.Writer) Option { return func(v *VM) { v.out = w } }

// New constructs a VM ready to run Interpret calls.
func New(opts ...Option) *VM {
	v := &VM{
		stack:   make([]value.Value, stackMax),
		globals: value.NewTable(),
		strings: value.NewTable(),
		nextGC:  1 << 20,
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.initExceptionClass()
	registerNatives(v)
	return v
}

// Interpret compiles and runs source as a top-level script. It may be
// called repeatedly on the same VM with independent sources, each sharing
// the same globals and intern table (spec.md §6).
func (v *VM) Interpret(source, name string) (InterpretResult, error) {
	fn, errs := compiler.Compile(source)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		return InterpretCompileError, errs[0]
	}
	v.top = 0
	v.frames = v.frames[:0]
	v.openUpvalues = nil

	v.internConstants(fn)
	if fn.Name == nil {
		fn.Name = v.internString(name)
	}
	v.registerObject(fn)
	v.lastFn = fn

	if v.shouldPrintBytecode {
		fmt.Fprint(os.Stderr, v.disassemble(fn, name))
	}

	closure := value.NewClosureObject(fn)
	v.registerObject(closure)

	v.push(value.FromObject(closure))
	if err := v.callValue(value.FromObject(closure), 0); err != nil {
		return InterpretRuntimeError, v.asRuntimeError(err)
	}

	if err := v.run(); err != nil {
		return InterpretRuntimeError, v.asRuntimeError(err)
	}
	return InterpretOK, nil
}

func (v *VM) asRuntimeError(err error) *RuntimeError {
	if re, ok := err.(*RuntimeError); ok {
		return re
	}
	return &RuntimeError{Message: err.Error()}
}

// --- value stack ---
//
// The stack is a fixed-size array indexed by v.top rather than a
// growable slice: open upvalues (upvalues.go) hold a *Value pointing
// directly at a slot in this array, and a reallocating append would
// silently invalidate every such pointer.

func (v *VM) push(val value.Value) {
	v.stack[v.top] = val
	v.top++
}

func (v *VM) pop() value.Value {
	v.top--
	return v.stack[v.top]
}

func (v *VM) peek(distance int) value.Value {
	return v.stack[v.top-1-distance]
}

// Push implements value.NativeContext, used by native functions and by
// the allocator's push-protect discipline.
func (v *VM) Push(val value.Value) error {
	if v.top >= stackMax {
		return v.RaiseError("stack overflow")
	}
	v.push(val)
	return nil
}

// Pop implements value.NativeContext.
func (v *VM) Pop() (value.Value, error) {
	if v.top == 0 {
		return value.Nil(), fmt.Errorf("pop from empty stack")
	}
	return v.pop(), nil
}

// SetGlobal defines or overwrites a global, for use by an import hook that
// wants to bind a module's exports into the running script's namespace.
func (v *VM) SetGlobal(name string, val value.Value) {
	v.globals.Set(value.FromObject(v.internString(name)), val)
}

// RaiseError implements value.NativeContext: it wraps msg in a built-in
// Exception instance and raises it exactly as OP_RAISE would, so a native's
// error is catchable by the same try/catch machinery as a scripted raise.
func (v *VM) RaiseError(format string, args ...interface{}) error {
	return v.fail(format, args...)
}
