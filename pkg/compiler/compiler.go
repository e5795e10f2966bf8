// Package compiler turns source text directly into a bytecode function
// object: one pass, no intermediate token list or AST. Expression parsing
// uses a Pratt (precedence-climbing) table; statements are recognized by
// their leading keyword and compiled straight to bytecode as they're
// recognized. One Compiler exists per function body being compiled,
// linked to its enclosing function's Compiler by Enclosing, the same way
// nested scopes in a tree-walking design would link environments — except
// here what's linked is bytecode-emission state, not a runtime frame.
package compiler

import (
	"fmt"

	"github.com/birdlang/bird/pkg/bytecode"
	"github.com/birdlang/bird/pkg/lexer"
	"github.com/birdlang/bird/pkg/value"
)

// FunctionType distinguishes the kind of function body a Compiler is
// assembling, since a few things compile differently for each: whether a
// `return` is allowed (not at script top level), whether slot 0 is named
// "self" (methods and initializers only), and an initializer's implicit
// `return self`.
type FunctionType int

const (
	TypeScript FunctionType = iota
	TypeFunction
	TypeMethod
	TypeInitializer
)

// maxLocals bounds locals-per-function to the 1-byte OpGetLocal/OpSetLocal
// operand (spec.md §4.5).
const maxLocals = 256

// maxUpvalues bounds a single closure's captured-upvalue count (spec.md §8:
// "capturing more than 255 upvalues in one closure is rejected at compile
// time" — so 255 is the last count accepted, and the 256th capture must be
// rejected).
const maxUpvalues = 255

// maxExceptionHandlers bounds nested try blocks per call frame (spec.md
// §4.5).
const maxExceptionHandlers = 16

type local struct {
	name       string
	depth      int // -1 while the initializer expression is still being compiled
	isCaptured bool
}

type upvalueRef struct {
	index   uint8
	isLocal bool
}

// Compiler holds all per-function compilation state: the chunk being
// assembled (via its Function's embedded blob), the local-variable stack,
// resolved upvalues, and a link to the enclosing function's Compiler for
// upvalue resolution to walk outward through.
type Compiler struct {
	enclosing *Compiler
	function  *value.Object
	fnType    FunctionType

	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
	tryDepth   int
}

func newCompiler(enclosing *Compiler, fnType FunctionType, name string) *Compiler {
	fn := value.NewFunctionObject()
	if fnType == TypeScript {
		fn.IsScript = true
	} else {
		fn.Name = value.NewStringObject(name, value.HashBytes(name))
	}
	c := &Compiler{enclosing: enclosing, function: fn, fnType: fnType}
	// Slot 0 is reserved: `self` for methods/initializers, an unnamed
	// placeholder for plain functions and the top-level script (never
	// addressed by name, just keeps the arithmetic uniform).
	slotName := ""
	if fnType == TypeMethod || fnType == TypeInitializer {
		slotName = "self"
	}
	c.locals = append(c.locals, local{name: slotName, depth: 0})
	return c
}

// chunk is a thin view over the function's bytecode buffer so emission
// helpers have a small, chunk-shaped API to call without the Compiler
// owning a second copy of the instruction stream.
func (c *Compiler) chunk() *chunkView { return (*chunkView)(c.function) }

// chunkView adapts a *value.Object of kind ObjFunction to a small
// bytecode-emission API, writing directly into the function's
// Code/Lines/Constants fields so no separate buffer and no copy is
// needed once compilation finishes.
type chunkView value.Object

func (v *chunkView) obj() *value.Object { return (*value.Object)(v) }

func (v *chunkView) writeByte(b byte, line int) {
	o := v.obj()
	o.Code = append(o.Code, b)
	o.Lines = append(o.Lines, line)
}

func (v *chunkView) writeOp(op bytecode.Op, line int) {
	v.writeByte(byte(op), line)
}

func (v *chunkView) addConstant(val value.Value) int {
	o := v.obj()
	o.Constants = append(o.Constants, val)
	return len(o.Constants) - 1
}

func (v *chunkView) len() int { return len(v.obj().Code) }

func (v *chunkView) patchJump(offset int) {
	o := v.obj()
	jump := len(o.Code) - offset - 2
	o.Code[offset] = byte((jump >> 8) & 0xff)
	o.Code[offset+1] = byte(jump & 0xff)
}

func (v *chunkView) writeJump(op bytecode.Op, line int) int {
	v.writeOp(op, line)
	v.writeByte(0xff, line)
	v.writeByte(0xff, line)
	return v.len() - 2
}

func (v *chunkView) writeLoop(loopStart int, line int) {
	v.writeOp(bytecode.OpLoop, line)
	offset := v.len() - loopStart + 2
	v.writeByte(byte((offset>>8)&0xff), line)
	v.writeByte(byte(offset&0xff), line)
}

// CompileError reports a single syntax or semantic error at a source line,
// mirroring the message shape the VM's own RuntimeError uses so both
// surfaces look consistent to an embedder.
type CompileError struct {
	Line    int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
}

// classCompiler tracks the class currently being compiled, linked outward
// for nested class bodies (which this language doesn't expose syntactically
// but which keeps super-resolution uniform if it ever does).
type classCompiler struct {
	enclosing    *classCompiler
	hasSuperclass bool
}

// parser drives the whole single-pass compile: it owns the lexer, the
// current/previous token, error bookkeeping, and the stack of in-progress
// function Compilers. Every parsing function is a method on *parser so
// they all share this state without threading it through every call.
type parser struct {
	lex *lexer.Lexer

	current  lexer.Token
	previous lexer.Token

	hadError  bool
	panicMode bool
	errors    []*CompileError

	compiler      *Compiler
	currentClass  *classCompiler
}

// Compile compiles source into a top-level script function. On success the
// returned function object can be wrapped in a closure and run by the VM;
// on failure, errs reports every syntax/semantic error found (parsing
// resynchronizes at statement boundaries, so more than one may be
// reported from a single pass, per spec.md §7).
func Compile(source string) (*value.Object, []*CompileError) {
	p := &parser{lex: lexer.New(source)}
	p.compiler = newCompiler(nil, TypeScript, "")

	p.advance()
	for !p.match(lexer.TokenEOF) {
		p.declaration()
	}
	fn, _ := p.endCompiler()

	if p.hadError {
		return nil, p.errors
	}
	return fn, nil
}

// endCompiler closes out the current function's Compiler, returning both
// the finished function object and the upvalue descriptors resolved while
// compiling it (needed by the enclosing call site to emit OP_CLOSURE's
// trailing (is_local,index) pairs before the Compiler itself is gone).
func (p *parser) endCompiler() (*value.Object, []upvalueRef) {
	p.emitReturn()
	fn := p.compiler.function
	upvalues := p.compiler.upvalues
	p.compiler = p.compiler.enclosing
	return fn, upvalues
}

func (p *parser) emitReturn() {
	if p.compiler.fnType == TypeInitializer {
		p.emitByte(byte(bytecode.OpGetLocal))
		p.emitByte(0)
	} else {
		p.emitOp(bytecode.OpNil)
	}
	p.emitOp(bytecode.OpReturn)
}

// --- token stream plumbing ---

func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.lex.NextToken()
		if p.current.Type != lexer.TokenIllegal {
			break
		}
		p.errorAtCurrent(p.current.Literal)
	}
}

func (p *parser) check(tt lexer.TokenType) bool {
	return p.current.Type == tt
}

func (p *parser) match(tt lexer.TokenType) bool {
	if !p.check(tt) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) consume(tt lexer.TokenType, message string) {
	if p.current.Type == tt {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

func (p *parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

func (p *parser) error(message string) {
	p.errorAt(p.previous, message)
}

func (p *parser) errorAt(tok lexer.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true
	p.errors = append(p.errors, &CompileError{Line: tok.Line, Message: message})
}

// synchronize skips tokens until a likely statement boundary, so one
// syntax error doesn't cascade into a flood of spurious ones (spec.md §7:
// "multiple errors may be reported in one pass via synchronization at
// statement boundaries").
func (p *parser) synchronize() {
	p.panicMode = false
	for p.current.Type != lexer.TokenEOF {
		if p.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch p.current.Type {
		case lexer.TokenClass, lexer.TokenDef, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenReturn, lexer.TokenEcho, lexer.TokenTry:
			return
		}
		p.advance()
	}
}

// --- emission helpers ---

func (p *parser) emitByte(b byte) {
	p.compiler.chunk().writeByte(b, p.previous.Line)
}

func (p *parser) emitOp(op bytecode.Op) {
	p.compiler.chunk().writeOp(op, p.previous.Line)
}

func (p *parser) emitOpByte(op bytecode.Op, operand byte) {
	p.emitOp(op)
	p.emitByte(operand)
}

func (p *parser) emitConstant(v value.Value) {
	idx := p.makeConstant(v)
	p.emitOpByte(bytecode.OpConstant, byte(idx))
}

func (p *parser) makeConstant(v value.Value) int {
	idx := p.compiler.chunk().addConstant(v)
	if idx > 255 {
		p.error("too many constants in one chunk")
		return 0
	}
	return idx
}

func (p *parser) emitJump(op bytecode.Op) int {
	return p.compiler.chunk().writeJump(op, p.previous.Line)
}

func (p *parser) patchJump(offset int) {
	p.compiler.chunk().patchJump(offset)
}

func (p *parser) emitLoop(loopStart int) {
	p.compiler.chunk().writeLoop(loopStart, p.previous.Line)
}

func (p *parser) identifierConstant(name string) int {
	return p.makeConstant(value.FromObject(value.NewStringObject(name, value.HashBytes(name))))
}
