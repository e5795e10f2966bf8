package compiler

import (
	"github.com/birdlang/bird/pkg/bytecode"
	"github.com/birdlang/bird/pkg/lexer"
	"github.com/birdlang/bird/pkg/value"
)

func (p *parser) declaration() {
	switch {
	case p.match(lexer.TokenClass):
		p.classDeclaration()
	case p.match(lexer.TokenDef):
		p.funDeclaration()
	case p.match(lexer.TokenVar):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *parser) varDeclaration() {
	global := p.parseVariable("expect variable name")

	if p.match(lexer.TokenAssign) {
		p.expression()
	} else {
		p.emitOp(bytecode.OpNil)
	}
	p.consume(lexer.TokenSemicolon, "expect ';' after variable declaration")
	p.defineVariable(global)
}

// parseVariable consumes an identifier, declares it as a local if we're
// inside a scope, and returns the constant-pool index to use for
// OpDefineGlobal if it turns out to be a global (the index is meaningless,
// and ignored, in the local case).
func (p *parser) parseVariable(errMsg string) int {
	p.consume(lexer.TokenIdentifier, errMsg)
	name := p.previous.Literal
	p.declareLocal(name)
	if p.compiler.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(name)
}

func (p *parser) defineVariable(global int) {
	if p.compiler.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpByte(bytecode.OpDefineGlobal, byte(global))
}

func (p *parser) funDeclaration() {
	global := p.parseVariable("expect function name")
	p.markInitialized()
	p.function(TypeFunction)
	p.defineVariable(global)
}

// function compiles a parameter list and body into a freshly pushed
// Compiler, then emits OP_CLOSURE for the finished function plus its
// upvalue descriptor pairs, per spec.md §4.5 "Closure construction".
func (p *parser) function(fnType FunctionType) {
	name := ""
	if fnType != TypeScript {
		name = p.previous.Literal
	}
	p.compiler = newCompiler(p.compiler, fnType, name)
	p.beginScope()

	p.consume(lexer.TokenLParen, "expect '(' after function name")
	if !p.check(lexer.TokenRParen) {
		for {
			p.compiler.function.Arity++
			if p.compiler.function.Arity > 255 {
				p.errorAtCurrent("can't have more than 255 parameters")
			}
			constant := p.parseVariable("expect parameter name")
			p.defineVariable(constant)
			if p.match(lexer.TokenEllipsis) {
				p.compiler.function.Variadic = true
				p.compiler.function.Arity--
				break
			}
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "expect ')' after parameters")
	p.consume(lexer.TokenLBrace, "expect '{' before function body")
	p.block()

	fn, upvalues := p.endCompiler()

	idx := p.makeConstant(value.FromObject(fn))
	p.emitOpByte(bytecode.OpClosure, byte(idx))
	for _, u := range upvalues {
		if u.isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(u.index)
	}
}

// lambda compiles the closure-literal forms from SPEC_FULL.md §D:
// `|-> expr`, `|params| -> expr`, and `|params| -> { stmt* }`. It is
// invoked from the Pratt table as a prefix parser for TokenPipe, so it
// produces a value (the new closure) in expression position.
func (p *parser) lambda() {
	p.compiler = newCompiler(p.compiler, TypeFunction, "")
	p.beginScope()

	// `|->` has no parameter list and no closing '|'.
	if !p.match(lexer.TokenArrow) {
		if !p.check(lexer.TokenPipe) {
			for {
				p.compiler.function.Arity++
				constant := p.parseVariable("expect parameter name")
				p.defineVariable(constant)
				if p.match(lexer.TokenEllipsis) {
					p.compiler.function.Variadic = true
					p.compiler.function.Arity--
					break
				}
				if !p.match(lexer.TokenComma) {
					break
				}
			}
		}
		p.consume(lexer.TokenPipe, "expect '|' after lambda parameters")
		p.consume(lexer.TokenArrow, "expect '->' after lambda parameter list")
	}

	if p.match(lexer.TokenLBrace) {
		p.block()
	} else {
		// A bare expression body is an implicit `return expr`; the ';'
		// that follows belongs to the enclosing statement.
		p.expression()
		p.emitOp(bytecode.OpReturn)
	}

	fn, upvalues := p.endCompiler()
	idx := p.makeConstant(value.FromObject(fn))
	p.emitOpByte(bytecode.OpClosure, byte(idx))
	for _, u := range upvalues {
		if u.isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(u.index)
	}
}

func (p *parser) block() {
	for !p.check(lexer.TokenRBrace) && !p.check(lexer.TokenEOF) {
		p.declaration()
	}
	p.consume(lexer.TokenRBrace, "expect '}' after block")
}

func (p *parser) classDeclaration() {
	p.consume(lexer.TokenIdentifier, "expect class name")
	className := p.previous.Literal
	nameConstant := p.identifierConstant(className)
	p.declareLocal(className)

	p.emitOpByte(bytecode.OpClass, byte(nameConstant))
	p.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: p.currentClass}
	p.currentClass = cc

	if p.match(lexer.TokenLess) {
		p.consume(lexer.TokenIdentifier, "expect superclass name")
		superName := p.previous.Literal
		if superName == className {
			p.error("a class can't inherit from itself")
		}
		p.namedVariable(superName, false)

		p.beginScope()
		p.addLocal("super")
		p.markInitialized()

		p.namedVariable(className, false)
		p.emitOp(bytecode.OpInherit)
		cc.hasSuperclass = true
	}

	p.namedVariable(className, false)
	p.consume(lexer.TokenLBrace, "expect '{' before class body")
	for !p.check(lexer.TokenRBrace) && !p.check(lexer.TokenEOF) {
		p.classMember()
	}
	p.consume(lexer.TokenRBrace, "expect '}' after class body")
	p.emitOp(bytecode.OpPop) // drop the class value pushed for member definitions

	if cc.hasSuperclass {
		p.endScope()
	}
	p.currentClass = cc.enclosing
}

// classMember compiles one method (`name(params) { ... }`) or field
// (`var name = expr;`) definition inside a class body.
func (p *parser) classMember() {
	if p.match(lexer.TokenVar) {
		p.consume(lexer.TokenIdentifier, "expect field name")
		fieldName := p.previous.Literal
		nameConstant := p.identifierConstant(fieldName)
		if p.match(lexer.TokenAssign) {
			p.expression()
		} else {
			p.emitOp(bytecode.OpNil)
		}
		p.consume(lexer.TokenSemicolon, "expect ';' after field declaration")
		p.emitOpByte(bytecode.OpField, byte(nameConstant))
		return
	}

	p.consume(lexer.TokenIdentifier, "expect method name")
	methodName := p.previous.Literal
	nameConstant := p.identifierConstant(methodName)

	fnType := TypeMethod
	if methodName == "@new" || methodName == "init" {
		fnType = TypeInitializer
	}
	p.function(fnType)
	p.emitOpByte(bytecode.OpMethod, byte(nameConstant))
}

func (p *parser) statement() {
	switch {
	case p.match(lexer.TokenEcho):
		p.echoStatement()
	case p.match(lexer.TokenIf):
		p.ifStatement()
	case p.match(lexer.TokenWhile):
		p.whileStatement()
	case p.match(lexer.TokenFor):
		p.forStatement()
	case p.match(lexer.TokenForeach):
		p.foreachStatement()
	case p.match(lexer.TokenReturn):
		p.returnStatement()
	case p.match(lexer.TokenRaise):
		p.raiseStatement()
	case p.match(lexer.TokenTry):
		p.tryStatement()
	case p.match(lexer.TokenImport):
		p.importStatement()
	case p.match(lexer.TokenLBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *parser) expressionStatement() {
	p.expression()
	p.consume(lexer.TokenSemicolon, "expect ';' after expression")
	p.emitOp(bytecode.OpPop)
}

func (p *parser) echoStatement() {
	p.expression()
	p.consume(lexer.TokenSemicolon, "expect ';' after value")
	p.emitOp(bytecode.OpEcho)
}

func (p *parser) ifStatement() {
	p.consume(lexer.TokenLParen, "expect '(' after 'if'")
	p.expression()
	p.consume(lexer.TokenRParen, "expect ')' after condition")

	thenJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.statement()

	elseJump := p.emitJump(bytecode.OpJump)
	p.patchJump(thenJump)
	p.emitOp(bytecode.OpPop)

	if p.match(lexer.TokenElse) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *parser) whileStatement() {
	loopStart := p.compiler.chunk().len()
	p.consume(lexer.TokenLParen, "expect '(' after 'while'")
	p.expression()
	p.consume(lexer.TokenRParen, "expect ')' after condition")

	exitJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(bytecode.OpPop)
}

func (p *parser) forStatement() {
	p.beginScope()
	p.consume(lexer.TokenLParen, "expect '(' after 'for'")

	switch {
	case p.match(lexer.TokenSemicolon):
		// no initializer
	case p.match(lexer.TokenVar):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := p.compiler.chunk().len()
	exitJump := -1
	if !p.match(lexer.TokenSemicolon) {
		p.expression()
		p.consume(lexer.TokenSemicolon, "expect ';' after loop condition")
		exitJump = p.emitJump(bytecode.OpJumpIfFalse)
		p.emitOp(bytecode.OpPop)
	}

	if !p.match(lexer.TokenRParen) {
		bodyJump := p.emitJump(bytecode.OpJump)
		incrementStart := p.compiler.chunk().len()
		p.expression()
		p.emitOp(bytecode.OpPop)
		p.consume(lexer.TokenRParen, "expect ')' after for clauses")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(bytecode.OpPop)
	}
	p.endScope()
}

// foreachStatement desugars `foreach (x in iterable) body` into an
// index-driven while loop over two hidden locals (the iterable and the
// current index), since the value representation has no separate iterator
// object kind (spec.md §3 enumerates exactly ten object variants; this
// avoids adding an eleventh purely for iteration). OP_LEN gives the bound
// and OP_GET_INDEX gives each element, both already needed for ordinary
// subscript syntax.
func (p *parser) foreachStatement() {
	p.beginScope()
	p.consume(lexer.TokenLParen, "expect '(' after 'foreach'")
	p.consume(lexer.TokenIdentifier, "expect loop variable name")
	varName := p.previous.Literal
	p.consume(lexer.TokenIn, "expect 'in' after loop variable")

	p.expression() // the iterable
	p.addLocal(" iterable")
	p.markInitialized()
	iterableSlot := len(p.compiler.locals) - 1

	p.emitConstant(value.Number(0))
	p.addLocal(" index")
	p.markInitialized()
	indexSlot := len(p.compiler.locals) - 1

	p.consume(lexer.TokenRParen, "expect ')' after iterable")

	loopStart := p.compiler.chunk().len()
	p.emitOpByte(bytecode.OpGetLocal, byte(indexSlot))
	p.emitOpByte(bytecode.OpGetLocal, byte(iterableSlot))
	p.emitOp(bytecode.OpLen)
	p.emitOp(bytecode.OpLess)
	exitJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)

	p.beginScope()
	p.emitOpByte(bytecode.OpGetLocal, byte(iterableSlot))
	p.emitOpByte(bytecode.OpGetLocal, byte(indexSlot))
	p.emitOp(bytecode.OpGetIndex)
	p.addLocal(varName)
	p.markInitialized()

	p.statement()
	p.endScope()

	p.emitOpByte(bytecode.OpGetLocal, byte(indexSlot))
	p.emitConstant(value.Number(1))
	p.emitOp(bytecode.OpAdd)
	p.emitOpByte(bytecode.OpSetLocal, byte(indexSlot))
	p.emitOp(bytecode.OpPop)
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(bytecode.OpPop)
	p.endScope()
}

// returnStatement compiles `return;` / `return expr;`. When lexically
// inside a try block (p.compiler.tryDepth > 0), it emits OP_RETURN_TRY
// instead of OP_RETURN: the enclosing finally block(s) must run before
// the function actually returns (spec.md §4.6 "finally blocks run on
// every exit path", §8 "a return inside a finally supersedes a pending
// raise or return from the protected block").
func (p *parser) returnStatement() {
	if p.compiler.fnType == TypeScript {
		p.error("can't return from top-level code")
	}
	returnOp := bytecode.OpReturn
	if p.compiler.tryDepth > 0 {
		returnOp = bytecode.OpReturnTry
	}
	if p.match(lexer.TokenSemicolon) {
		if returnOp == bytecode.OpReturnTry {
			p.emitOp(bytecode.OpNil)
			p.emitOp(bytecode.OpReturnTry)
		} else {
			p.emitReturn()
		}
		return
	}
	if p.compiler.fnType == TypeInitializer {
		p.error("can't return a value from an initializer")
	}
	p.expression()
	p.consume(lexer.TokenSemicolon, "expect ';' after return value")
	p.emitOp(returnOp)
}

func (p *parser) raiseStatement() {
	p.expression()
	p.consume(lexer.TokenSemicolon, "expect ';' after raised value")
	p.emitOp(bytecode.OpRaise)
}

func (p *parser) importStatement() {
	p.consume(lexer.TokenIdentifier, "expect module name")
	name := p.previous.Literal
	idx := p.identifierConstant(name)
	p.consume(lexer.TokenSemicolon, "expect ';' after import")
	p.emitOpByte(bytecode.OpImport, byte(idx))
}

// tryStatement compiles `try { } catch (Name as binding) { } finally { }`
// per spec.md §4.5: OP_PUSH_TRY carries the catch and finally jump targets,
// the try body runs, a matching OP_POP_TRY marks normal completion, and the
// catch/finally arms follow directly in the instruction stream. The named
// exception type in the catch clause is parsed and then discarded: it does
// not filter which raised values the handler catches, and the binding
// (`e`) holds whatever value was actually raised.
func (p *parser) tryStatement() {
	if p.compiler.tryDepth >= maxExceptionHandlers {
		p.error("too many nested try blocks in one function")
	}
	p.compiler.tryDepth++
	defer func() { p.compiler.tryDepth-- }()

	p.emitOp(bytecode.OpPushTry)
	tryOperandOffset := p.compiler.chunk().len()
	p.emitByte(0xff)
	p.emitByte(0xff)
	p.emitByte(0xff)
	p.emitByte(0xff)

	p.consume(lexer.TokenLBrace, "expect '{' after 'try'")
	p.beginScope()
	p.block()
	p.endScope()
	p.emitOp(bytecode.OpPopTry)
	endJump := p.emitJump(bytecode.OpJump)

	p.patchTryOffset(tryOperandOffset, 0, p.compiler.chunk().len())

	if p.match(lexer.TokenCatch) {
		p.consume(lexer.TokenLParen, "expect '(' after 'catch'")
		p.consume(lexer.TokenIdentifier, "expect exception type name")
		p.consume(lexer.TokenAs, "expect 'as' after exception type")
		p.consume(lexer.TokenIdentifier, "expect binding name")
		bindingName := p.previous.Literal
		p.consume(lexer.TokenRParen, "expect ')' after catch clause")

		p.beginScope()
		// The VM pushes the raised value before jumping here; bind it as
		// a local without a separate OP_GET_LOCAL (it's already on top).
		p.addLocal(bindingName)
		p.markInitialized()
		p.consume(lexer.TokenLBrace, "expect '{' after catch clause")
		p.block()
		p.endScope()
	} else {
		// No catch clause: the VM still jumps here with the raised value
		// pushed (see pkg/vm); drop it before falling into finally.
		p.emitOp(bytecode.OpPop)
	}

	catchFallthrough := p.emitJump(bytecode.OpJump)
	p.patchJump(endJump)
	p.patchTryOffset(tryOperandOffset, 2, p.compiler.chunk().len())
	p.patchJump(catchFallthrough)

	if p.match(lexer.TokenFinally) {
		p.consume(lexer.TokenLBrace, "expect '{' after 'finally'")
		p.beginScope()
		p.block()
		p.endScope()
	}

	// finallyIP always lands here, whether or not an explicit finally
	// clause was written: OP_FINALLY_END completes a return that was
	// routed here by OP_RETURN_TRY, or is a no-op on every other path
	// (normal completion, or a raise that was handled above).
	p.emitOp(bytecode.OpFinallyEnd)
}

// patchTryOffset writes a 2-byte forward offset into one of OP_PUSH_TRY's
// two operand slots (slotOffset 0 for catch, 2 for finally), relative to
// the byte immediately after the full 4-byte operand.
func (p *parser) patchTryOffset(operandOffset, slotOffset, target int) {
	base := operandOffset + 4
	jump := target - base
	code := p.compiler.chunk().obj().Code
	code[operandOffset+slotOffset] = byte((jump >> 8) & 0xff)
	code[operandOffset+slotOffset+1] = byte(jump & 0xff)
}
