package compiler

import (
	"strconv"
	"strings"

	"github.com/birdlang/bird/pkg/bytecode"
	"github.com/birdlang/bird/pkg/lexer"
	"github.com/birdlang/bird/pkg/value"
)

// precedence orders binding strength from loosest to tightest, the usual
// Pratt-parser ladder.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * / %
	precUnary                 // ! -
	precCall                  // . () []
	precPrimary
)

// parseFn is a method expression shape (func(*parser, bool)) so the rule
// table below can be a package-level value built once, rather than a map
// literal of bound closures rebuilt on every expression parsed.
type parseFn func(*parser, bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// rules is filled in by init rather than by a var initializer: the parse
// functions it holds reach back to rules through parsePrecedence, which Go
// rejects as an initialization cycle in a package-level initializer.
var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
	lexer.TokenLParen:      {(*parser).grouping, (*parser).call, precCall},
	lexer.TokenDot:         {nil, (*parser).dot, precCall},
	lexer.TokenLBracket:    {(*parser).listLiteral, (*parser).subscript, precCall},
	lexer.TokenLBrace:      {(*parser).dictLiteral, nil, precNone},
	lexer.TokenMinus:       {(*parser).unary, (*parser).binary, precTerm},
	lexer.TokenPlus:        {nil, (*parser).binary, precTerm},
	lexer.TokenSlash:       {nil, (*parser).binary, precFactor},
	lexer.TokenStar:        {nil, (*parser).binary, precFactor},
	lexer.TokenPercent:     {nil, (*parser).binary, precFactor},
	lexer.TokenBang:        {(*parser).unary, nil, precNone},
	lexer.TokenNotEqual:    {nil, (*parser).binary, precEquality},
	lexer.TokenEqual:       {nil, (*parser).binary, precEquality},
	lexer.TokenGreater:     {nil, (*parser).binary, precComparison},
	lexer.TokenGreaterEq:   {nil, (*parser).binary, precComparison},
	lexer.TokenLess:        {nil, (*parser).binary, precComparison},
	lexer.TokenLessEq:      {nil, (*parser).binary, precComparison},
	lexer.TokenIdentifier:  {(*parser).variable, nil, precNone},
	lexer.TokenNumber:      {(*parser).number, nil, precNone},
	lexer.TokenString:      {(*parser).stringLiteral, nil, precNone},
	lexer.TokenInterpStart: {(*parser).interpolatedString, nil, precNone},
	lexer.TokenAnd:         {nil, (*parser).and, precAnd},
	lexer.TokenOr:          {nil, (*parser).or, precOr},
	lexer.TokenFalse:       {(*parser).literal, nil, precNone},
	lexer.TokenTrue:        {(*parser).literal, nil, precNone},
	lexer.TokenNil:         {(*parser).literal, nil, precNone},
	lexer.TokenSuper:       {(*parser).super, nil, precNone},
	lexer.TokenPipe:        {(*parser).lambdaExpr, nil, precNone},
	}
}

func (p *parser) lambdaExpr(canAssign bool) {
	p.lambda()
}

func (p *parser) expression() {
	p.parsePrecedence(precAssignment)
}

func (p *parser) parsePrecedence(prec precedence) {
	p.advance()
	rule := rules[p.previous.Type]
	if rule.prefix == nil {
		p.error("expect expression")
		return
	}
	canAssign := prec <= precAssignment
	rule.prefix(p, canAssign)

	for prec <= rules[p.current.Type].precedence {
		p.advance()
		infixRule := rules[p.previous.Type]
		infixRule.infix(p, canAssign)
	}

	if canAssign && p.match(lexer.TokenAssign) {
		p.error("invalid assignment target")
	}
}

func (p *parser) grouping(canAssign bool) {
	p.expression()
	p.consume(lexer.TokenRParen, "expect ')' after expression")
}

func (p *parser) number(canAssign bool) {
	n := parseNumberLiteral(p.previous.Literal)
	p.emitConstant(value.Number(n))
}

func parseNumberLiteral(lit string) float64 {
	switch {
	case strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X"):
		n, _ := strconv.ParseInt(lit[2:], 16, 64)
		return float64(n)
	case strings.HasPrefix(lit, "0b") || strings.HasPrefix(lit, "0B"):
		n, _ := strconv.ParseInt(lit[2:], 2, 64)
		return float64(n)
	case strings.HasPrefix(lit, "0o") || strings.HasPrefix(lit, "0O"):
		n, _ := strconv.ParseInt(lit[2:], 8, 64)
		return float64(n)
	default:
		n, _ := strconv.ParseFloat(lit, 64)
		return n
	}
}

func (p *parser) stringLiteral(canAssign bool) {
	s := p.previous.Literal
	p.emitConstant(value.FromObject(value.NewStringObject(s, value.HashBytes(s))))
}

// interpolatedString compiles "...{ expr }...{ expr }..." as a chain of
// string concatenations (spec.md §4.4 "concatenated with the `+` operator
// applied to the string coercion of each expression"), starting from the
// already-consumed TokenInterpStart chunk. Each embedded expression is
// coerced to its string form with OP_TO_STRING before the OP_ADD, so a
// non-string value (a number, a list, `nil`, ...) interpolates correctly
// instead of tripping OP_ADD's "operands must be two numbers, two
// strings, or a list and a value" type check.
func (p *parser) interpolatedString(canAssign bool) {
	first := p.previous.Literal
	p.emitConstant(value.FromObject(value.NewStringObject(first, value.HashBytes(first))))

	for {
		p.expression() // the embedded expression, left by scanStringChunk positioned after '{'
		p.emitOp(bytecode.OpToString)
		p.emitOp(bytecode.OpAdd)
		// The lexer will have left p.current sitting on the next chunk
		// token (INTERP_MID or INTERP_END) once the embedded expression's
		// own tokens are exhausted; consuming it here resumes string
		// scanning.
		if p.current.Type != lexer.TokenInterpMid && p.current.Type != lexer.TokenInterpEnd {
			p.errorAtCurrent("expect '}' to close string interpolation")
			return
		}
		p.advance()
		chunk := p.previous.Literal
		p.emitConstant(value.FromObject(value.NewStringObject(chunk, value.HashBytes(chunk))))
		p.emitOp(bytecode.OpAdd)
		if p.previous.Type == lexer.TokenInterpEnd {
			return
		}
	}
}

func (p *parser) literal(canAssign bool) {
	switch p.previous.Type {
	case lexer.TokenFalse:
		p.emitOp(bytecode.OpFalse)
	case lexer.TokenTrue:
		p.emitOp(bytecode.OpTrue)
	case lexer.TokenNil:
		p.emitOp(bytecode.OpNil)
	}
}

func (p *parser) unary(canAssign bool) {
	opType := p.previous.Type
	p.parsePrecedence(precUnary)
	switch opType {
	case lexer.TokenMinus:
		p.emitOp(bytecode.OpNegate)
	case lexer.TokenBang:
		p.emitOp(bytecode.OpNot)
	}
}

func (p *parser) binary(canAssign bool) {
	opType := p.previous.Type
	rule := rules[opType]
	p.parsePrecedence(rule.precedence + 1)

	switch opType {
	case lexer.TokenPlus:
		p.emitOp(bytecode.OpAdd)
	case lexer.TokenMinus:
		p.emitOp(bytecode.OpSubtract)
	case lexer.TokenStar:
		p.emitOp(bytecode.OpMultiply)
	case lexer.TokenSlash:
		p.emitOp(bytecode.OpDivide)
	case lexer.TokenPercent:
		p.emitOp(bytecode.OpModulo)
	case lexer.TokenNotEqual:
		p.emitOp(bytecode.OpEqual)
		p.emitOp(bytecode.OpNot)
	case lexer.TokenEqual:
		p.emitOp(bytecode.OpEqual)
	case lexer.TokenGreater:
		p.emitOp(bytecode.OpGreater)
	case lexer.TokenGreaterEq:
		p.emitOp(bytecode.OpLess)
		p.emitOp(bytecode.OpNot)
	case lexer.TokenLess:
		p.emitOp(bytecode.OpLess)
	case lexer.TokenLessEq:
		p.emitOp(bytecode.OpGreater)
		p.emitOp(bytecode.OpNot)
	}
}

// and/or are compiled with conditional jumps that leave the tested operand
// on the stack when it already determines the result, rather than always
// evaluating both sides (spec.md §4.5 "short-circuit and/or use
// conditional jumps without popping the tested operand when returning
// it").
func (p *parser) and(canAssign bool) {
	endJump := p.emitJump(bytecode.OpAnd)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

func (p *parser) or(canAssign bool) {
	endJump := p.emitJump(bytecode.OpOr)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func (p *parser) call(canAssign bool) {
	argc := p.argumentList(lexer.TokenRParen)
	p.emitOpByte(bytecode.OpCall, byte(argc))
}

func (p *parser) argumentList(closing lexer.TokenType) int {
	argc := 0
	if !p.check(closing) {
		for {
			p.expression()
			if argc == 255 {
				p.error("can't have more than 255 arguments")
			}
			argc++
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(closing, "expect ')' after arguments")
	return argc
}

// dot compiles `.name`, `.name(args)` (fused into OP_INVOKE), and, when
// followed by '=', a property assignment.
func (p *parser) dot(canAssign bool) {
	p.consume(lexer.TokenIdentifier, "expect property name after '.'")
	name := p.previous.Literal
	nameConstant := p.identifierConstant(name)

	switch {
	case canAssign && p.match(lexer.TokenAssign):
		p.expression()
		p.emitOpByte(bytecode.OpSetProperty, byte(nameConstant))
	case p.match(lexer.TokenLParen):
		argc := p.argumentList(lexer.TokenRParen)
		p.emitOp(bytecode.OpInvoke)
		p.emitByte(byte(nameConstant))
		p.emitByte(byte(argc))
	default:
		p.emitOpByte(bytecode.OpGetProperty, byte(nameConstant))
	}
}

func (p *parser) subscript(canAssign bool) {
	p.expression()
	p.consume(lexer.TokenRBracket, "expect ']' after index")
	if canAssign && p.match(lexer.TokenAssign) {
		p.expression()
		p.emitOp(bytecode.OpSetIndex)
	} else {
		p.emitOp(bytecode.OpGetIndex)
	}
}

func (p *parser) listLiteral(canAssign bool) {
	count := 0
	if !p.check(lexer.TokenRBracket) {
		for {
			p.expression()
			count++
			if count > 255 {
				p.error("too many elements in one list literal")
			}
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRBracket, "expect ']' after list elements")
	p.emitOpByte(bytecode.OpBuildList, byte(count))
}

func (p *parser) dictLiteral(canAssign bool) {
	count := 0
	if !p.check(lexer.TokenRBrace) {
		for {
			p.expression()
			p.consume(lexer.TokenColon, "expect ':' after dict key")
			p.expression()
			count++
			if count > 255 {
				p.error("too many pairs in one dict literal")
			}
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRBrace, "expect '}' after dict entries")
	p.emitOpByte(bytecode.OpBuildDict, byte(count))
}

func (p *parser) super(canAssign bool) {
	if p.currentClass == nil {
		p.error("can't use 'super' outside of a class")
	} else if !p.currentClass.hasSuperclass {
		p.error("can't use 'super' in a class with no superclass")
	}
	p.consume(lexer.TokenDot, "expect '.' after 'super'")
	p.consume(lexer.TokenIdentifier, "expect superclass method name")
	name := p.previous.Literal
	nameConstant := p.identifierConstant(name)

	p.namedVariable("self", false)
	if p.match(lexer.TokenLParen) {
		argc := p.argumentList(lexer.TokenRParen)
		p.namedVariable("super", false)
		p.emitOp(bytecode.OpInvokeSuper)
		p.emitByte(byte(nameConstant))
		p.emitByte(byte(argc))
	} else {
		p.namedVariable("super", false)
		p.emitOpByte(bytecode.OpGetSuper, byte(nameConstant))
	}
}

func (p *parser) variable(canAssign bool) {
	p.namedVariable(p.previous.Literal, canAssign)
}

// namedVariable resolves name as a local, then an upvalue, then falls back
// to a global, emitting the matching get/set opcode. canAssign gates
// whether a following '=' is honored here (it's suppressed inside e.g.
// `a.b = c`'s receiver position, handled by parsePrecedence's call site).
func (p *parser) namedVariable(name string, canAssign bool) {
	var getOp, setOp bytecode.Op
	slot := resolveLocal(p.compiler, name)
	switch {
	case slot == -2:
		p.error("can't read local variable in its own initializer")
		slot = 0
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
	case slot != -1:
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
	default:
		switch up := resolveUpvalue(p.compiler, name); up {
		case upvalueOverflow:
			p.error("too many upvalues in one closure")
			slot = 0
			getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
		case -1:
			slot = p.identifierConstant(name)
			getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
		default:
			slot = up
			getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
		}
	}

	if canAssign && p.match(lexer.TokenAssign) {
		p.expression()
		p.emitOpByte(setOp, byte(slot))
	} else {
		p.emitOpByte(getOp, byte(slot))
	}
}
