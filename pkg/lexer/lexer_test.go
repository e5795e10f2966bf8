package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectTypes(t *testing.T, src string) []TokenType {
	t.Helper()
	l := New(src)
	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == TokenEOF || tok.Type == TokenIllegal {
			break
		}
	}
	return types
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	l := New("var x = def counter")
	assert.Equal(t, TokenVar, l.NextToken().Type)
	id := l.NextToken()
	assert.Equal(t, TokenIdentifier, id.Type)
	assert.Equal(t, "x", id.Literal)
	assert.Equal(t, TokenAssign, l.NextToken().Type)
	assert.Equal(t, TokenDef, l.NextToken().Type)
	id2 := l.NextToken()
	assert.Equal(t, TokenIdentifier, id2.Type)
	assert.Equal(t, "counter", id2.Literal)
}

func TestNumberLiterals(t *testing.T) {
	cases := map[string]string{
		"42":       "42",
		"3.14":     "3.14",
		"0x1F":     "0x1F",
		"0b101":    "0b101",
		"0o17":     "0o17",
		"1e10":     "1e10",
		"1.5e-3":   "1.5e-3",
	}
	for src, want := range cases {
		l := New(src)
		tok := l.NextToken()
		require.Equal(t, TokenNumber, tok.Type, "source %q", src)
		assert.Equal(t, want, tok.Literal, "source %q", src)
	}
}

func TestOperatorsAndArrow(t *testing.T) {
	types := collectTypes(t, "== != <= >= -> = < >")
	assert.Equal(t, []TokenType{
		TokenEqual, TokenNotEqual, TokenLessEq, TokenGreaterEq,
		TokenArrow, TokenAssign, TokenLess, TokenGreater, TokenEOF,
	}, types)
}

func TestLineComment(t *testing.T) {
	types := collectTypes(t, "1 // this is a comment\n2")
	assert.Equal(t, []TokenType{TokenNumber, TokenNumber, TokenEOF}, types)
}

func TestPlainStringLiteral(t *testing.T) {
	l := New(`"hello\nworld"`)
	tok := l.NextToken()
	require.Equal(t, TokenString, tok.Type)
	assert.Equal(t, "hello\nworld", tok.Literal)
}

func TestInterpolatedStringSplitsIntoParts(t *testing.T) {
	l := New(`"x={x}!"`)
	start := l.NextToken()
	require.Equal(t, TokenInterpStart, start.Type)
	assert.Equal(t, "x=", start.Literal)

	expr := l.NextToken()
	require.Equal(t, TokenIdentifier, expr.Type)
	assert.Equal(t, "x", expr.Literal)

	end := l.NextToken()
	require.Equal(t, TokenInterpEnd, end.Type)
	assert.Equal(t, "!", end.Literal)
}

func TestInterpolationWithNestedBraceExpression(t *testing.T) {
	// The dict literal's braces must not be confused with the
	// interpolation's own closing brace.
	l := New(`"v={ {"a":1}["a"] }done"`)
	start := l.NextToken()
	require.Equal(t, TokenInterpStart, start.Type)
	assert.Equal(t, "v=", start.Literal)

	var types []TokenType
	for {
		tok := l.NextToken()
		if tok.Type == TokenInterpEnd {
			assert.Equal(t, "done", tok.Literal)
			break
		}
		types = append(types, tok.Type)
	}
	assert.Contains(t, types, TokenLBrace)
	assert.Contains(t, types, TokenRBrace)
}

func TestInterpolationDepthLimitRejected(t *testing.T) {
	src := nestedInterpString(maxInterpolationDepth + 1)
	l := New(src)
	var lastType TokenType
	for i := 0; i < 10000; i++ {
		tok := l.NextToken()
		lastType = tok.Type
		if tok.Type == TokenIllegal || tok.Type == TokenEOF {
			break
		}
	}
	assert.Equal(t, TokenIllegal, lastType)
}

// nestedInterpString builds a string literal with `depth` levels of
// interpolation-within-interpolation, each level wrapping the previous one
// in `"{ ... }"` so that the interpolation stack grows by one at every
// level rather than just accumulating ordinary braces inside one level.
func nestedInterpString(depth int) string {
	s := `"x"`
	for i := 0; i < depth; i++ {
		s = `"{ ` + s + ` }"`
	}
	return s
}

func TestUnterminatedStringIsIllegal(t *testing.T) {
	l := New(`"no closing quote`)
	tok := l.NextToken()
	assert.Equal(t, TokenIllegal, tok.Type)
}
