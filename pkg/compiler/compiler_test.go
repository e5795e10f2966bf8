package compiler

import (
	"strings"
	"testing"

	"github.com/birdlang/bird/pkg/bytecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOK(t *testing.T, src string) []byte {
	t.Helper()
	fn, errs := Compile(src)
	require.Empty(t, errs, "unexpected compile errors: %v", errs)
	require.NotNil(t, fn)
	return fn.Code
}

func containsOp(code []byte, op bytecode.Op) bool {
	for _, b := range code {
		if bytecode.Op(b) == op {
			return true
		}
	}
	return false
}

func TestCompileArithmeticExpression(t *testing.T) {
	code := compileOK(t, "var x = 1 + 2; echo x;")
	assert.True(t, containsOp(code, bytecode.OpAdd))
	assert.True(t, containsOp(code, bytecode.OpDefineGlobal))
	assert.True(t, containsOp(code, bytecode.OpEcho))
}

func TestCompileClosureCapturesLocal(t *testing.T) {
	src := `
def counter() {
    var n = 0;
    return |-> n;
}
`
	code := compileOK(t, src)
	assert.True(t, containsOp(code, bytecode.OpClosure))
}

// TestCompileInterpolationCoercesEmbeddedExpression checks that each
// embedded expression in a "{...}" interpolation is coerced to a string
// (OP_TO_STRING) before the OP_ADD that splices it into the surrounding
// literal text (spec.md §4.4).
func TestCompileInterpolationCoercesEmbeddedExpression(t *testing.T) {
	code := compileOK(t, `var n = 1; echo "n = {n}";`)
	assert.True(t, containsOp(code, bytecode.OpToString))
	assert.True(t, containsOp(code, bytecode.OpAdd))
}

func TestCompileClassWithInheritanceAndSuper(t *testing.T) {
	src := `
class A { f() { return 1; } }
class B < A { f() { return super.f() + 1; } }
echo B().f();
`
	code := compileOK(t, src)
	assert.True(t, containsOp(code, bytecode.OpClass))
	assert.True(t, containsOp(code, bytecode.OpInherit))
	assert.True(t, containsOp(code, bytecode.OpMethod))
	assert.True(t, containsOp(code, bytecode.OpInvokeSuper))
}

func TestCompileTryCatchFinally(t *testing.T) {
	src := `
try {
    raise "x";
} catch (Exception as e) {
    echo e;
} finally {
    echo "done";
}
`
	code := compileOK(t, src)
	assert.True(t, containsOp(code, bytecode.OpPushTry))
	assert.True(t, containsOp(code, bytecode.OpPopTry))
	assert.True(t, containsOp(code, bytecode.OpRaise))
}

func TestCompileForeachDesugarsToLenAndIndex(t *testing.T) {
	src := `
foreach (x in [1, 2, 3]) {
    echo x;
}
`
	code := compileOK(t, src)
	assert.True(t, containsOp(code, bytecode.OpLen))
	assert.True(t, containsOp(code, bytecode.OpGetIndex))
	assert.True(t, containsOp(code, bytecode.OpBuildList))
}

func TestDuplicateLocalDeclarationIsError(t *testing.T) {
	src := `
def f() {
    var a = 1;
    var a = 2;
}
`
	_, errs := Compile(src)
	require.NotEmpty(t, errs)
}

func TestReturnAtTopLevelIsError(t *testing.T) {
	_, errs := Compile("return 1;")
	require.NotEmpty(t, errs)
}

// TestTooManyUpvaluesIsRejected exercises spec.md §8's "capturing more
// than 255 upvalues in one closure is rejected at compile time" — as
// opposed to maxLocals, which bounds a single function's own local-variable
// count. To trip the upvalue cap without also tripping the unrelated
// maxLocals=256 cap, the 260 captured names are split across two levels
// of enclosing function (130 locals declared in outer, 130 more in a
// nested middle, each well under maxLocals on its own) and all 260 are
// captured by one innermost lambda, whose own upvalue count is what must
// be rejected.
func TestTooManyUpvaluesIsRejected(t *testing.T) {
	const perLevel = 130
	var src strings.Builder
	src.WriteString("def outer() {\n")
	for i := 0; i < perLevel; i++ {
		src.WriteString("var o")
		src.WriteString(itoaTest(i))
		src.WriteString(" = 0;\n")
	}
	src.WriteString("def middle() {\n")
	for i := 0; i < perLevel; i++ {
		src.WriteString("var m")
		src.WriteString(itoaTest(i))
		src.WriteString(" = 0;\n")
	}
	src.WriteString("return |-> ")
	for i := 0; i < perLevel; i++ {
		if i > 0 {
			src.WriteString("+")
		}
		src.WriteString("o")
		src.WriteString(itoaTest(i))
	}
	for i := 0; i < perLevel; i++ {
		src.WriteString("+m")
		src.WriteString(itoaTest(i))
	}
	src.WriteString(";\n}\n")
	src.WriteString("return middle;\n}\n")

	_, errs := Compile(src.String())
	require.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Contains(t, e.Error(), "too many upvalues")
	}
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
