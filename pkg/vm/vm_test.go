package vm

import (
	"bytes"
	"testing"

	"github.com/birdlang/bird/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, src string) string {
	t.Helper()
	var out bytes.Buffer
	v := New(WithOutput(&out))
	result, err := v.Interpret(src, "test")
	require.NoError(t, err, "unexpected runtime error: %v", err)
	require.Equal(t, InterpretOK, result)
	return out.String()
}

func TestArithmeticAndEcho(t *testing.T) {
	out := run(t, "var x = 1 + 2; echo x;")
	assert.Equal(t, "3\n", out)
}

func TestStringConcatInterns(t *testing.T) {
	src := `
var s = "a" + "b";
echo s == "ab";
`
	out := run(t, src)
	assert.Equal(t, "true\n", out)
}

// TestStringConcatSharesInternedPointer exercises the other half of scenario
// 2: a string built at runtime by concatenation and a compiled literal with
// identical contents end up as the same *Object.
func TestStringConcatSharesInternedPointer(t *testing.T) {
	var out bytes.Buffer
	v := New(WithOutput(&out))
	_, err := v.Interpret(`var s = "a" + "b";`, "test")
	require.NoError(t, err)

	key := value.FromObject(v.internString("s"))
	concatenated, ok := v.globals.Get(key)
	require.True(t, ok)

	literal := v.internString("ab")
	require.True(t, concatenated.IsObject())
	assert.Same(t, literal, concatenated.AsObject())
}

// TestInterpolationCoercesNonStringValue exercises spec.md §4.4's
// requirement that each interpolated expression is coerced to its string
// form before concatenation — a bare number (or any other non-string
// value) embedded in "{...}" must not raise OP_ADD's type-mismatch error.
func TestInterpolationCoercesNonStringValue(t *testing.T) {
	out := run(t, `var n = 2; echo "n = {n}, n+1 = {n + 1}";`)
	assert.Equal(t, "n = 2, n+1 = 3\n", out)
}

func TestClosureCapturesAndPersistsUpvalue(t *testing.T) {
	src := `
def counter() {
    var n = 0;
    return |-> n = n + 1;
}
var c = counter();
echo c();
echo c();
`
	out := run(t, src)
	assert.Equal(t, "1\n2\n", out)
}

func TestClassInheritanceAndSuper(t *testing.T) {
	src := `
class A { f() { return 1; } }
class B < A { f() { return super.f() + 1; } }
echo B().f();
`
	out := run(t, src)
	assert.Equal(t, "2\n", out)
}

func TestTryCatchFinally(t *testing.T) {
	src := `
try {
    raise Exception("x");
} catch (Exception as e) {
    echo e.message;
} finally {
    echo "done";
}
`
	out := run(t, src)
	assert.Equal(t, "x\ndone\n", out)
}

func TestFinallyReturnSupersedesPendingRaise(t *testing.T) {
	src := `
def f() {
    try {
        raise "boom";
    } finally {
        return 99;
    }
}
echo f();
`
	out := run(t, src)
	assert.Equal(t, "99\n", out)
}

// TestReturnInTryRunsFinallyBeforeReturning exercises spec.md §4.6's
// "finally blocks run on every exit path (normal, raised, returned)":
// a `return` lexically inside a try body must still run the finally
// arm before the function actually returns.
func TestReturnInTryRunsFinallyBeforeReturning(t *testing.T) {
	src := `
def f() {
    try {
        return 1;
    } finally {
        echo "cleanup";
    }
}
echo f();
`
	out := run(t, src)
	assert.Equal(t, "cleanup\n1\n", out)
}

// TestGCReclaimsTemporaryStrings exercises scenario 6: a loop that builds
// the same concatenated string 2000 times (interning keeps one object for
// it) under a small GC threshold, after which a full collection must not
// increase bytesAllocated.
func TestGCReclaimsTemporaryStrings(t *testing.T) {
	var out bytes.Buffer
	v := New(WithOutput(&out), WithInitialGC(1<<10))
	src := `
def churn() {
    var i = 0;
    while (i < 2000) {
        var s = "temp" + "x";
        i = i + 1;
    }
}
churn();
`
	_, err := v.Interpret(src, "test")
	require.NoError(t, err)
	before := v.bytesAllocated
	v.collectGarbage()
	assert.LessOrEqual(t, v.bytesAllocated, before)
}

func TestUncaughtRaiseReturnsRuntimeError(t *testing.T) {
	var out bytes.Buffer
	v := New(WithOutput(&out))
	result, err := v.Interpret(`raise Exception("boom");`, "test")
	require.Error(t, err)
	assert.Equal(t, InterpretRuntimeError, result)
	assert.Contains(t, err.Error(), "boom")
}

func TestStackOverflowRaisesWithoutCorruption(t *testing.T) {
	src := `
def recurse() {
    return recurse();
}
recurse();
`
	var out bytes.Buffer
	v := New(WithOutput(&out))
	result, err := v.Interpret(src, "test")
	require.Error(t, err)
	assert.Equal(t, InterpretRuntimeError, result)
	assert.Contains(t, err.Error(), "stack overflow")
}

func TestVariadicFunctionPacksTrailingArgsIntoList(t *testing.T) {
	src := `
def sum(first, rest...) {
    var total = first;
    foreach (x in rest) {
        total = total + x;
    }
    return total;
}
echo sum(1, 2, 3, 4);
`
	out := run(t, src)
	assert.Equal(t, "10\n", out)
}

func TestVariadicArityMismatchRaises(t *testing.T) {
	src := `
def needsOne(first, rest...) {
    return first;
}
needsOne();
`
	var out bytes.Buffer
	v := New(WithOutput(&out))
	result, err := v.Interpret(src, "test")
	require.Error(t, err)
	assert.Equal(t, InterpretRuntimeError, result)
}
