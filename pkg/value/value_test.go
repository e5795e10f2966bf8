package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualNumbers(t *testing.T) {
	assert.True(t, Equal(Number(1), Number(1)))
	assert.False(t, Equal(Number(1), Number(2)))
}

func TestEqualNaNIsNeverEqual(t *testing.T) {
	nan := Number(nan())
	assert.False(t, Equal(nan, nan), "IEEE-754 NaN must not equal itself")
}

func TestEqualObjectsArePointerIdentity(t *testing.T) {
	a := NewStringObject("x", HashBytes("x"))
	b := NewStringObject("x", HashBytes("x"))
	assert.True(t, Equal(FromObject(a), FromObject(a)))
	assert.False(t, Equal(FromObject(a), FromObject(b)), "distinct objects with equal contents are not Equal")
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, IsTruthy(Nil()))
	assert.False(t, IsTruthy(Empty()))
	assert.False(t, IsTruthy(Bool(false)))
	assert.True(t, IsTruthy(Bool(true)))
	assert.True(t, IsTruthy(Number(0)))
	assert.True(t, IsTruthy(FromObject(NewStringObject("", 0))))
}

func TestKindRoundTrip(t *testing.T) {
	require.Equal(t, KindNil, Nil().Kind())
	require.Equal(t, KindEmpty, Empty().Kind())
	require.Equal(t, KindBool, Bool(true).Kind())
	require.Equal(t, KindNumber, Number(3.5).Kind())
	obj := NewListObject()
	require.Equal(t, KindObject, FromObject(obj).Kind())
	assert.Equal(t, obj, FromObject(obj).AsObject())
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "3", FormatNumber(3))
	assert.Equal(t, "-3", FormatNumber(-3))
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "3.5", FormatNumber(3.5))
}

func nan() float64 {
	var zero float64
	return zero / zero
}
