package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceObjectCopiesClassFieldDefaults(t *testing.T) {
	class := NewClassObject(NewStringObject("Point", HashBytes("Point")))
	class.Fields.Set(key("x"), Number(0))
	class.Fields.Set(key("y"), Number(0))

	inst := NewInstanceObject(class)

	v, ok := inst.InstanceFields.Get(key("x"))
	require.True(t, ok)
	assert.Equal(t, Number(0), v)

	// Mutating the instance must not affect the class defaults or other instances.
	inst.InstanceFields.Set(key("x"), Number(5))
	other := NewInstanceObject(class)
	v, _ = other.InstanceFields.Get(key("x"))
	assert.Equal(t, Number(0), v)
}

func TestObjectStringRendersEachKind(t *testing.T) {
	str := NewStringObject("hi", HashBytes("hi"))
	assert.Equal(t, "hi", str.String())

	list := NewListObject()
	list.Items = append(list.Items, Number(1), Number(2))
	assert.Equal(t, "[1, 2]", list.String())

	dict := NewDictObject()
	dict.Keys = append(dict.Keys, key("a"))
	dict.Table.Set(key("a"), Number(1))
	assert.Equal(t, "{a: 1}", dict.String())

	fn := NewFunctionObject()
	fn.Name = NewStringObject("f", HashBytes("f"))
	assert.Equal(t, "<function f>", fn.String())

	class := NewClassObject(NewStringObject("A", HashBytes("A")))
	inst := NewInstanceObject(class)
	assert.Equal(t, "<A instance>", inst.String())

	native := NewNativeObject("clock", func(ctx NativeContext, args []Value) (Value, error) {
		return Nil(), nil
	})
	assert.Equal(t, "<native clock>", native.String())
}

func TestNewClosureObjectSizesUpvalues(t *testing.T) {
	fn := NewFunctionObject()
	fn.UpvalueCount = 3
	cl := NewClosureObject(fn)
	assert.Len(t, cl.Upvalues, 3)
}

func TestObjKindString(t *testing.T) {
	assert.Equal(t, "string", ObjString.String())
	assert.Equal(t, "bound method", ObjBoundMethod.String())
	assert.Equal(t, "native function", ObjNative.String())
}
