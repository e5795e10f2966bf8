package value

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) Value {
	return FromObject(NewStringObject(s, HashBytes(s)))
}

func TestTableSetReportsNewVsReplace(t *testing.T) {
	tbl := NewTable()
	assert.True(t, tbl.Set(key("a"), Number(1)), "first insert is new")
	assert.False(t, tbl.Set(key("a"), Number(2)), "second insert replaces")

	v, ok := tbl.Get(key("a"))
	require.True(t, ok)
	assert.Equal(t, Number(2), v)
}

func TestTableGetMissingReturnsEmpty(t *testing.T) {
	tbl := NewTable()
	v, ok := tbl.Get(key("missing"))
	assert.False(t, ok)
	assert.Equal(t, KindEmpty, v.Kind())
}

func TestTableDeleteTombstonesAndLookupStillFindsLaterInsert(t *testing.T) {
	tbl := NewTable()
	tbl.Set(key("a"), Number(1))
	tbl.Set(key("b"), Number(2))
	require.True(t, tbl.Delete(key("a")))

	_, ok := tbl.Get(key("a"))
	assert.False(t, ok)
	v, ok := tbl.Get(key("b"))
	require.True(t, ok)
	assert.Equal(t, Number(2), v)
}

func TestTableGrowsPastLoadFactor(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < 100; i++ {
		tbl.Set(key(string(rune('a'+i%26))+strconv.Itoa(i)), Number(float64(i)))
	}
	assert.Equal(t, 100, tbl.Len())
}

func TestAddAllIntoCopiesLiveEntriesOnly(t *testing.T) {
	src := NewTable()
	src.Set(key("a"), Number(1))
	src.Set(key("b"), Number(2))
	src.Delete(key("a"))

	dst := NewTable()
	src.AddAllInto(dst)

	assert.False(t, dst.Has(key("a")), "tombstoned entries must not be copied")
	assert.True(t, dst.Has(key("b")))
}

func TestRemoveWhiteStringsSweepsOnlyUnmarked(t *testing.T) {
	tbl := NewTable()
	white := NewStringObject("white", HashBytes("white"))
	black := NewStringObject("black", HashBytes("black"))
	black.Marked = true
	tbl.Set(FromObject(white), Bool(true))
	tbl.Set(FromObject(black), Bool(true))

	tbl.RemoveWhiteStrings(func(o *Object) bool { return !o.Marked })

	assert.False(t, tbl.Has(FromObject(white)))
	assert.True(t, tbl.Has(FromObject(black)))
}

func TestFindInternedStringMatchesByContentAndHash(t *testing.T) {
	tbl := NewTable()
	s := NewStringObject("hello", HashBytes("hello"))
	tbl.Set(FromObject(s), Nil())

	found := tbl.FindInternedString("hello", HashBytes("hello"))
	require.NotNil(t, found)
	assert.Same(t, s, found)

	assert.Nil(t, tbl.FindInternedString("goodbye", HashBytes("goodbye")))
}
