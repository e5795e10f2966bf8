package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBytesIsDeterministic(t *testing.T) {
	assert.Equal(t, HashBytes("hello"), HashBytes("hello"))
	assert.NotEqual(t, HashBytes("hello"), HashBytes("world"))
}

func TestHashValueUsesCachedHashForStrings(t *testing.T) {
	s := NewStringObject("hello", HashBytes("hello"))
	assert.Equal(t, s.Hash, HashValue(FromObject(s)))
}

func TestHashValueDistinguishesScalarKinds(t *testing.T) {
	hashes := map[uint32]bool{
		HashValue(Nil()):        true,
		HashValue(Empty()):      true,
		HashValue(Bool(true)):   true,
		HashValue(Bool(false)):  true,
	}
	assert.Len(t, hashes, 4, "nil/empty/true/false should not collide with each other")
}
