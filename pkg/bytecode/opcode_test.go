package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpcodeStringNames(t *testing.T) {
	assert.Equal(t, "CONSTANT", OpConstant.String())
	assert.Equal(t, "INVOKE", OpInvoke.String())
	assert.Equal(t, "RAISE", OpRaise.String())
}

func TestOpcodeStringUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", Op(255).String())
}

func TestOperandBytesMatchesInstructionShape(t *testing.T) {
	assert.Equal(t, 0, OperandBytes(OpAdd))
	assert.Equal(t, 1, OperandBytes(OpConstant))
	assert.Equal(t, 1, OperandBytes(OpGetLocal))
	assert.Equal(t, 2, OperandBytes(OpJump))
	assert.Equal(t, 2, OperandBytes(OpInvoke))
	assert.Equal(t, 4, OperandBytes(OpPushTry))
}
