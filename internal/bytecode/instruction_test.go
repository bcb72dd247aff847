package bytecode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsignedOperandBoundaries(t *testing.T) {
	for _, op := range Opcodes() {
		for _, a := range []int{0, 1, MaxA - 1, MaxA} {
			for _, b := range []int{0, 1, MaxB} {
				ins, err := MakeAB(op, a, b)
				require.NoError(t, err)
				assert.Equal(t, op, ins.Op())
				assert.Equal(t, a, ins.A())
				assert.Equal(t, b, ins.B())
			}
		}
		for _, c := range []int{0, 1, MaxC} {
			ins, err := MakeC(op, c)
			require.NoError(t, err)
			assert.Equal(t, op, ins.Op())
			assert.Equal(t, c, ins.C())
		}
	}
}

func TestSignedOperandBoundaries(t *testing.T) {
	for _, a := range []int{MinSA, -1, 0, 1, MaxSA} {
		for _, b := range []int{MinSB, -1, 0, MaxSB} {
			ins, err := MakeSAB(OP_JUMP, a, b)
			require.NoError(t, err)
			assert.Equal(t, OP_JUMP, ins.Op())
			assert.Equal(t, a, ins.SA())
			assert.Equal(t, b, ins.SB())
		}
	}
	for _, c := range []int{MinSC, -1, 0, 1, MaxSC} {
		ins, err := MakeSC(OP_TRY_END, c)
		require.NoError(t, err)
		assert.Equal(t, OP_TRY_END, ins.Op())
		assert.Equal(t, c, ins.SC())
	}
	assert.Equal(t, -32768, MinSA)
	assert.Equal(t, -128, MinSB)
	assert.Equal(t, -8388608, MinSC)
}

func TestOperandOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		make func() (Instruction, error)
	}{
		{"A too large", func() (Instruction, error) { return MakeA(OP_LOAD_LOCAL, MaxA+1) }},
		{"A negative", func() (Instruction, error) { return MakeA(OP_LOAD_LOCAL, -1) }},
		{"B too large", func() (Instruction, error) { return MakeB(OP_INVOKE, MaxB+1) }},
		{"C too large", func() (Instruction, error) { return MakeC(OP_JUMP, MaxC+1) }},
		{"sA too small", func() (Instruction, error) { return MakeSA(OP_JUMP, MinSA-1) }},
		{"sB too large", func() (Instruction, error) { return MakeSAB(OP_JUMP, 0, MaxSB+1) }},
		{"sC too small", func() (Instruction, error) { return MakeSC(OP_JUMP, MinSC-1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.make()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOperandRange))
		})
	}
}

func TestMustPanicsWithInternalError(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*InternalError)
		assert.True(t, ok, "expected *InternalError, got %T", r)
	}()
	MustA(OP_LOAD_CONST, MaxA+1)
}

func TestWithOperands(t *testing.T) {
	ins := MustAB(OP_TEST, 3, 1)
	patched, err := ins.WithA(400)
	require.NoError(t, err)
	assert.Equal(t, OP_TEST, patched.Op())
	assert.Equal(t, 400, patched.A())
	assert.Equal(t, 1, patched.B())

	ret := Make(OP_RETURN)
	closed, err := ret.WithB(1)
	require.NoError(t, err)
	assert.Equal(t, OP_RETURN, closed.Op())
	assert.Equal(t, 1, closed.B())
	assert.Equal(t, 0, closed.A())

	_, err = ret.WithB(MaxB + 1)
	assert.ErrorIs(t, err, ErrOperandRange)
}

func TestOpcodeNumbering(t *testing.T) {
	assert.Equal(t, Opcode(0x00), OP_CLOSE_UP_VALUES)
	assert.Equal(t, Opcode(0x1D), OP_RETURN)
	assert.Equal(t, Opcode(0x2E), OP_TRY_END)
	assert.Len(t, Opcodes(), 0x2F)
	assert.Equal(t, "INVOKE", OP_INVOKE.String())
	assert.Equal(t, "OP_0x7F", Opcode(0x7F).String())
}
