package bytecode

import "fmt"

// Instruction is one packed 32-bit instruction word.
//
//	bits  0-7   opcode
//	bits  8-15  B
//	bits 16-31  A
//	bits  8-31  C (overlaps A and B)
//
// Signed operands are stored biased: stored = value - Min.
type Instruction uint32

const (
	posOp = 0
	posB  = 8
	posA  = 16
	posC  = 8

	sizeOp = 8
	sizeB  = 8
	sizeA  = 16
	sizeC  = 24
)

const (
	MaxA = 1<<sizeA - 1
	MaxB = 1<<sizeB - 1
	MaxC = 1<<sizeC - 1

	MinSA = -(1 << (sizeA - 1))
	MaxSA = MaxA + MinSA
	MinSB = -(1 << (sizeB - 1))
	MaxSB = MaxB + MinSB
	MinSC = -(1 << (sizeC - 1))
	MaxSC = MaxC + MinSC
)

const (
	maskOp = 1<<sizeOp - 1
	maskA  = MaxA
	maskB  = MaxB
	maskC  = MaxC
)

// Make encodes an operand-less instruction.
func Make(op Opcode) Instruction {
	return Instruction(op) << posOp
}

// MakeA encodes op with an unsigned A operand.
func MakeA(op Opcode, a int) (Instruction, error) {
	if a < 0 || a > MaxA {
		return 0, rangeErr(op, "A", a)
	}
	return Make(op) | Instruction(a)<<posA, nil
}

// MakeAB encodes op with unsigned A and B operands.
func MakeAB(op Opcode, a, b int) (Instruction, error) {
	if b < 0 || b > MaxB {
		return 0, rangeErr(op, "B", b)
	}
	ins, err := MakeA(op, a)
	if err != nil {
		return 0, err
	}
	return ins | Instruction(b)<<posB, nil
}

// MakeB encodes op with an unsigned B operand.
func MakeB(op Opcode, b int) (Instruction, error) {
	return MakeAB(op, 0, b)
}

// MakeC encodes op with an unsigned 24-bit C operand.
func MakeC(op Opcode, c int) (Instruction, error) {
	if c < 0 || c > MaxC {
		return 0, rangeErr(op, "C", c)
	}
	return Make(op) | Instruction(c)<<posC, nil
}

// MakeSA encodes op with a signed A operand.
func MakeSA(op Opcode, a int) (Instruction, error) {
	if a < MinSA || a > MaxSA {
		return 0, rangeErr(op, "sA", a)
	}
	return Make(op) | Instruction(a-MinSA)<<posA, nil
}

// MakeSAB encodes op with signed A and signed B operands.
func MakeSAB(op Opcode, a, b int) (Instruction, error) {
	if b < MinSB || b > MaxSB {
		return 0, rangeErr(op, "sB", b)
	}
	ins, err := MakeSA(op, a)
	if err != nil {
		return 0, err
	}
	return ins | Instruction(b-MinSB)<<posB, nil
}

// MakeSC encodes op with a signed 24-bit C operand.
func MakeSC(op Opcode, c int) (Instruction, error) {
	if c < MinSC || c > MaxSC {
		return 0, rangeErr(op, "sC", c)
	}
	return Make(op) | Instruction(c-MinSC)<<posC, nil
}

// MustA is MakeA that panics with an *InternalError.
func MustA(op Opcode, a int) Instruction {
	return must(MakeA(op, a))
}

// MustAB is MakeAB that panics with an *InternalError.
func MustAB(op Opcode, a, b int) Instruction {
	return must(MakeAB(op, a, b))
}

// MustB is MakeB that panics with an *InternalError.
func MustB(op Opcode, b int) Instruction {
	return must(MakeB(op, b))
}

func must(ins Instruction, err error) Instruction {
	if err != nil {
		panic(&InternalError{Msg: err.Error()})
	}
	return ins
}

func rangeErr(op Opcode, field string, v int) error {
	return fmt.Errorf("%s: operand %s=%d: %w", op, field, v, ErrOperandRange)
}

// Op returns the opcode.
func (i Instruction) Op() Opcode { return Opcode(uint32(i) >> posOp & maskOp) }

// A returns the unsigned A operand.
func (i Instruction) A() int { return int(uint32(i) >> posA & maskA) }

// B returns the unsigned B operand.
func (i Instruction) B() int { return int(uint32(i) >> posB & maskB) }

// C returns the unsigned C operand.
func (i Instruction) C() int { return int(uint32(i) >> posC & maskC) }

// SA returns the signed A operand.
func (i Instruction) SA() int { return i.A() + MinSA }

// SB returns the signed B operand.
func (i Instruction) SB() int { return i.B() + MinSB }

// SC returns the signed C operand.
func (i Instruction) SC() int { return i.C() + MinSC }

// WithA returns i with its A operand replaced.
func (i Instruction) WithA(a int) (Instruction, error) {
	if a < 0 || a > MaxA {
		return 0, rangeErr(i.Op(), "A", a)
	}
	return i&^(maskA<<posA) | Instruction(a)<<posA, nil
}

// WithB returns i with its B operand replaced.
func (i Instruction) WithB(b int) (Instruction, error) {
	if b < 0 || b > MaxB {
		return 0, rangeErr(i.Op(), "B", b)
	}
	return i&^(maskB<<posB) | Instruction(b)<<posB, nil
}
