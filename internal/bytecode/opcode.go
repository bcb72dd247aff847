package bytecode

import "fmt"

// Opcode is the low byte of an instruction word.
type Opcode uint8

const (
	OP_CLOSE_UP_VALUES Opcode = 0x00

	OP_POP Opcode = 0x01
	OP_DUP Opcode = 0x02

	OP_LOAD_LOCAL   Opcode = 0x03
	OP_STORE_LOCAL  Opcode = 0x04
	OP_LOAD_GLOBAL  Opcode = 0x05
	OP_STORE_GLOBAL Opcode = 0x06
	OP_LOAD_UPVAL   Opcode = 0x07
	OP_STORE_UPVAL  Opcode = 0x08
	OP_LOAD_INDEX   Opcode = 0x09
	OP_STORE_INDEX  Opcode = 0x0A

	OP_LOAD_BOOL  Opcode = 0x0B
	OP_LOAD_NULL  Opcode = 0x0C
	OP_LOAD_CONST Opcode = 0x0D

	OP_BUILD_CLOSURE Opcode = 0x0E
	OP_BUILD_TYPE    Opcode = 0x0F

	OP_PREFIX  Opcode = 0x10
	OP_POSTFIX Opcode = 0x11
	OP_INFIX   Opcode = 0x12
	OP_TYPEOF  Opcode = 0x13

	OP_AND       Opcode = 0x14
	OP_OR        Opcode = 0x15
	OP_XOR       Opcode = 0x16
	OP_IS_TYPEOF Opcode = 0x17

	OP_TEST Opcode = 0x18
	OP_JUMP Opcode = 0x19

	OP_INVOKE        Opcode = 0x1A
	OP_INVOKE_METHOD Opcode = 0x1B
	OP_TAIL_CALL     Opcode = 0x1C
	OP_RETURN        Opcode = 0x1D
	OP_YIELD         Opcode = 0x1E
	OP_RESUME        Opcode = 0x1F

	OP_THIS  Opcode = 0x20
	OP_BASE  Opcode = 0x21
	OP_REF   Opcode = 0x22
	OP_DEREF Opcode = 0x23
	OP_IS    Opcode = 0x24

	OP_LIST  Opcode = 0x25
	OP_TUPLE Opcode = 0x26
	OP_NEW   Opcode = 0x27

	OP_FOR_PREP      Opcode = 0x28
	OP_FOR_TEST      Opcode = 0x29
	OP_FOR_EACH      Opcode = 0x2A
	OP_POST_FOR_EACH Opcode = 0x2B

	OP_MATCH     Opcode = 0x2C
	OP_TRY_START Opcode = 0x2D
	OP_TRY_END   Opcode = 0x2E
)

// Format names the operand layout an opcode uses.
type Format uint8

const (
	FormatNone Format = iota
	FormatA           // unsigned 16-bit A
	FormatAB          // unsigned A and unsigned 8-bit B
	FormatB           // unsigned 8-bit B
)

// OpInfo describes an opcode for the builder and the disassembler.
type OpInfo struct {
	Name   string
	Format Format
	// Reserved opcodes are encodable but not executed by the VM.
	Reserved bool
}

var opInfo = map[Opcode]OpInfo{
	OP_CLOSE_UP_VALUES: {Name: "CLOSE_UP_VALUES", Format: FormatA},
	OP_POP:             {Name: "POP"},
	OP_DUP:             {Name: "DUP"},
	OP_LOAD_LOCAL:      {Name: "LOAD_LOCAL", Format: FormatA},
	OP_STORE_LOCAL:     {Name: "STORE_LOCAL", Format: FormatA},
	OP_LOAD_GLOBAL:     {Name: "LOAD_GLOBAL", Format: FormatA},
	OP_STORE_GLOBAL:    {Name: "STORE_GLOBAL", Format: FormatA},
	OP_LOAD_UPVAL:      {Name: "LOAD_UPVAL", Format: FormatA},
	OP_STORE_UPVAL:     {Name: "STORE_UPVAL", Format: FormatA},
	OP_LOAD_INDEX:      {Name: "LOAD_INDEX"},
	OP_STORE_INDEX:     {Name: "STORE_INDEX"},
	OP_LOAD_BOOL:       {Name: "LOAD_BOOL", Format: FormatA},
	OP_LOAD_NULL:       {Name: "LOAD_NULL"},
	OP_LOAD_CONST:      {Name: "LOAD_CONST", Format: FormatA},
	OP_BUILD_CLOSURE:   {Name: "BUILD_CLOSURE", Format: FormatA},
	OP_BUILD_TYPE:      {Name: "BUILD_TYPE", Format: FormatA, Reserved: true},
	OP_PREFIX:          {Name: "PREFIX", Format: FormatA},
	OP_POSTFIX:         {Name: "POSTFIX", Format: FormatA},
	OP_INFIX:           {Name: "INFIX", Format: FormatA},
	OP_TYPEOF:          {Name: "TYPEOF"},
	OP_AND:             {Name: "AND", Reserved: true},
	OP_OR:              {Name: "OR", Reserved: true},
	OP_XOR:             {Name: "XOR"},
	OP_IS_TYPEOF:       {Name: "IS_TYPEOF", Reserved: true},
	OP_TEST:            {Name: "TEST", Format: FormatAB},
	OP_JUMP:            {Name: "JUMP", Format: FormatA},
	OP_INVOKE:          {Name: "INVOKE", Format: FormatB},
	OP_INVOKE_METHOD:   {Name: "INVOKE_METHOD", Format: FormatAB, Reserved: true},
	OP_TAIL_CALL:       {Name: "TAIL_CALL", Format: FormatB, Reserved: true},
	OP_RETURN:          {Name: "RETURN", Format: FormatAB},
	OP_YIELD:           {Name: "YIELD", Reserved: true},
	OP_RESUME:          {Name: "RESUME", Reserved: true},
	OP_THIS:            {Name: "THIS", Reserved: true},
	OP_BASE:            {Name: "BASE", Reserved: true},
	OP_REF:             {Name: "REF", Reserved: true},
	OP_DEREF:           {Name: "DEREF", Reserved: true},
	OP_IS:              {Name: "IS", Reserved: true},
	OP_LIST:            {Name: "LIST", Format: FormatA},
	OP_TUPLE:           {Name: "TUPLE", Format: FormatA, Reserved: true},
	OP_NEW:             {Name: "NEW", Format: FormatAB, Reserved: true},
	OP_FOR_PREP:        {Name: "FOR_PREP", Format: FormatA, Reserved: true},
	OP_FOR_TEST:        {Name: "FOR_TEST", Format: FormatA, Reserved: true},
	OP_FOR_EACH:        {Name: "FOR_EACH", Format: FormatA, Reserved: true},
	OP_POST_FOR_EACH:   {Name: "POST_FOR_EACH", Format: FormatA, Reserved: true},
	OP_MATCH:           {Name: "MATCH", Format: FormatA, Reserved: true},
	OP_TRY_START:       {Name: "TRY_START", Format: FormatA, Reserved: true},
	OP_TRY_END:         {Name: "TRY_END", Reserved: true},
}

// Info returns the descriptor for op.
func (op Opcode) Info() (OpInfo, bool) {
	info, ok := opInfo[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := opInfo[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("OP_0x%02X", uint8(op))
}

// Opcodes lists every defined opcode in numeric order.
func Opcodes() []Opcode {
	out := make([]Opcode, 0, len(opInfo))
	for op := OP_CLOSE_UP_VALUES; op <= OP_TRY_END; op++ {
		if _, ok := opInfo[op]; ok {
			out = append(out, op)
		}
	}
	return out
}
