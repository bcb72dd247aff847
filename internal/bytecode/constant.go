package bytecode

import (
	"strconv"
)

// ConstKind tags a constant pool entry.
type ConstKind uint8

const (
	ConstInt ConstKind = iota + 1
	ConstFloat
	ConstString
	// ConstOperator holds an operator name for PREFIX, POSTFIX and INFIX.
	ConstOperator
)

func (k ConstKind) String() string {
	switch k {
	case ConstInt:
		return "int"
	case ConstFloat:
		return "float"
	case ConstString:
		return "string"
	case ConstOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// Constant is a comparable pool entry. Equal constants share one pool index.
type Constant struct {
	Kind  ConstKind `cbor:"1,keyasint"`
	Int   int64     `cbor:"2,keyasint,omitempty"`
	Float float64   `cbor:"3,keyasint,omitempty"`
	Str   string    `cbor:"4,keyasint,omitempty"`
}

func IntConst(v int64) Constant       { return Constant{Kind: ConstInt, Int: v} }
func FloatConst(v float64) Constant   { return Constant{Kind: ConstFloat, Float: v} }
func StringConst(v string) Constant   { return Constant{Kind: ConstString, Str: v} }
func OperatorConst(v string) Constant { return Constant{Kind: ConstOperator, Str: v} }

func (c Constant) String() string {
	switch c.Kind {
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case ConstString:
		return strconv.Quote(c.Str)
	case ConstOperator:
		return "op " + c.Str
	default:
		return "<invalid>"
	}
}
