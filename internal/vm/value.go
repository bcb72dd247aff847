package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/xirelogy/go-laye/internal/bytecode"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindClosure
	KindNative
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindClosure:
		return "closure"
	case KindNative:
		return "native"
	default:
		return "unknown"
	}
}

// Value is a tagged runtime value. Lists, closures and natives are held by
// reference; the scalar kinds are copied.
type Value struct {
	Kind    Kind
	B       bool
	Int     int64
	Float   float64
	Str     string
	List    *List
	Closure *Closure
	Native  *Native
}

// List is a mutable, growable sequence shared by every value that refers to it.
type List struct {
	Items []Value
}

// NativeFunc represents a host-provided callable.
type NativeFunc func(*VM, []Value) (Value, error)

// Native wraps a host function so it can occupy a global slot.
type Native struct {
	Name string
	// Arity is the expected argument count, or -1 for any.
	Arity int
	Fn    NativeFunc
}

// Closure is a prototype bound to its captured upvalues and the frame that
// built it.
type Closure struct {
	Proto    *bytecode.Prototype
	Frame    FrameID
	Upvalues []*Upvalue
}

// Name reports the prototype name, or a placeholder for anonymous functions.
func (c *Closure) Name() string {
	if c == nil || c.Proto == nil || c.Proto.Name == "" {
		return "<anonymous>"
	}
	return c.Proto.Name
}

func Null() Value           { return Value{Kind: KindNull} }
func Bool(b bool) Value     { return Value{Kind: KindBool, B: b} }
func Int(n int64) Value     { return Value{Kind: KindInt, Int: n} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// NewList builds a list value owning items.
func NewList(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindList, List: &List{Items: items}}
}

// NativeValue wraps fn as a callable value.
func NativeValue(name string, arity int, fn NativeFunc) Value {
	return Value{Kind: KindNative, Native: &Native{Name: name, Arity: arity, Fn: fn}}
}

func closureValue(c *Closure) Value {
	return Value{Kind: KindClosure, Closure: c}
}

// Truthy reports the truthiness of v: null and false are false, everything
// else is true.
func Truthy(v Value) bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.B
	default:
		return true
	}
}

// Equal compares by value for scalars and by identity for reference kinds.
// Ints and floats compare numerically.
func Equal(a, b Value) bool {
	if isNumber(a) && isNumber(b) {
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.Int == b.Int
		}
		return toFloat(a) == toFloat(b)
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.B == b.B
	case KindString:
		return a.Str == b.Str
	case KindList:
		return a.List == b.List
	case KindClosure:
		return a.Closure == b.Closure
	case KindNative:
		return a.Native == b.Native
	default:
		return false
	}
}

// String renders v the way Print shows it.
func (v Value) String() string {
	var sb strings.Builder
	writeValue(&sb, v, false)
	return sb.String()
}

func writeValue(sb *strings.Builder, v Value, quote bool) {
	switch v.Kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.B))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.Int, 10))
	case KindFloat:
		sb.WriteString(formatFloat(v.Float))
	case KindString:
		if quote {
			sb.WriteString(strconv.Quote(v.Str))
		} else {
			sb.WriteString(v.Str)
		}
	case KindList:
		sb.WriteByte('[')
		if v.List != nil {
			for i, item := range v.List.Items {
				if i > 0 {
					sb.WriteString(", ")
				}
				writeValue(sb, item, true)
			}
		}
		sb.WriteByte(']')
	case KindClosure:
		sb.WriteString("<fn ")
		sb.WriteString(v.Closure.Name())
		sb.WriteByte('>')
	case KindNative:
		sb.WriteString("<native ")
		if v.Native != nil {
			sb.WriteString(v.Native.Name)
		}
		sb.WriteByte('>')
	default:
		sb.WriteString("<unknown>")
	}
}

// formatFloat always marks finite floats with a fraction so 2.0 does not
// print like the int 2.
func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func constToValue(c bytecode.Constant) (Value, bool) {
	switch c.Kind {
	case bytecode.ConstInt:
		return Int(c.Int), true
	case bytecode.ConstFloat:
		return Float(c.Float), true
	case bytecode.ConstString:
		return String(c.Str), true
	default:
		return Null(), false
	}
}
