package vm

import (
	"errors"
	"fmt"
	"math"
)

// ErrDivideByZero is raised by integer '//' and '%' with a zero divisor.
var ErrDivideByZero = errors.New("attempt to divide by zero.")

func infixError(op string, v Value) error {
	return fmt.Errorf("attempt to perform infix '%s' operation on type %s.", op, v.Kind)
}

// Infix applies a binary operator. Equality is defined for every kind; the
// remaining operators dispatch on the left operand.
func Infix(op string, left, right Value) (Value, error) {
	switch op {
	case "==":
		return Bool(Equal(left, right)), nil
	case "!=":
		return Bool(!Equal(left, right)), nil
	}
	switch left.Kind {
	case KindInt:
		return intInfix(op, left, right)
	case KindFloat:
		return floatInfix(op, left, right)
	case KindString:
		return stringInfix(op, left, right)
	default:
		return Null(), infixError(op, left)
	}
}

func intInfix(op string, left, right Value) (Value, error) {
	switch right.Kind {
	case KindFloat:
		if v, ok, err := floatArith(op, float64(left.Int), right.Float); ok {
			return v, err
		}
		return Null(), infixError(op, left)
	case KindInt:
	default:
		return Null(), infixError(op, left)
	}

	a, b := left.Int, right.Int
	switch op {
	case "+":
		return Int(a + b), nil
	case "-":
		return Int(a - b), nil
	case "*":
		return Int(a * b), nil
	case "/":
		return Float(float64(a) / float64(b)), nil
	case "//":
		if b == 0 {
			return Null(), ErrDivideByZero
		}
		return Int(a / b), nil
	case "%":
		if b == 0 {
			return Null(), ErrDivideByZero
		}
		return Int(a % b), nil
	case "^":
		if b < 0 {
			return Float(math.Pow(float64(a), float64(b))), nil
		}
		return Int(intPow(a, b)), nil
	case "<":
		return Bool(a < b), nil
	case "<=":
		return Bool(a <= b), nil
	case ">":
		return Bool(a > b), nil
	case ">=":
		return Bool(a >= b), nil
	case "&":
		return Int(a & b), nil
	case "|":
		return Int(a | b), nil
	case "~":
		return Int(a ^ b), nil
	case "<<", ">>":
		if b < 0 {
			return Null(), fmt.Errorf("negative shift count %d.", b)
		}
		if op == "<<" {
			return Int(a << uint64(b)), nil
		}
		return Int(a >> uint64(b)), nil
	default:
		return Null(), infixError(op, left)
	}
}

func floatInfix(op string, left, right Value) (Value, error) {
	var b float64
	switch right.Kind {
	case KindFloat:
		b = right.Float
	case KindInt:
		b = float64(right.Int)
	default:
		return Null(), infixError(op, left)
	}
	if v, ok, err := floatArith(op, left.Float, b); ok {
		return v, err
	}
	return Null(), infixError(op, left)
}

// floatArith reports ok=false for operators floats do not define.
func floatArith(op string, a, b float64) (Value, bool, error) {
	switch op {
	case "+":
		return Float(a + b), true, nil
	case "-":
		return Float(a - b), true, nil
	case "*":
		return Float(a * b), true, nil
	case "/":
		return Float(a / b), true, nil
	case "//":
		if b == 0 {
			return Null(), true, ErrDivideByZero
		}
		return Int(int64(math.Trunc(a / b))), true, nil
	case "%":
		return Float(math.Mod(a, b)), true, nil
	case "^":
		return Float(math.Pow(a, b)), true, nil
	case "<":
		return Bool(a < b), true, nil
	case "<=":
		return Bool(a <= b), true, nil
	case ">":
		return Bool(a > b), true, nil
	case ">=":
		return Bool(a >= b), true, nil
	default:
		return Null(), false, nil
	}
}

func stringInfix(op string, left, right Value) (Value, error) {
	if op == "+" {
		return String(left.Str + right.String()), nil
	}
	if right.Kind != KindString {
		return Null(), infixError(op, left)
	}
	a, b := left.Str, right.Str
	switch op {
	case "<":
		return Bool(a < b), nil
	case "<=":
		return Bool(a <= b), nil
	case ">":
		return Bool(a > b), nil
	case ">=":
		return Bool(a >= b), nil
	default:
		return Null(), infixError(op, left)
	}
}

func intPow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

// Prefix applies a unary prefix operator.
func Prefix(op string, v Value) (Value, error) {
	switch op {
	case "!", "not":
		return Bool(!Truthy(v)), nil
	case "-":
		switch v.Kind {
		case KindInt:
			return Int(-v.Int), nil
		case KindFloat:
			return Float(-v.Float), nil
		}
	case "~":
		if v.Kind == KindInt {
			return Int(^v.Int), nil
		}
	}
	return Null(), fmt.Errorf("attempt to perform prefix '%s' operation on type %s.", op, v.Kind)
}

// Postfix applies a unary postfix operator. No built-in kind defines one.
func Postfix(op string, v Value) (Value, error) {
	return Null(), fmt.Errorf("attempt to perform postfix '%s' operation on type %s.", op, v.Kind)
}

// indexGet reads target[index] for lists and strings.
func indexGet(target, index Value) (Value, error) {
	switch target.Kind {
	case KindList:
		i, err := expectIndex(index, len(target.List.Items))
		if err != nil {
			return Null(), err
		}
		return target.List.Items[i], nil
	case KindString:
		i, err := expectIndex(index, len(target.Str))
		if err != nil {
			return Null(), err
		}
		return String(target.Str[i : i+1]), nil
	default:
		return Null(), fmt.Errorf("attempt to index type %s.", target.Kind)
	}
}

func indexSet(target, index, val Value) error {
	if target.Kind != KindList {
		return fmt.Errorf("attempt to assign an index of type %s.", target.Kind)
	}
	i, err := expectIndex(index, len(target.List.Items))
	if err != nil {
		return err
	}
	target.List.Items[i] = val
	return nil
}

func expectIndex(index Value, length int) (int, error) {
	if index.Kind != KindInt {
		return 0, fmt.Errorf("index must be int, got %s.", index.Kind)
	}
	if index.Int < 0 || index.Int >= int64(length) {
		return 0, fmt.Errorf("index %d out of bounds for length %d.", index.Int, length)
	}
	return int(index.Int), nil
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func toFloat(v Value) float64 {
	if v.Kind == KindInt {
		return float64(v.Int)
	}
	return v.Float
}
