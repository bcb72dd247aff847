package laye

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/xirelogy/go-laye/internal/vm"
)

// VmValue is a marshaled value that is compatible with laye types.
// It wraps the internal vm.Value representation.
type VmValue struct {
	v     vm.Value
	owner *vm.VM
}

// ArgError represents a typed argument validation error for host functions.
type ArgError struct {
	Name string
	Want string
	Got  string
}

func (e ArgError) Error() string {
	switch {
	case e.Name != "" && e.Want != "" && e.Got != "":
		return fmt.Sprintf("argument %q: want %s, got %s", e.Name, e.Want, e.Got)
	case e.Name != "" && e.Want != "":
		return fmt.Sprintf("argument %q: want %s", e.Name, e.Want)
	case e.Want != "" && e.Got != "":
		return fmt.Sprintf("want %s, got %s", e.Want, e.Got)
	default:
		return "argument error"
	}
}

// Marshaler allows custom control over Go→laye conversion.
type Marshaler interface {
	MarshalLaye() (VmValue, error)
}

// Unmarshaler allows custom control over laye→Go conversion in Unmarshal.
type Unmarshaler interface {
	UnmarshalLaye(VmValue) error
}

// ValueKind mirrors the runtime kinds for convenient inspection.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueString
	ValueList
	ValueClosure
	ValueNative
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueBool:
		return "bool"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueString:
		return "string"
	case ValueList:
		return "list"
	case ValueClosure:
		return "closure"
	case ValueNative:
		return "native"
	default:
		return "unknown"
	}
}

func kindOf(v vm.Value) ValueKind {
	switch v.Kind {
	case vm.KindBool:
		return ValueBool
	case vm.KindInt:
		return ValueInt
	case vm.KindFloat:
		return ValueFloat
	case vm.KindString:
		return ValueString
	case vm.KindList:
		return ValueList
	case vm.KindClosure:
		return ValueClosure
	case vm.KindNative:
		return ValueNative
	default:
		return ValueNull
	}
}

// NewValue marshals a Go value into a laye-compatible VmValue.
func NewValue(val any) (VmValue, error) {
	v, err := marshalGoValue(val)
	if err != nil {
		return VmValue{}, err
	}
	return VmValue{v: v}, nil
}

// MustValue marshals and panics on error (convenience for tests/examples).
func MustValue(val any) VmValue {
	v, err := NewValue(val)
	if err != nil {
		panic(err)
	}
	return v
}

// Kind reports the underlying value kind.
func (v VmValue) Kind() ValueKind {
	return kindOf(v.v)
}

// Text renders the value the way Print does.
func (v VmValue) Text() string {
	return v.v.String()
}

// Truthy reports whether a condition would take this value as true.
func (v VmValue) Truthy() bool {
	return vm.Truthy(v.v)
}

// IsNull reports whether the value is null.
func (v VmValue) IsNull() bool {
	return v.v.Kind == vm.KindNull
}

// Bool returns the boolean value when the kind matches.
func (v VmValue) Bool() (bool, bool) {
	if v.v.Kind != vm.KindBool {
		return false, false
	}
	return v.v.B, true
}

// Int returns the integer value when the kind matches.
func (v VmValue) Int() (int64, bool) {
	if v.v.Kind != vm.KindInt {
		return 0, false
	}
	return v.v.Int, true
}

// Float returns the float value when the kind matches.
func (v VmValue) Float() (float64, bool) {
	if v.v.Kind != vm.KindFloat {
		return 0, false
	}
	return v.v.Float, true
}

// Number returns int or float values widened to float64.
func (v VmValue) Number() (float64, bool) {
	switch v.v.Kind {
	case vm.KindInt:
		return float64(v.v.Int), true
	case vm.KindFloat:
		return v.v.Float, true
	default:
		return 0, false
	}
}

// String returns the string value when the kind matches.
func (v VmValue) String() (string, bool) {
	if v.v.Kind != vm.KindString {
		return "", false
	}
	return v.v.Str, true
}

// List unwraps a list into VmValues when the kind matches. The result is a
// snapshot; use Append on the script side to grow a list.
func (v VmValue) List() ([]VmValue, bool) {
	if v.v.Kind != vm.KindList || v.v.List == nil {
		return nil, false
	}
	out := make([]VmValue, len(v.v.List.Items))
	for i, el := range v.v.List.Items {
		out[i] = VmValue{v: el, owner: v.owner}
	}
	return out, true
}

// AsFunction extracts a callable handle from a closure or native value.
func (v VmValue) AsFunction() (*VmFunctionHandle, bool) {
	if v.v.Kind != vm.KindClosure && v.v.Kind != vm.KindNative {
		return nil, false
	}
	return &VmFunctionHandle{owner: v.owner, fn: v.v}, true
}

// Raw returns a Go representation of the value.
// Functions are not convertible and will return an error.
func (v VmValue) Raw() (any, error) {
	return unmarshalToGo(v.v)
}

// MustRaw returns Raw() or panics on error (convenience).
func (v VmValue) MustRaw() any {
	val, err := v.Raw()
	if err != nil {
		panic(err)
	}
	return val
}

func unwrapValues(vals []VmValue) []vm.Value {
	out := make([]vm.Value, len(vals))
	for i, a := range vals {
		out[i] = a.v
	}
	return out
}

// marshalGoValue converts common Go types into vm.Value.
func marshalGoValue(val any) (vm.Value, error) {
	if m, ok := val.(Marshaler); ok {
		custom, err := m.MarshalLaye()
		if err != nil {
			return vm.Value{}, err
		}
		return custom.v, nil
	}
	switch v := val.(type) {
	case VmValue:
		return v.v, nil
	case nil:
		return vm.Null(), nil
	case bool:
		return vm.Bool(v), nil
	case int:
		return vm.Int(int64(v)), nil
	case int64:
		return vm.Int(v), nil
	case float64:
		return vm.Float(v), nil
	case string:
		return vm.String(v), nil
	case error:
		return vm.String(v.Error()), nil
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return vm.Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return vm.Value{}, err
		}
		return vm.Float(f), nil
	case []any:
		out := make([]vm.Value, len(v))
		for i, el := range v {
			mv, err := marshalGoValue(el)
			if err != nil {
				return vm.Value{}, err
			}
			out[i] = mv
		}
		return vm.NewList(out...), nil
	case []VmValue:
		return vm.NewList(unwrapValues(v)...), nil
	case *VmFunction:
		return v.toVMValueWithName(""), nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return vm.Null(), nil
		}
		return marshalGoValue(rv.Elem().Interface())
	case reflect.Bool:
		return vm.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > 1<<63-1 {
			return vm.Value{}, fmt.Errorf("unsigned value %d overflows int", u)
		}
		return vm.Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return vm.Float(rv.Float()), nil
	case reflect.String:
		return vm.String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		out := make([]vm.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			mv, err := marshalGoValue(rv.Index(i).Interface())
			if err != nil {
				return vm.Value{}, err
			}
			out[i] = mv
		}
		return vm.NewList(out...), nil
	}
	return vm.Value{}, fmt.Errorf("unsupported value type %T", val)
}

// unmarshalToGo converts a vm.Value into a Go value for Raw().
func unmarshalToGo(v vm.Value) (any, error) {
	switch v.Kind {
	case vm.KindNull:
		return nil, nil
	case vm.KindBool:
		return v.B, nil
	case vm.KindInt:
		return v.Int, nil
	case vm.KindFloat:
		return v.Float, nil
	case vm.KindString:
		return v.Str, nil
	case vm.KindList:
		if v.List == nil {
			return []any{}, nil
		}
		out := make([]any, len(v.List.Items))
		for i, el := range v.List.Items {
			val, err := unmarshalToGo(el)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case vm.KindClosure, vm.KindNative:
		return nil, errors.New("Raw() not supported on function values; use AsFunction")
	default:
		return nil, fmt.Errorf("unsupported value kind %v", v.Kind)
	}
}

// Unmarshal assigns a VmValue into a Go target using reflection.
// Supports primitives, slices, arrays, interfaces and Unmarshaler.
func Unmarshal(val VmValue, target any) error {
	if target == nil {
		return errors.New("nil target")
	}
	if u, ok := target.(Unmarshaler); ok {
		return u.UnmarshalLaye(val)
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("target must be non-nil pointer")
	}
	return assignValue(val.v, rv.Elem())
}

func convertVmValue(src vm.Value, targetType reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(targetType)
	if err := assignValue(src, ptr.Elem()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

func assignValue(src vm.Value, dst reflect.Value) error {
	if !dst.CanSet() {
		return errors.New("cannot set target")
	}
	if dst.Type() == vmValueType {
		dst.Set(reflect.ValueOf(VmValue{v: src}))
		return nil
	}
	mismatch := func(want string) error {
		return ArgError{Want: want, Got: src.Kind.String()}
	}
	switch dst.Kind() {
	case reflect.Interface:
		raw, err := unmarshalToGo(src)
		if err != nil {
			return err
		}
		if raw == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		rv := reflect.ValueOf(raw)
		if !rv.Type().AssignableTo(dst.Type()) {
			return fmt.Errorf("cannot assign %s to %s", rv.Type(), dst.Type())
		}
		dst.Set(rv)
		return nil
	case reflect.Pointer:
		if src.Kind == vm.KindNull {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		elem := reflect.New(dst.Type().Elem())
		if err := assignValue(src, elem.Elem()); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	case reflect.Bool:
		if src.Kind != vm.KindBool {
			return mismatch("bool")
		}
		dst.SetBool(src.B)
		return nil
	case reflect.String:
		if src.Kind != vm.KindString {
			return mismatch("string")
		}
		dst.SetString(src.Str)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if src.Kind != vm.KindInt {
			return mismatch("int")
		}
		if dst.OverflowInt(src.Int) {
			return fmt.Errorf("int %d overflows %s", src.Int, dst.Type())
		}
		dst.SetInt(src.Int)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if src.Kind != vm.KindInt {
			return mismatch("int")
		}
		if src.Int < 0 || dst.OverflowUint(uint64(src.Int)) {
			return fmt.Errorf("int %d overflows %s", src.Int, dst.Type())
		}
		dst.SetUint(uint64(src.Int))
		return nil
	case reflect.Float32, reflect.Float64:
		switch src.Kind {
		case vm.KindFloat:
			dst.SetFloat(src.Float)
		case vm.KindInt:
			dst.SetFloat(float64(src.Int))
		default:
			return mismatch("float")
		}
		return nil
	case reflect.Slice:
		if src.Kind != vm.KindList || src.List == nil {
			return mismatch("list")
		}
		l := len(src.List.Items)
		dst.Set(reflect.MakeSlice(dst.Type(), l, l))
		for i := 0; i < l; i++ {
			if err := assignValue(src.List.Items[i], dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Array:
		if src.Kind != vm.KindList || src.List == nil {
			return mismatch("list")
		}
		l := len(src.List.Items)
		if l != dst.Len() {
			return fmt.Errorf("list length mismatch: have %d want %d", l, dst.Len())
		}
		for i := 0; i < l; i++ {
			if err := assignValue(src.List.Items[i], dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported unmarshal target kind %s", dst.Kind())
	}
}

var vmValueType = reflect.TypeOf(VmValue{})
