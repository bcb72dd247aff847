package laye

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/xirelogy/go-laye/internal/vm"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Context is the execution context provided to host functions.
type Context struct {
	rt *vm.VM
}

// Output is the writer script output is directed to.
func (c *Context) Output() io.Writer {
	if c == nil || c.rt == nil {
		return io.Discard
	}
	return c.rt.Output()
}

// Caller describes the script frame that called the host function.
func (c *Context) Caller() FrameTrace {
	if c == nil || c.rt == nil {
		return FrameTrace{}
	}
	return frameTraceFromVM(c.rt.CurrentFrame())
}

// Call invokes a script function value from inside a host function. The
// call shares the running invocation's context and instruction budget.
func (c *Context) Call(fn VmValue, args ...VmValue) (VmValue, error) {
	if c == nil || c.rt == nil {
		return VmValue{}, errors.New("host context has no VM")
	}
	res, err := c.rt.CallValue(fn.v, unwrapValues(args)...)
	if err != nil {
		return VmValue{}, err
	}
	return VmValue{v: res, owner: c.rt}, nil
}

// FunctionHandler is the Go-side implementation of a laye function.
// Arguments are provided by name after validation against the declared parameter list.
type FunctionHandler func(ctx *Context, args map[string]VmValue) (VmValue, error)

// VmFunction describes a host-provided function, including its parameter list and handler.
// When Variadic is set, the last parameter collects any excess arguments as a list.
type VmFunction struct {
	Params   []string
	Variadic bool
	Handler  FunctionHandler
}

// NewFunction creates a marshaled function from a parameter list and handler.
func NewFunction(params []string, handler FunctionHandler) *VmFunction {
	return &VmFunction{
		Params:  params,
		Handler: handler,
	}
}

// NewVariadicFunction is NewFunction with the last parameter collecting the rest.
func NewVariadicFunction(params []string, handler FunctionHandler) *VmFunction {
	fn := NewFunction(params, handler)
	fn.Variadic = len(params) > 0
	return fn
}

func (fn *VmFunction) arity() int {
	if fn == nil || fn.variadic() {
		return -1
	}
	return len(fn.Params)
}

func (fn *VmFunction) variadic() bool {
	return fn.Variadic && len(fn.Params) > 0
}

func (fn *VmFunction) toVMValueWithName(name string) vm.Value {
	if name == "" {
		name = "<host>"
	}
	native := func(rt *vm.VM, args []vm.Value) (vm.Value, error) {
		if fn == nil || fn.Handler == nil {
			return vm.RuntimeErrorf(rt, "%s has no handler.", name)
		}
		fixed := len(fn.Params)
		variadic := fn.variadic()
		if variadic {
			fixed--
			if len(args) < fixed {
				return vm.RuntimeErrorf(rt, "%s expects at least %d argument(s), got %d.", name, fixed, len(args))
			}
		}
		argMap := make(map[string]VmValue, len(fn.Params))
		for i := 0; i < fixed; i++ {
			argMap[fn.Params[i]] = VmValue{v: args[i], owner: rt}
		}
		if variadic {
			rest := vm.NewList(args[fixed:]...)
			argMap[fn.Params[fixed]] = VmValue{v: rest, owner: rt}
		}
		res, err := fn.Handler(&Context{rt: rt}, argMap)
		if err != nil {
			return vm.Null(), err
		}
		return res.v, nil
	}
	return vm.NativeValue(name, fn.arity(), native)
}

// HostArgs provides typed accessors for host function arguments.
type HostArgs struct {
	args map[string]VmValue
}

// NewHostArgs wraps the raw argument map for typed access.
func NewHostArgs(args map[string]VmValue) HostArgs {
	return HostArgs{args: args}
}

// Value returns the raw VmValue for a named argument.
func (a HostArgs) Value(name string) (VmValue, error) {
	v, ok := a.args[name]
	if !ok {
		return VmValue{}, ArgError{Name: name, Want: "present"}
	}
	return v, nil
}

// Int returns the integer argument.
func (a HostArgs) Int(name string) (int64, error) {
	v, err := a.Value(name)
	if err != nil {
		return 0, err
	}
	if n, ok := v.Int(); ok {
		return n, nil
	}
	return 0, ArgError{Name: name, Want: "int", Got: v.Kind().String()}
}

// Number returns an int or float argument as float64.
func (a HostArgs) Number(name string) (float64, error) {
	v, err := a.Value(name)
	if err != nil {
		return 0, err
	}
	if n, ok := v.Number(); ok {
		return n, nil
	}
	return 0, ArgError{Name: name, Want: "number", Got: v.Kind().String()}
}

// String returns the string argument.
func (a HostArgs) String(name string) (string, error) {
	v, err := a.Value(name)
	if err != nil {
		return "", err
	}
	if s, ok := v.String(); ok {
		return s, nil
	}
	return "", ArgError{Name: name, Want: "string", Got: v.Kind().String()}
}

// Bool returns the boolean argument.
func (a HostArgs) Bool(name string) (bool, error) {
	v, err := a.Value(name)
	if err != nil {
		return false, err
	}
	if b, ok := v.Bool(); ok {
		return b, nil
	}
	return false, ArgError{Name: name, Want: "bool", Got: v.Kind().String()}
}

// List returns the list argument.
func (a HostArgs) List(name string) ([]VmValue, error) {
	v, err := a.Value(name)
	if err != nil {
		return nil, err
	}
	if l, ok := v.List(); ok {
		return l, nil
	}
	return nil, ArgError{Name: name, Want: "list", Got: v.Kind().String()}
}

// VmFunctionHandle represents a function value returned from the VM.
type VmFunctionHandle struct {
	owner *vm.VM
	fn    vm.Value
}

// Call invokes the function handle on its owning VM. It must not be used
// while that VM is running; from a host function use Context.Call instead.
func (h *VmFunctionHandle) Call(ctx context.Context, args ...VmValue) (VmValue, error) {
	if h == nil {
		return VmValue{}, errors.New("nil function handle")
	}
	if h.owner == nil {
		return VmValue{}, errors.New("function handle missing VM owner")
	}
	res, err := h.owner.Invoke(ctx, h.fn, vm.Null(), unwrapValues(args))
	if err := convertRuntimeError(err); err != nil {
		return VmValue{}, err
	}
	return VmValue{v: res, owner: h.owner}, nil
}

// Name reports the function's declared name.
func (h *VmFunctionHandle) Name() string {
	if h == nil {
		return ""
	}
	switch h.fn.Kind {
	case vm.KindClosure:
		return h.fn.Closure.Name()
	case vm.KindNative:
		return h.fn.Native.Name
	}
	return ""
}

// vmFunctionFromFunc adapts a plain Go function through reflection.
// Supported signatures:
//
//	func(...) T
//	func(...) (T, error)
//	func(...) error
//	func(...), which returns null
//
// A final ...E parameter makes the function variadic. T is any type
// supported by NewValue; parameters are filled by Unmarshal rules.
func vmFunctionFromFunc(name string, fn any) (*VmFunction, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, fmt.Errorf("value of %s is not a function", name)
	}
	if rt.NumOut() > 2 {
		return nil, fmt.Errorf("function %s has too many return values (max 2)", name)
	}
	retValIndex := -1
	retErrIndex := -1
	switch rt.NumOut() {
	case 0:
	case 1:
		if rt.Out(0) == errorType {
			retErrIndex = 0
		} else {
			retValIndex = 0
		}
	case 2:
		if rt.Out(1) != errorType {
			return nil, fmt.Errorf("function %s second return value must be error", name)
		}
		retValIndex = 0
		retErrIndex = 1
	}

	paramNames := make([]string, rt.NumIn())
	for i := range paramNames {
		paramNames[i] = fmt.Sprintf("arg%d", i)
	}

	handler := func(_ *Context, args map[string]VmValue) (VmValue, error) {
		inputs := make([]reflect.Value, rt.NumIn())
		for i := range inputs {
			arg, ok := args[paramNames[i]]
			if !ok {
				return VmValue{}, ArgError{Name: paramNames[i], Want: "present"}
			}
			val, err := convertVmValue(arg.v, rt.In(i))
			if err != nil {
				return VmValue{}, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
			}
			inputs[i] = val
		}
		var results []reflect.Value
		if rt.IsVariadic() {
			results = rv.CallSlice(inputs)
		} else {
			results = rv.Call(inputs)
		}
		if retErrIndex >= 0 && !results[retErrIndex].IsNil() {
			return VmValue{}, results[retErrIndex].Interface().(error)
		}
		if retValIndex >= 0 {
			mv, err := marshalGoValue(results[retValIndex].Interface())
			if err != nil {
				return VmValue{}, err
			}
			return VmValue{v: mv}, nil
		}
		return VmValue{v: vm.Null()}, nil
	}

	return &VmFunction{
		Params:   paramNames,
		Variadic: rt.IsVariadic(),
		Handler:  handler,
	}, nil
}
