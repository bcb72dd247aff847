package assertbuiltin

import (
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "Assert",
		Arity:   -1,
		Handler: runAssert,
	})
}

// runAssert raises when its first argument is falsy. An optional second
// argument becomes the message.
func runAssert(rt *vm.VM, args []vm.Value) (vm.Value, error) {
	switch len(args) {
	case 1, 2:
	default:
		return vm.RuntimeErrorf(rt, "Assert expects 1 or 2 arguments, got %d.", len(args))
	}
	if vm.Truthy(args[0]) {
		return vm.Null(), nil
	}
	if len(args) == 2 {
		return vm.RuntimeErrorf(rt, "assertion failed: %s", args[1].String())
	}
	return vm.RuntimeErrorf(rt, "assertion failed.")
}
