package tostring

import (
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "ToString",
		Arity:   1,
		Handler: runToString,
	})
}

func runToString(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	return vm.String(args[0].String()), nil
}
