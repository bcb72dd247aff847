package typeof

import (
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "TypeOf",
		Arity:   1,
		Handler: runTypeOf,
	})
}

func runTypeOf(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	return vm.String(vm.TypeName(args[0])), nil
}
