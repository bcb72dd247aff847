package index_exist

import (
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "IndexExists",
		Arity:   2,
		Handler: runIndexExists,
	})
}

func runIndexExists(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	_, err := vm.IndexGet(args[0], args[1])
	return vm.Bool(err == nil), nil
}
