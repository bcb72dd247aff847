package value_exist

import (
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "Contains",
		Arity:   2,
		Handler: runContains,
	})
}

func runContains(rt *vm.VM, args []vm.Value) (vm.Value, error) {
	list, val := args[0], args[1]
	if list.Kind != vm.KindList {
		return vm.RuntimeErrorf(rt, "Contains expects a list, got %s.", vm.TypeName(list))
	}
	for _, item := range list.List.Items {
		if vm.Equal(item, val) {
			return vm.Bool(true), nil
		}
	}
	return vm.Bool(false), nil
}
