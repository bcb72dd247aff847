package appendbuiltin

import (
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "Append",
		Arity:   -1,
		Handler: runAppend,
	})
}

// runAppend adds the remaining arguments to the list in place and returns it.
func runAppend(rt *vm.VM, args []vm.Value) (vm.Value, error) {
	if len(args) == 0 || args[0].Kind != vm.KindList {
		got := "nothing"
		if len(args) > 0 {
			got = vm.TypeName(args[0])
		}
		return vm.RuntimeErrorf(rt, "Append expects a list, got %s.", got)
	}
	list := args[0]
	list.List.Items = append(list.List.Items, args[1:]...)
	return list, nil
}
