package raise

import (
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "Raise",
		Arity:   1,
		Handler: runRaise,
	})
}

// runRaise aborts the current invocation with the message's string form.
func runRaise(rt *vm.VM, args []vm.Value) (vm.Value, error) {
	return vm.RuntimeErrorf(rt, "%s", args[0].String())
}
