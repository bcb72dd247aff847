package index_read

import (
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "IndexRead",
		Arity:   3,
		Handler: runIndexRead,
	})
}

// runIndexRead returns target[index], or the default when the read fails.
func runIndexRead(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	val, err := vm.IndexGet(args[0], args[1])
	if err != nil {
		return args[2], nil
	}
	return val, nil
}
