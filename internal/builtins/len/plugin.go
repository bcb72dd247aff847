package lenbuiltin

import (
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "Len",
		Arity:   1,
		Handler: runLen,
	})
}

func runLen(rt *vm.VM, args []vm.Value) (vm.Value, error) {
	switch v := args[0]; v.Kind {
	case vm.KindList:
		return vm.Int(int64(len(v.List.Items))), nil
	case vm.KindString:
		return vm.Int(int64(len(v.Str))), nil
	default:
		return vm.RuntimeErrorf(rt, "Len expects a list or string, got %s.", vm.TypeName(v))
	}
}
