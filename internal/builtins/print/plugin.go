package printbuiltin

import (
	"io"
	"strings"

	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:    "Print",
		Arity:   -1,
		Handler: runPrint,
	})
}

// runPrint writes its arguments separated by single spaces, then a newline.
func runPrint(rt *vm.VM, args []vm.Value) (vm.Value, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	if _, err := io.WriteString(rt.Output(), strings.Join(parts, " ")+"\n"); err != nil {
		return vm.Null(), err
	}
	return vm.Null(), nil
}
