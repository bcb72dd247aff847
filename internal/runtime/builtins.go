package runtime

import (
	"fmt"
	"sort"

	"github.com/xirelogy/go-laye/internal/bytecode"
	"github.com/xirelogy/go-laye/internal/vm"
)

// Spec describes a native function every VM gets as a predeclared global.
type Spec struct {
	Name string
	// Arity is the exact argument count, or -1 for any.
	Arity   int
	Handler vm.NativeFunc
}

var byName = map[string]Spec{}

// Register installs a built-in. The compiler sees its arity through the
// bytecode native table, so calls with a wrong argument count fail to compile.
func Register(spec Spec) {
	if spec.Handler == nil {
		panic(fmt.Sprintf("builtin %s has nil handler", spec.Name))
	}
	if _, exists := byName[spec.Name]; exists {
		panic(fmt.Sprintf("builtin %s already registered", spec.Name))
	}
	byName[spec.Name] = spec
	bytecode.RegisterNativeInfo(spec.Name, spec.Arity)
}

// LookupByName finds a builtin by its script-visible name.
func LookupByName(name string) (Spec, bool) {
	spec, ok := byName[name]
	return spec, ok
}

// All returns all registered builtins ordered by name, which is also the
// order Install assigns global slots in.
func All() []Spec {
	out := make([]Spec, 0, len(byName))
	for _, spec := range byName {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names lists registered builtin names in slot order.
func Names() []string {
	specs := All()
	out := make([]string, len(specs))
	for i, spec := range specs {
		out[i] = spec.Name
	}
	return out
}

// Install binds every registered builtin into g.
func Install(g *vm.GlobalState) {
	for _, spec := range All() {
		g.StoreName(spec.Name, vm.NativeValue(spec.Name, spec.Arity, spec.Handler))
	}
}
