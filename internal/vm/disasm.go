package vm

import (
	"fmt"
	"io"
	"sort"

	"github.com/xirelogy/go-laye/internal/bytecode"
)

// Disassemble emits assembly-style bytecode output for every global bound
// to a function, in name order.
func (vm *VM) Disassemble(w io.Writer) error {
	if vm == nil {
		return fmt.Errorf("nil VM")
	}
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	names := vm.globals.Names()
	sort.Strings(names)
	dis := bytecode.NewDisassembler(w)
	for i, name := range names {
		if i > 0 && names[i-1] == name {
			continue
		}
		val, _ := vm.globals.LoadName(name)
		switch val.Kind {
		case KindNative:
			dis.PrintNative(name)
		case KindClosure:
			if val.Closure.Proto == nil {
				dis.PrintMissing(name)
				continue
			}
			if err := dis.DisassemblePrototype(name, val.Closure.Proto); err != nil {
				return err
			}
		}
	}
	return nil
}
