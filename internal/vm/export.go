package vm

import "fmt"

// RuntimeErrorf produces a RuntimeError at the VM's current frame. Natives
// return it to raise a script-level exception.
func RuntimeErrorf(rt *VM, format string, args ...any) (Value, error) {
	if rt == nil {
		return Null(), fmt.Errorf(format, args...)
	}
	return Null(), rt.raise(rt.currentFrame(), nil, format, args...)
}

// TypeName reports the dynamic type name for a value.
func TypeName(v Value) string {
	return v.Kind.String()
}

// IndexGet reads target[index] for lists and strings.
func IndexGet(target, index Value) (Value, error) {
	return indexGet(target, index)
}

// CurrentFrame describes the innermost active script frame.
func (vm *VM) CurrentFrame() FrameInfo {
	return vm.frameInfo(vm.currentFrame())
}
