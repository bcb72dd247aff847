package bytecode

import "fmt"

// NativeInfo describes a registered native global for diagnostics/disassembly.
type NativeInfo struct {
	Name string
	// Arity is the expected argument count, or -1 when the native is variadic.
	Arity int
}

var nativeInfo = map[string]NativeInfo{}

// RegisterNativeInfo registers native metadata so listings can annotate global loads.
func RegisterNativeInfo(name string, arity int) {
	if name == "" {
		panic("native name must not be empty")
	}
	if _, exists := nativeInfo[name]; exists {
		panic(fmt.Sprintf("native %s already registered", name))
	}
	nativeInfo[name] = NativeInfo{Name: name, Arity: arity}
}

// LookupNativeInfo returns native metadata if registered.
func LookupNativeInfo(name string) (NativeInfo, bool) {
	info, ok := nativeInfo[name]
	return info, ok
}
