package vm

import (
	"fmt"
	"strings"

	"github.com/xirelogy/go-laye/internal/bytecode"
)

// TraceInfo describes a single instruction dispatch for debugging/tracing.
type TraceInfo struct {
	Op       bytecode.Opcode
	Function string
	Source   string
	Line     int
	IP       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// FrameInfo captures the call frame at the time of an error or trace event.
type FrameInfo struct {
	Function string
	Source   string
	Line     int
	IP       int
}

func (f FrameInfo) String() string {
	loc := f.Source
	if f.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, f.Line)
	}
	if loc == "" {
		return f.Function
	}
	return fmt.Sprintf("%s (%s)", f.Function, loc)
}

// RuntimeError carries source/stack information for VM failures.
type RuntimeError struct {
	Message string
	Frame   FrameInfo
	Stack   []FrameInfo
	Cause   error
}

func (e *RuntimeError) Error() string {
	locParts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			locParts = append(locParts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			locParts = append(locParts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		locParts = append(locParts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Function != "" {
		locParts = append(locParts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(locParts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// StackTrace renders the call stack innermost first, one frame per line.
func (e *RuntimeError) StackTrace() string {
	var sb strings.Builder
	for _, f := range e.Stack {
		sb.WriteString("  at ")
		sb.WriteString(f.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// raise builds a RuntimeError at fr. Frames unwind by returning it; a native
// that gets it from CallValue may handle it, and its caller then carries on.
func (vm *VM) raise(fr *frame, cause error, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Message: fmt.Sprintf(format, args...),
		Frame:   vm.frameInfo(fr),
		Stack:   vm.stackTrace(fr),
		Cause:   cause,
	}
}

// wrapError converts an error from an operator or native into a RuntimeError
// at fr. Errors that already are RuntimeErrors pass through.
func (vm *VM) wrapError(fr *frame, err error) error {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RuntimeError); ok {
		return re
	}
	return vm.raise(fr, err, "%s", err.Error())
}

func (vm *VM) trace(fr *frame, op bytecode.Opcode) {
	if vm.traceHook == nil {
		return
	}
	info := vm.frameInfo(fr)
	vm.traceHook(TraceInfo{
		Op:       op,
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Line,
		IP:       info.IP,
		Depth:    vm.depth,
	})
}

func (vm *VM) stackTrace(current *frame) []FrameInfo {
	var trace []FrameInfo
	for f := current; f != nil; f = vm.arena.get(f.parent) {
		trace = append(trace, vm.frameInfo(f))
	}
	return trace
}

func (vm *VM) frameInfo(fr *frame) FrameInfo {
	if fr == nil || fr.closure == nil || fr.closure.Proto == nil {
		return FrameInfo{}
	}
	proto := fr.closure.Proto
	return FrameInfo{
		Function: fr.closure.Name(),
		Source:   proto.Source,
		Line:     proto.Chunk.LineForOffset(fr.lastOp),
		IP:       fr.lastOp,
	}
}
