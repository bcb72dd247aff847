package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassembler formats bytecode as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	visited map[*Prototype]bool
	printed bool
	globals []string
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{
		w:       w,
		visited: make(map[*Prototype]bool),
	}
}

// DisassembleProgram emits the global table followed by Main and every nested prototype.
func (d *Disassembler) DisassembleProgram(prog *Program) error {
	if prog == nil {
		return fmt.Errorf("nil program")
	}
	d.globals = prog.Globals
	d.startSection()
	name := prog.Name
	if name == "" {
		name = "<program>"
	}
	fmt.Fprintf(d.w, "program %s (globals=%d)\n", name, len(prog.Globals))
	for idx, g := range prog.Globals {
		line := fmt.Sprintf("  global %d %s", idx, g)
		if info, ok := LookupNativeInfo(g); ok {
			line += " ; native" + formatArity(info.Arity)
		}
		fmt.Fprintln(d.w, line)
	}
	return d.DisassemblePrototype("main", prog.Main)
}

// DisassemblePrototype emits a readable dump for a prototype and any nested prototypes.
func (d *Disassembler) DisassemblePrototype(label string, proto *Prototype) error {
	if proto == nil || proto.Chunk == nil {
		return fmt.Errorf("nil prototype")
	}
	if d.visited[proto] {
		return nil
	}
	d.visited[proto] = true
	d.startSection()
	name := label
	if name == "" {
		name = proto.Name
	}
	if name == "" {
		name = "<anon>"
	}
	source := proto.Source
	if source == "" {
		source = "<unknown>"
	}
	variadic := ""
	if proto.Variadic {
		variadic = ", variadic"
	}
	fmt.Fprintf(d.w, "func %s (params=%d%s, locals=%d, stack=%d, upvalues=%d) source=%s\n",
		name, proto.NumParams, variadic, proto.MaxLocals, proto.MaxStack, len(proto.Upvalues), source)
	for idx, uv := range proto.Upvalues {
		kind := "upvalue"
		if uv.IsLocal {
			kind = "local"
		}
		fmt.Fprintf(d.w, "  upval %d %s <- %s %d\n", idx, uv.Name, kind, uv.Index)
	}
	if err := d.disassembleChunk(proto); err != nil {
		return err
	}
	for idx, child := range proto.Nested {
		childName := child.Name
		if childName == "" {
			childName = fmt.Sprintf("<closure@%s:%d>", name, idx)
		}
		if err := d.DisassemblePrototype(childName, child); err != nil {
			return err
		}
	}
	return nil
}

// PrintNative emits a header for a native (host) function.
func (d *Disassembler) PrintNative(name string) {
	d.startSection()
	if name == "" {
		name = "<native>"
	}
	fmt.Fprintf(d.w, "func %s [native]\n", name)
}

// PrintMissing emits a header when a function has no prototype.
func (d *Disassembler) PrintMissing(name string) {
	d.startSection()
	if name == "" {
		name = "<unknown>"
	}
	fmt.Fprintf(d.w, "func %s [missing prototype]\n", name)
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler) disassembleChunk(proto *Prototype) error {
	chunk := proto.Chunk
	for offset, ins := range chunk.Code {
		line := chunk.LineForOffset(offset)
		lineStr := "-"
		if line > 0 {
			lineStr = strconv.Itoa(line)
		}
		detail, err := d.decodeOperands(ins, proto)
		if err != nil {
			return fmt.Errorf("offset %d: %w", offset, err)
		}
		fmt.Fprintf(d.w, "%04d %4s %-16s", offset, lineStr, ins.Op())
		if detail != "" {
			fmt.Fprintf(d.w, " %s", detail)
		}
		fmt.Fprintln(d.w)
	}
	return nil
}

func (d *Disassembler) decodeOperands(ins Instruction, proto *Prototype) (string, error) {
	op := ins.Op()
	info, ok := op.Info()
	if !ok {
		return "", fmt.Errorf("unknown opcode 0x%02X", uint8(op))
	}
	chunk := proto.Chunk
	switch op {
	case OP_LOAD_CONST, OP_PREFIX, OP_POSTFIX, OP_INFIX:
		idx := ins.A()
		if idx >= len(chunk.Consts) {
			return "", fmt.Errorf("const index out of range: %d", idx)
		}
		return fmt.Sprintf("%d ; const[%d]=%s", idx, idx, chunk.Consts[idx]), nil
	case OP_LOAD_GLOBAL, OP_STORE_GLOBAL:
		idx := ins.A()
		return fmt.Sprintf("%d ; name=%s", idx, d.globalName(idx)), nil
	case OP_LOAD_UPVAL, OP_STORE_UPVAL:
		idx := ins.A()
		name := "<invalid>"
		if idx < len(proto.Upvalues) {
			name = proto.Upvalues[idx].Name
		}
		return fmt.Sprintf("%d ; %s", idx, name), nil
	case OP_LOAD_BOOL:
		return strconv.FormatBool(ins.A() != 0), nil
	case OP_BUILD_CLOSURE:
		idx := ins.A()
		if idx >= len(proto.Nested) {
			return "", fmt.Errorf("nested prototype index out of range: %d", idx)
		}
		child := proto.Nested[idx]
		childName := child.Name
		if childName == "" {
			childName = "<anon>"
		}
		return fmt.Sprintf("%d ; proto %s upvalues=%d", idx, childName, len(child.Upvalues)), nil
	case OP_TEST:
		return fmt.Sprintf("%d %d ; jump if %t", ins.A(), ins.B(), ins.B() != 0), nil
	case OP_RETURN:
		if ins.B() != 0 {
			return "; close", nil
		}
		return "", nil
	case OP_CLOSE_UP_VALUES:
		return fmt.Sprintf("%d ; slots >= %d", ins.A(), ins.A()), nil
	}
	switch info.Format {
	case FormatA:
		return strconv.Itoa(ins.A()), nil
	case FormatAB:
		return fmt.Sprintf("%d %d", ins.A(), ins.B()), nil
	case FormatB:
		return strconv.Itoa(ins.B()), nil
	default:
		return "", nil
	}
}

func (d *Disassembler) globalName(idx int) string {
	if idx >= len(d.globals) {
		return "<unknown>"
	}
	name := d.globals[idx]
	if info, ok := LookupNativeInfo(name); ok {
		return strings.TrimSpace(name + " native" + formatArity(info.Arity))
	}
	return name
}

func formatArity(arity int) string {
	if arity < 0 {
		return ""
	}
	return fmt.Sprintf(" arity=%d", arity)
}
