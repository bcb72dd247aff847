package compiler

import (
	"fmt"

	"github.com/xirelogy/go-laye/internal/bytecode"
	"github.com/xirelogy/go-laye/internal/symbol"
)

// Builder accumulates one function's instructions, constants and nested
// prototypes while tracking operand-stack depth.
type Builder struct {
	name   string
	source string
	table  *symbol.Table
	main   bool

	numParams int
	variadic  bool

	code  []bytecode.Instruction
	lines []bytecode.LineInfo
	line  int

	consts   []bytecode.Constant
	constIdx map[bytecode.Constant]int
	nested   []*bytecode.Prototype

	depth    int
	maxStack int
	built    bool
}

// NewMainBuilder returns a builder for the top-level function. Declarations
// made at the table's global scope become globals.
func NewMainBuilder(name, source string, table *symbol.Table) *Builder {
	return newBuilder(name, source, table, true)
}

// NewFunctionBuilder opens a function scope in table and returns a builder
// for it. Build closes the scope.
func NewFunctionBuilder(name, source string, table *symbol.Table) *Builder {
	table.BeginFunctionScope()
	return newBuilder(name, source, table, false)
}

func newBuilder(name, source string, table *symbol.Table, main bool) *Builder {
	return &Builder{
		name:     name,
		source:   source,
		table:    table,
		main:     main,
		constIdx: make(map[bytecode.Constant]int),
	}
}

// Table exposes the symbol table the builder declares into.
func (b *Builder) Table() *symbol.Table { return b.table }

// AddParameter declares the next parameter as a local.
func (b *Builder) AddParameter(name string) (symbol.Symbol, error) {
	sym, err := b.table.AddSymbol(name)
	if err != nil {
		return sym, err
	}
	b.numParams++
	return sym, nil
}

// SetVariadic marks the last parameter as collecting excess arguments.
func (b *Builder) SetVariadic() { b.variadic = true }

// AddLocal declares name in the current scope. A name already declared in the
// same scope returns symbol.ErrDuplicate with the existing symbol.
func (b *Builder) AddLocal(name string) (symbol.Symbol, error) {
	return b.table.AddSymbol(name)
}

// AddConstant returns the pool index of c, appending it only if new.
func (b *Builder) AddConstant(c bytecode.Constant) int {
	if idx, ok := b.constIdx[c]; ok {
		return idx
	}
	idx := len(b.consts)
	b.consts = append(b.consts, c)
	b.constIdx[c] = idx
	return idx
}

// AddNestedFunction appends a finished prototype and returns its index.
func (b *Builder) AddNestedFunction(p *bytecode.Prototype) int {
	b.nested = append(b.nested, p)
	return len(b.nested) - 1
}

// BeginBlock opens a block scope.
func (b *Builder) BeginBlock() {
	b.table.BeginScope()
}

// EndBlock releases the block's slots, closing them first if any was captured.
func (b *Builder) EndBlock() {
	base, captured := b.table.EndScope()
	if captured {
		b.CloseUpvalues(base)
	}
}

// SetLine sets the source line recorded for subsequent instructions.
func (b *Builder) SetLine(line int) {
	if line > 0 {
		b.line = line
	}
}

// StackDepth reports the current tracked operand-stack depth.
func (b *Builder) StackDepth() int { return b.depth }

// ResetStackDepth restores the depth at a branch merge point.
func (b *Builder) ResetStackDepth(d int) {
	if d < 0 {
		panic(bytecode.Internalf("%s: negative stack depth %d", b.label(), d))
	}
	b.depth = d
}

// Label returns the offset the next instruction will occupy.
func (b *Builder) Label() int { return len(b.code) }

func (b *Builder) Pop()       { b.emit(bytecode.Make(bytecode.OP_POP), -1) }
func (b *Builder) Dup()       { b.emit(bytecode.Make(bytecode.OP_DUP), 1) }
func (b *Builder) LoadNull()  { b.emit(bytecode.Make(bytecode.OP_LOAD_NULL), 1) }
func (b *Builder) LoadIndex() { b.emit(bytecode.Make(bytecode.OP_LOAD_INDEX), -1) }
func (b *Builder) TypeOf()    { b.emit(bytecode.Make(bytecode.OP_TYPEOF), 0) }
func (b *Builder) Xor()       { b.emit(bytecode.Make(bytecode.OP_XOR), -1) }

// StoreIndex pops value, index and target, and pushes the value back.
func (b *Builder) StoreIndex() { b.emit(bytecode.Make(bytecode.OP_STORE_INDEX), -2) }

func (b *Builder) LoadLocal(slot int)     { b.emit(bytecode.MustA(bytecode.OP_LOAD_LOCAL, slot), 1) }
func (b *Builder) StoreLocal(slot int)    { b.emit(bytecode.MustA(bytecode.OP_STORE_LOCAL, slot), -1) }
func (b *Builder) LoadGlobal(idx int)     { b.emit(bytecode.MustA(bytecode.OP_LOAD_GLOBAL, idx), 1) }
func (b *Builder) StoreGlobal(idx int)    { b.emit(bytecode.MustA(bytecode.OP_STORE_GLOBAL, idx), -1) }
func (b *Builder) LoadUpvalue(idx int)    { b.emit(bytecode.MustA(bytecode.OP_LOAD_UPVAL, idx), 1) }
func (b *Builder) StoreUpvalue(idx int)   { b.emit(bytecode.MustA(bytecode.OP_STORE_UPVAL, idx), -1) }
func (b *Builder) BuildClosure(idx int)   { b.emit(bytecode.MustA(bytecode.OP_BUILD_CLOSURE, idx), 1) }
func (b *Builder) CloseUpvalues(base int) { b.emit(bytecode.MustA(bytecode.OP_CLOSE_UP_VALUES, base), 0) }

// LoadConst pools c and loads it.
func (b *Builder) LoadConst(c bytecode.Constant) {
	b.emit(bytecode.MustA(bytecode.OP_LOAD_CONST, b.AddConstant(c)), 1)
}

func (b *Builder) LoadBool(v bool) {
	a := 0
	if v {
		a = 1
	}
	b.emit(bytecode.MustA(bytecode.OP_LOAD_BOOL, a), 1)
}

func (b *Builder) Prefix(op string) {
	b.emit(bytecode.MustA(bytecode.OP_PREFIX, b.AddConstant(bytecode.OperatorConst(op))), 0)
}

func (b *Builder) Postfix(op string) {
	b.emit(bytecode.MustA(bytecode.OP_POSTFIX, b.AddConstant(bytecode.OperatorConst(op))), 0)
}

func (b *Builder) Infix(op string) {
	b.emit(bytecode.MustA(bytecode.OP_INFIX, b.AddConstant(bytecode.OperatorConst(op))), -1)
}

// Invoke pops a callee and argc arguments and pushes the result.
func (b *Builder) Invoke(argc int) {
	b.emit(bytecode.MustB(bytecode.OP_INVOKE, argc), -argc)
}

// Return pops the result and leaves the function.
func (b *Builder) Return() {
	b.emit(bytecode.Make(bytecode.OP_RETURN), -1)
}

// List pops n elements and pushes a list.
func (b *Builder) List(n int) {
	b.emit(bytecode.MustA(bytecode.OP_LIST, n), 1-n)
}

// Jump emits an unconditional jump to target.
func (b *Builder) Jump(target int) {
	b.emit(bytecode.MustA(bytecode.OP_JUMP, target), 0)
}

// EmitJump emits a forward jump to be fixed with PatchJump.
func (b *Builder) EmitJump() int {
	pos := len(b.code)
	b.Jump(0)
	return pos
}

// EmitTest pops a value and jumps when its truthiness equals when. The target
// is fixed with PatchJump.
func (b *Builder) EmitTest(when bool) int {
	flag := 0
	if when {
		flag = 1
	}
	pos := len(b.code)
	b.emit(bytecode.MustAB(bytecode.OP_TEST, 0, flag), -1)
	return pos
}

// PatchJump points the jump or test at pos to the next instruction.
func (b *Builder) PatchJump(pos int) {
	ins, err := b.code[pos].WithA(len(b.code))
	if err != nil {
		panic(&bytecode.InternalError{Msg: fmt.Sprintf("%s: %v", b.label(), err)})
	}
	b.code[pos] = ins
}

func (b *Builder) emit(ins bytecode.Instruction, delta int) {
	if b.built {
		panic(bytecode.Internalf("%s: emit after build", b.label()))
	}
	b.recordLine()
	b.code = append(b.code, ins)
	b.depth += delta
	if b.depth < 0 {
		panic(bytecode.Internalf("%s: negative stack depth after %s at %d", b.label(), ins.Op(), len(b.code)-1))
	}
	if b.depth > b.maxStack {
		b.maxStack = b.depth
	}
}

func (b *Builder) recordLine() {
	if b.line == 0 {
		return
	}
	off := len(b.code)
	if n := len(b.lines); n > 0 && b.lines[n-1].Line == b.line {
		return
	}
	b.lines = append(b.lines, bytecode.LineInfo{Offset: off, Line: b.line})
}

func (b *Builder) label() string {
	if b.name == "" {
		return "<anon>"
	}
	return b.name
}

// Build freezes the prototype. For a function builder it also closes the
// function scope. When any local was captured, every RETURN is marked to
// close the frame's upvalues.
func (b *Builder) Build() *bytecode.Prototype {
	if b.built {
		panic(bytecode.Internalf("%s: built twice", b.label()))
	}
	b.built = true
	var info symbol.FunctionInfo
	if b.main {
		info = b.table.RootInfo()
	} else {
		info = b.table.EndFunctionScope()
	}

	code := make([]bytecode.Instruction, len(b.code))
	copy(code, b.code)
	if info.Captured {
		for i, ins := range code {
			if ins.Op() != bytecode.OP_RETURN {
				continue
			}
			patched, err := ins.WithB(1)
			if err != nil {
				panic(&bytecode.InternalError{Msg: err.Error()})
			}
			code[i] = patched
		}
	}

	var upvalues []bytecode.Upvalue
	if len(info.Upvalues) > 0 {
		upvalues = make([]bytecode.Upvalue, len(info.Upvalues))
		for i, c := range info.Upvalues {
			upvalues[i] = bytecode.Upvalue{Name: c.Name, IsLocal: c.IsLocal, Index: c.Index}
		}
	}

	return &bytecode.Prototype{
		Name:      b.name,
		Source:    b.source,
		NumParams: b.numParams,
		Variadic:  b.variadic,
		MaxLocals: info.MaxLocals,
		MaxStack:  b.maxStack,
		Chunk: &bytecode.Chunk{
			Code:   code,
			Consts: b.consts,
			Lines:  b.lines,
		},
		Nested:   b.nested,
		Upvalues: upvalues,
	}
}
