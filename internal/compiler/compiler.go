package compiler

import (
	"errors"
	"fmt"

	"github.com/xirelogy/go-laye/internal/ast"
	"github.com/xirelogy/go-laye/internal/bytecode"
	"github.com/xirelogy/go-laye/internal/diag"
	"github.com/xirelogy/go-laye/internal/symbol"
	"github.com/xirelogy/go-laye/internal/token"
)

const component = "compiler"

// Compile turns a parsed program into bytecode. Diagnostics are collected in
// the returned collector and forwarded to sink; callers must not run a program
// whose collector has errors. The error result is reserved for internal
// failures, in which case no program is returned.
func Compile(prog *ast.Program, opts Options, sink diag.Sink) (out *bytecode.Program, diags *diag.Collector, err error) {
	diags = diag.NewCollector(sink)
	if prog == nil {
		return nil, diags, fmt.Errorf("compile: nil program")
	}
	c := &compiler{
		opts:        opts,
		diags:       diags,
		decls:       make(map[ast.Node]symbol.Symbol),
		sigs:        make(map[int]signature),
		redefined:   make(map[int]bool),
		reassigned:  make(map[int]bool),
		predeclared: len(opts.Predeclared),
	}
	table := symbol.NewTable(opts.Predeclared...)

	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*bytecode.InternalError)
			if !ok {
				panic(r)
			}
			out = nil
			err = fmt.Errorf("compile %s: %w", c.programName(), ie)
		}
	}()

	main := &funcCompiler{c: c, b: NewMainBuilder("main", opts.Source, table)}
	main.declareGlobals(prog.Items)
	main.compileSequence(prog.Items, true)
	main.b.Return()
	c.checkArities()

	return &bytecode.Program{
		Name:    c.programName(),
		Main:    main.b.Build(),
		Globals: table.Globals(),
	}, diags, nil
}

type signature struct {
	params   int
	variadic bool
}

type compiler struct {
	opts  Options
	diags *diag.Collector

	// decls holds the global symbol of every top-level declaration.
	decls map[ast.Node]symbol.Symbol
	// sigs records top-level fn shapes by global index for arity checks.
	sigs map[int]signature
	// redefined marks predeclared slots the program declares itself.
	redefined map[int]bool
	// reassigned marks globals the program assigns to after declaration.
	reassigned  map[int]bool
	calls       []pendingCall
	predeclared int
}

func (c *compiler) programName() string {
	switch {
	case c.opts.Name != "":
		return c.opts.Name
	case c.opts.Source != "":
		return c.opts.Source
	default:
		return "main"
	}
}

func (c *compiler) report(level diag.Level, pos token.Position, format string, args ...any) {
	var loc *diag.Location
	if pos.Line > 0 {
		loc = &diag.Location{Source: c.opts.Source, Line: pos.Line, Column: pos.Column}
	}
	c.diags.Reportf(level, component, loc, format, args...)
}

func (c *compiler) unresolved(name string, pos token.Position) {
	if c.opts.Unresolved == UnresolvedWarn {
		c.report(diag.Warning, pos, "unresolved identifier %s; using null", name)
		return
	}
	c.report(diag.Error, pos, "unresolved identifier %s", name)
}

// funcCompiler compiles one function body. A nested function literal gets a
// child whose parent link is only held while the child compiles.
type funcCompiler struct {
	c      *compiler
	parent *funcCompiler
	b      *Builder
}

func (fc *funcCompiler) table() *symbol.Table { return fc.b.Table() }

// declareGlobals declares every top-level var, fn and extern before any code
// is compiled, so top-level functions may refer to each other in any order.
func (fc *funcCompiler) declareGlobals(items []ast.Node) {
	for _, item := range items {
		switch item.Kind() {
		case ast.KindVarDef:
			n := item.(*ast.VarDef)
			sym := fc.declare(n.Name, n.NamePos)
			delete(fc.c.sigs, sym.Index)
			fc.c.decls[n] = sym
		case ast.KindFuncDef:
			n := item.(*ast.FuncDef)
			sym := fc.declare(n.Name, n.NamePos)
			fc.c.decls[n] = sym
			fc.c.sigs[sym.Index] = signature{params: len(n.Params), variadic: n.Variadic}
		case ast.KindExtern:
			n := item.(*ast.Extern)
			if !fc.table().DefinedInCurrentScope(n.Name) {
				_, _ = fc.b.AddLocal(n.Name)
			}
		}
	}
}

// declare adds name to the current scope, applying the duplicate policy.
// Predeclared host globals may be redefined by the program without a diagnostic.
func (fc *funcCompiler) declare(name string, pos token.Position) symbol.Symbol {
	sym, err := fc.b.AddLocal(name)
	if err == nil {
		return sym
	}
	if !errors.Is(err, symbol.ErrDuplicate) {
		panic(bytecode.Internalf("declare %s: %v", name, err))
	}
	if sym.Class == symbol.Global && sym.Index < fc.c.predeclared {
		fc.c.redefined[sym.Index] = true
		return sym
	}
	switch fc.c.opts.Duplicate {
	case DuplicateShadow:
		fc.c.report(diag.Warning, pos, "declaration of %s shadows an earlier one in the same scope", name)
		return fc.table().Shadow(name)
	case DuplicateReuse:
		fc.c.report(diag.Info, pos, "%s redeclared; reusing its slot", name)
		return sym
	default:
		fc.c.report(diag.Error, pos, "duplicate declaration of %s", name)
		return sym
	}
}

func (fc *funcCompiler) load(sym symbol.Symbol) {
	switch sym.Class {
	case symbol.Global:
		fc.b.LoadGlobal(sym.Index)
	case symbol.Local:
		fc.b.LoadLocal(sym.Index)
	case symbol.Upvalue:
		fc.b.LoadUpvalue(sym.Index)
	default:
		panic(bytecode.Internalf("load: unknown storage class %s", sym.Class))
	}
}

func (fc *funcCompiler) store(sym symbol.Symbol) {
	switch sym.Class {
	case symbol.Global:
		fc.b.StoreGlobal(sym.Index)
	case symbol.Local:
		fc.b.StoreLocal(sym.Index)
	case symbol.Upvalue:
		fc.b.StoreUpvalue(sym.Index)
	default:
		panic(bytecode.Internalf("store: unknown storage class %s", sym.Class))
	}
}

func (fc *funcCompiler) yieldNull(want bool) {
	if want {
		fc.b.LoadNull()
	}
}

// compileNode compiles n leaving exactly one value on the stack when want is
// set, and none otherwise.
func (fc *funcCompiler) compileNode(n ast.Node, want bool) {
	if n == nil {
		fc.yieldNull(want)
		return
	}
	fc.b.SetLine(n.Pos().Line)
	switch n.Kind() {
	case ast.KindBlock:
		fc.compileBlock(n.(*ast.Block), want)
	case ast.KindVarDef:
		fc.compileVarDef(n.(*ast.VarDef))
		fc.yieldNull(want)
	case ast.KindFuncDef:
		fc.compileFuncDef(n.(*ast.FuncDef))
		fc.yieldNull(want)
	case ast.KindExtern:
		fc.compileExtern(n.(*ast.Extern))
		fc.yieldNull(want)
	case ast.KindAssign:
		fc.compileAssign(n.(*ast.Assign), want)
	case ast.KindIf:
		fc.compileIf(n.(*ast.If), want)
	case ast.KindWhile:
		fc.compileWhile(n.(*ast.While), want)
	case ast.KindReturn:
		fc.compileReturn(n.(*ast.Return), want)
	default:
		fc.compileExpr(n)
		if !want {
			fc.b.Pop()
		}
	}
}

// compileExpr compiles n leaving exactly one value on the stack.
func (fc *funcCompiler) compileExpr(n ast.Node) {
	if n == nil {
		fc.b.LoadNull()
		return
	}
	fc.b.SetLine(n.Pos().Line)
	switch n.Kind() {
	case ast.KindIdent:
		id := n.(*ast.Ident)
		sym, ok := fc.table().GetSymbol(id.Name)
		if !ok {
			fc.c.unresolved(id.Name, id.PosT)
			fc.b.LoadNull()
			return
		}
		fc.load(sym)
	case ast.KindIntLit:
		fc.b.LoadConst(bytecode.IntConst(n.(*ast.IntLit).Value))
	case ast.KindFloatLit:
		fc.b.LoadConst(bytecode.FloatConst(n.(*ast.FloatLit).Value))
	case ast.KindStringLit:
		fc.b.LoadConst(bytecode.StringConst(n.(*ast.StringLit).Value))
	case ast.KindBoolLit:
		fc.b.LoadBool(n.(*ast.BoolLit).Value)
	case ast.KindNullLit:
		fc.b.LoadNull()
	case ast.KindFuncExpr:
		fe := n.(*ast.FuncExpr)
		fc.compileFunction(&fe.Function, fe.Name)
	case ast.KindInfix:
		fc.compileInfix(n.(*ast.Infix))
	case ast.KindPrefix:
		p := n.(*ast.Prefix)
		fc.compileExpr(p.Right)
		fc.b.Prefix(p.Operator)
	case ast.KindPostfix:
		p := n.(*ast.Postfix)
		fc.compileExpr(p.Left)
		fc.b.Postfix(p.Operator)
	case ast.KindCall:
		fc.compileCall(n.(*ast.Call))
	case ast.KindList:
		fc.compileList(n.(*ast.List))
	case ast.KindIndex:
		ix := n.(*ast.Index)
		fc.compileExpr(ix.Target)
		fc.compileExpr(ix.Index)
		fc.b.LoadIndex()
	case ast.KindTypeOf:
		fc.compileExpr(n.(*ast.TypeOf).Operand)
		fc.b.TypeOf()
	case ast.KindBlock, ast.KindVarDef, ast.KindFuncDef, ast.KindExtern,
		ast.KindAssign, ast.KindIf, ast.KindWhile, ast.KindReturn:
		fc.compileNode(n, true)
	default:
		panic(bytecode.Internalf("unsupported node kind %s", n.Kind()))
	}
}

func (fc *funcCompiler) compileSequence(items []ast.Node, want bool) {
	if len(items) == 0 {
		fc.yieldNull(want)
		return
	}
	last := len(items) - 1
	for i, item := range items {
		fc.compileNode(item, want && i == last)
	}
}

func (fc *funcCompiler) compileBlock(b *ast.Block, want bool) {
	fc.b.BeginBlock()
	fc.compileSequence(b.Items, want)
	fc.b.EndBlock()
}

// compileBranch gives an if or while arm its own block scope.
func (fc *funcCompiler) compileBranch(n ast.Node, want bool) {
	fc.b.BeginBlock()
	fc.compileNode(n, want)
	fc.b.EndBlock()
}

func (fc *funcCompiler) compileVarDef(n *ast.VarDef) {
	if sym, ok := fc.c.decls[n]; ok {
		fc.compileExpr(n.Value)
		fc.b.StoreGlobal(sym.Index)
		return
	}
	// The slot is allocated after the initializer so the initializer still
	// sees any outer binding of the same name.
	fc.compileExpr(n.Value)
	fc.store(fc.declare(n.Name, n.NamePos))
}

func (fc *funcCompiler) compileFuncDef(n *ast.FuncDef) {
	if sym, ok := fc.c.decls[n]; ok {
		fc.compileFunction(&n.Function, n.Name)
		fc.b.StoreGlobal(sym.Index)
		return
	}
	// Declared before the body so the function can call itself.
	sym := fc.declare(n.Name, n.NamePos)
	fc.compileFunction(&n.Function, n.Name)
	fc.store(sym)
}

func (fc *funcCompiler) compileExtern(n *ast.Extern) {
	if fc.parent != nil || !fc.table().AtGlobalScope() {
		fc.c.report(diag.Error, n.ExternPos, "extern %s must be declared at top level", n.Name)
	}
}

// compileFunction compiles fn with a child compiler and leaves a closure over
// it on the stack.
func (fc *funcCompiler) compileFunction(fn *ast.Function, name string) {
	child := &funcCompiler{
		c:      fc.c,
		parent: fc,
		b:      NewFunctionBuilder(name, fc.c.opts.Source, fc.table()),
	}
	child.b.SetLine(fn.FnPos.Line)
	for _, p := range fn.Params {
		if _, err := child.b.AddParameter(p.Name); err != nil {
			fc.c.report(diag.Error, p.Pos, "duplicate parameter %s", p.Name)
		}
	}
	if fn.Variadic {
		child.b.SetVariadic()
	}
	child.compileNode(fn.Body, true)
	child.b.Return()
	proto := child.b.Build()
	child.parent = nil

	fc.b.SetLine(fn.FnPos.Line)
	fc.b.BuildClosure(fc.b.AddNestedFunction(proto))
}

func (fc *funcCompiler) compileAssign(n *ast.Assign, want bool) {
	switch n.Target.Kind() {
	case ast.KindIdent:
		id := n.Target.(*ast.Ident)
		sym, ok := fc.table().GetSymbol(id.Name)
		fc.compileExpr(n.Value)
		if !ok {
			fc.c.unresolved(id.Name, id.PosT)
			if !want {
				fc.b.Pop()
			}
			return
		}
		if want {
			fc.b.Dup()
		}
		if sym.Class == symbol.Global {
			fc.c.reassigned[sym.Index] = true
		}
		fc.store(sym)
	case ast.KindIndex:
		ix := n.Target.(*ast.Index)
		fc.compileExpr(ix.Target)
		fc.compileExpr(ix.Index)
		fc.compileExpr(n.Value)
		fc.b.StoreIndex()
		if !want {
			fc.b.Pop()
		}
	default:
		fc.c.report(diag.Error, n.PosT, "invalid assignment target %s", n.Target.Kind())
		fc.yieldNull(want)
	}
}

func (fc *funcCompiler) compileIf(n *ast.If, want bool) {
	fc.compileExpr(n.Condition)
	elseJump := fc.b.EmitTest(false)
	depth := fc.b.StackDepth()
	fc.compileBranch(n.Then, want)
	if n.Else == nil && !want {
		fc.b.PatchJump(elseJump)
		return
	}
	endJump := fc.b.EmitJump()
	fc.b.PatchJump(elseJump)
	fc.b.ResetStackDepth(depth)
	if n.Else != nil {
		fc.compileBranch(n.Else, want)
	} else {
		fc.b.LoadNull()
	}
	fc.b.PatchJump(endJump)
}

func (fc *funcCompiler) compileWhile(n *ast.While, want bool) {
	start := fc.b.Label()
	fc.compileExpr(n.Condition)
	exit := fc.b.EmitTest(false)
	fc.compileBranch(n.Body, false)
	fc.b.Jump(start)
	fc.b.PatchJump(exit)
	fc.yieldNull(want)
}

func (fc *funcCompiler) compileReturn(n *ast.Return, want bool) {
	fc.compileExpr(n.Value)
	fc.b.Return()
	// Unreachable, but keeps the tracked depth consistent for the caller.
	fc.yieldNull(want)
}

func (fc *funcCompiler) compileInfix(n *ast.Infix) {
	switch n.Operator {
	case "and":
		fc.compileShortCircuit(n, false)
	case "or":
		fc.compileShortCircuit(n, true)
	case "xor":
		fc.compileExpr(n.Left)
		fc.compileExpr(n.Right)
		fc.b.Xor()
	default:
		fc.compileExpr(n.Left)
		fc.compileExpr(n.Right)
		fc.b.SetLine(n.PosT.Line)
		fc.b.Infix(n.Operator)
	}
}

// compileShortCircuit leaves the left value when its truthiness equals stopOn,
// otherwise the right value.
func (fc *funcCompiler) compileShortCircuit(n *ast.Infix, stopOn bool) {
	fc.compileExpr(n.Left)
	fc.b.Dup()
	end := fc.b.EmitTest(stopOn)
	fc.b.Pop()
	fc.compileExpr(n.Right)
	fc.b.PatchJump(end)
}

func (fc *funcCompiler) compileCall(n *ast.Call) {
	fc.compileExpr(n.Target)
	for _, arg := range n.Arguments {
		fc.compileExpr(arg)
	}
	argc := len(n.Arguments)
	if argc > bytecode.MaxB {
		fc.c.report(diag.Error, n.PosT, "too many arguments in call (%d, at most %d)", argc, bytecode.MaxB)
		for ; argc > bytecode.MaxB; argc-- {
			fc.b.Pop()
		}
	}
	fc.checkArity(n, len(n.Arguments))
	fc.b.SetLine(n.PosT.Line)
	fc.b.Invoke(argc)
}

func (fc *funcCompiler) compileList(n *ast.List) {
	for _, el := range n.Elements {
		fc.compileExpr(el)
	}
	count := len(n.Elements)
	if count > bytecode.MaxA {
		fc.c.report(diag.Error, n.PosT, "list literal too long (%d elements)", count)
		for ; count > bytecode.MaxA; count-- {
			fc.b.Pop()
		}
	}
	fc.b.List(count)
}
