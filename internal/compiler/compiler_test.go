package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xirelogy/go-laye/internal/bytecode"
	"github.com/xirelogy/go-laye/internal/diag"
	"github.com/xirelogy/go-laye/internal/lexer"
	"github.com/xirelogy/go-laye/internal/parser"
)

func compileWith(t *testing.T, src string, opts Options) (*bytecode.Program, *diag.Collector) {
	t.Helper()
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	require.Empty(t, p.Errors(), "parser errors")
	if opts.Source == "" {
		opts.Source = "test.laye"
	}
	out, diags, err := Compile(prog, opts, nil)
	require.NoError(t, err)
	require.NotNil(t, out)
	return out, diags
}

func compileSource(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	out, diags := compileWith(t, src, Options{Predeclared: []string{"Print"}})
	require.Empty(t, diags.Diagnostics(), "unexpected diagnostics")
	return out
}

func ops(p *bytecode.Prototype) []bytecode.Opcode {
	out := make([]bytecode.Opcode, len(p.Chunk.Code))
	for i, ins := range p.Chunk.Code {
		out[i] = ins.Op()
	}
	return out
}

func messages(c *diag.Collector, level diag.Level) []string {
	var out []string
	for _, d := range c.Diagnostics() {
		if d.Level == level {
			out = append(out, d.Message)
		}
	}
	return out
}

func TestCompileAddAndMain(t *testing.T) {
	prog := compileSource(t, `fn add(a, b) a + b; fn Main() Print(add(2, 3));`)
	assert.Equal(t, []string{"Print", "add", "Main"}, prog.Globals)
	require.Len(t, prog.Main.Nested, 2)

	add := prog.Main.Nested[0]
	assert.Equal(t, "add", add.Name)
	assert.Equal(t, 2, add.NumParams)
	assert.Equal(t, 2, add.MaxLocals)
	assert.Equal(t, 2, add.MaxStack)
	assert.Equal(t, []bytecode.Opcode{
		bytecode.OP_LOAD_LOCAL,
		bytecode.OP_LOAD_LOCAL,
		bytecode.OP_INFIX,
		bytecode.OP_RETURN,
	}, ops(add))
	assert.Equal(t, 0, add.Chunk.Code[0].A())
	assert.Equal(t, 1, add.Chunk.Code[1].A())
	assert.Equal(t, bytecode.OperatorConst("+"), add.Chunk.Consts[add.Chunk.Code[2].A()])

	main := prog.Main.Nested[1]
	assert.Equal(t, []bytecode.Opcode{
		bytecode.OP_LOAD_GLOBAL,
		bytecode.OP_LOAD_GLOBAL,
		bytecode.OP_LOAD_CONST,
		bytecode.OP_LOAD_CONST,
		bytecode.OP_INVOKE,
		bytecode.OP_INVOKE,
		bytecode.OP_RETURN,
	}, ops(main))
	assert.Equal(t, 0, main.Chunk.Code[0].A())
	assert.Equal(t, 1, main.Chunk.Code[1].A())
	assert.Equal(t, 2, main.Chunk.Code[4].B())
	assert.Equal(t, 1, main.Chunk.Code[5].B())
	assert.Equal(t, 4, main.MaxStack)
}

func TestCounterClosesCapturedLocal(t *testing.T) {
	prog := compileSource(t, `fn counter() { var n = 0; fn() { n = n + 1; ret n; } }`)
	counter := prog.Main.Nested[0]
	assert.Equal(t, []bytecode.Opcode{
		bytecode.OP_LOAD_CONST,
		bytecode.OP_STORE_LOCAL,
		bytecode.OP_BUILD_CLOSURE,
		bytecode.OP_CLOSE_UP_VALUES,
		bytecode.OP_RETURN,
	}, ops(counter))
	assert.Equal(t, 0, counter.Chunk.Code[3].A(), "close from the block's first slot")
	assert.Equal(t, 1, counter.Chunk.Code[4].B(), "return closes upvalues")

	inc := counter.Nested[0]
	require.Len(t, inc.Upvalues, 1)
	assert.Equal(t, bytecode.Upvalue{Name: "n", IsLocal: true, Index: 0}, inc.Upvalues[0])
	assert.Contains(t, ops(inc), bytecode.OP_STORE_UPVAL)
	for _, ins := range inc.Chunk.Code {
		if ins.Op() == bytecode.OP_RETURN {
			assert.Equal(t, 0, ins.B(), "inner function captures nothing")
		}
	}
}

func TestNestedUpvalueChain(t *testing.T) {
	prog := compileSource(t, `fn outer() { var v = 1; fn() { fn() v; }; }`)
	outer := prog.Main.Nested[0]
	middle := outer.Nested[0]
	inner := middle.Nested[0]
	assert.Equal(t, []bytecode.Upvalue{{Name: "v", IsLocal: true, Index: 0}}, middle.Upvalues)
	assert.Equal(t, []bytecode.Upvalue{{Name: "v", IsLocal: false, Index: 0}}, inner.Upvalues)
}

func TestConstantPooling(t *testing.T) {
	prog := compileSource(t, `fn f() { Print(1); Print(1); Print("a"); Print("a"); Print(1.5); }`)
	f := prog.Main.Nested[0]
	assert.Equal(t, []bytecode.Constant{
		bytecode.IntConst(1),
		bytecode.StringConst("a"),
		bytecode.FloatConst(1.5),
	}, f.Chunk.Consts)
}

func TestSiblingBlocksShareSlots(t *testing.T) {
	prog := compileSource(t, `fn f(p) { { var a = 1; a; }; { var b = 2; b; }; p; }`)
	f := prog.Main.Nested[0]
	assert.Equal(t, 2, f.MaxLocals)
	var stores []int
	for _, ins := range f.Chunk.Code {
		if ins.Op() == bytecode.OP_STORE_LOCAL {
			stores = append(stores, ins.A())
		}
	}
	assert.Equal(t, []int{1, 1}, stores)
}

func TestBlockLocalNotVisibleAfterBlock(t *testing.T) {
	_, diags := compileWith(t, `{ var x = 1; } ; Print(x);`, Options{Predeclared: []string{"Print"}})
	assert.True(t, diags.HasErrors())
	errs := messages(diags, diag.Error)
	require.Len(t, errs, 1)
	assert.Equal(t, "unresolved identifier x", errs[0])
}

func TestUnresolvedPolicies(t *testing.T) {
	src := `fn f() missing + 1;`

	_, failing := compileWith(t, src, Options{Unresolved: UnresolvedFail})
	assert.True(t, failing.HasErrors())

	prog, warning := compileWith(t, src, Options{Unresolved: UnresolvedWarn})
	assert.False(t, warning.HasErrors())
	_, warns := warning.Counts()
	assert.Equal(t, 1, warns)
	assert.Equal(t, bytecode.OP_LOAD_NULL, prog.Main.Nested[0].Chunk.Code[0].Op())
}

func TestDuplicatePolicies(t *testing.T) {
	src := `fn f() { var a = 1; var a = 2; a; }`
	cases := []struct {
		name      string
		policy    DuplicatePolicy
		level     diag.Level
		maxLocals int
	}{
		{"reject", DuplicateReject, diag.Error, 1},
		{"shadow", DuplicateShadow, diag.Warning, 2},
		{"reuse", DuplicateReuse, diag.Info, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prog, diags := compileWith(t, src, Options{Duplicate: tc.policy})
			require.Len(t, diags.Diagnostics(), 1)
			assert.Equal(t, tc.level, diags.Diagnostics()[0].Level)
			f := prog.Main.Nested[0]
			assert.Equal(t, tc.maxLocals, f.MaxLocals)
			code := f.Chunk.Code
			last := code[len(code)-2]
			assert.Equal(t, bytecode.OP_LOAD_LOCAL, last.Op())
			assert.Equal(t, tc.maxLocals-1, last.A())
		})
	}
}

func TestExternIsNotADuplicate(t *testing.T) {
	prog, diags := compileWith(t, `extern Print; extern Host; Host(Print);`, Options{Predeclared: []string{"Print"}})
	assert.Empty(t, diags.Diagnostics())
	assert.Equal(t, []string{"Print", "Host"}, prog.Globals)
}

func TestForwardReferenceBetweenTopLevelFunctions(t *testing.T) {
	prog := compileSource(t, `fn a() b(); fn b() 1;`)
	assert.Equal(t, []string{"Print", "a", "b"}, prog.Globals)
}

func TestClosedProgramHasNoDiagnostics(t *testing.T) {
	compileSource(t, `
var total = 0;
fn sum(xs..) {
	var i = 0;
	while (i < 3) { total = total + i; i = i + 1; };
	if (total > 2 and not false) total; el null;
}
fn Main() { var f = fn(x) x * 2; Print(sum(f(1), [1, 2][0], typeof 1)); }
`)
}

func TestArityChecks(t *testing.T) {
	_, tooMany := compileWith(t, `fn add(a, b) a + b; add(1, 2, 3);`, Options{})
	errs := messages(tooMany, diag.Error)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "add expects 2 arguments, got 3")

	_, tooFew := compileWith(t, `fn add(a, b) a + b; add(1);`, Options{})
	assert.False(t, tooFew.HasErrors())
	_, warns := tooFew.Counts()
	assert.Equal(t, 1, warns)

	_, variadic := compileWith(t, `fn log(p, rest..) p; log(1, 2, 3, 4);`, Options{})
	assert.Empty(t, variadic.Diagnostics())
}

func TestNativeArityCheck(t *testing.T) {
	if _, ok := bytecode.LookupNativeInfo("CompilerTestUnary"); !ok {
		bytecode.RegisterNativeInfo("CompilerTestUnary", 1)
	}
	_, diags := compileWith(t, `CompilerTestUnary(1, 2);`, Options{Predeclared: []string{"CompilerTestUnary"}})
	assert.True(t, diags.HasErrors())

	_, redefined := compileWith(t, `fn CompilerTestUnary(a, b) a; CompilerTestUnary(1, 2);`,
		Options{Predeclared: []string{"CompilerTestUnary"}})
	assert.Empty(t, redefined.Diagnostics())
}

func TestReassignedGlobalsSkipArityChecks(t *testing.T) {
	_, fnDiags := compileWith(t, `fn f(a) a; fn g(a, b) a + b; f = g; Print(f(1, 2));`,
		Options{Predeclared: []string{"Print"}})
	assert.Empty(t, fnDiags.Diagnostics())

	_, laterAssign := compileWith(t, `fn f(a) a; fn run() f(1, 2); fn swap() { f = fn(a, b) b; }`, Options{})
	assert.Empty(t, laterAssign.Diagnostics())

	if _, ok := bytecode.LookupNativeInfo("CompilerTestUnary"); !ok {
		bytecode.RegisterNativeInfo("CompilerTestUnary", 1)
	}
	_, native := compileWith(t, `CompilerTestUnary = fn(a, b) a; CompilerTestUnary(1, 2);`,
		Options{Predeclared: []string{"CompilerTestUnary"}})
	assert.Empty(t, native.Diagnostics())

	_, local := compileWith(t, `fn f(a) a; fn run() { var f = 1; f = 2; } f(1, 2);`, Options{})
	assert.True(t, local.HasErrors(), "assigning a local of the same name leaves the global's shape known")
}

func TestIfAndShortCircuitKeepStackBalanced(t *testing.T) {
	prog := compileSource(t, `fn f(a, b) if (a or b) a and b; el [a, b];`)
	f := prog.Main.Nested[0]
	assert.LessOrEqual(t, f.MaxStack, 3)
	var tests int
	for _, ins := range f.Chunk.Code {
		if ins.Op() == bytecode.OP_TEST || ins.Op() == bytecode.OP_JUMP {
			assert.LessOrEqual(t, ins.A(), len(f.Chunk.Code))
			tests++
		}
	}
	assert.Equal(t, 4, tests)
}

func TestDiagnosticsCarryLocation(t *testing.T) {
	_, diags := compileWith(t, "fn f()\n  nope;", Options{Source: "loc.laye"})
	require.Len(t, diags.Diagnostics(), 1)
	d := diags.Diagnostics()[0]
	require.NotNil(t, d.Location)
	assert.Equal(t, 2, d.Location.Line)
	assert.True(t, strings.HasPrefix(d.Error(), "loc.laye:2:3"))
}
