package vm_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/xirelogy/go-laye/internal/builtins"
	"github.com/xirelogy/go-laye/internal/bytecode"
	"github.com/xirelogy/go-laye/internal/compiler"
	"github.com/xirelogy/go-laye/internal/lexer"
	"github.com/xirelogy/go-laye/internal/parser"
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

func newMachine(t *testing.T) (*vm.VM, *bytes.Buffer) {
	t.Helper()
	g := vm.NewGlobalState()
	runtime.Install(g)
	machine := vm.NewWithGlobals(g)
	var out bytes.Buffer
	machine.SetOutput(&out)
	return machine, &out
}

func compileProgram(t *testing.T, machine *vm.VM, src string) *bytecode.Program {
	t.Helper()
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parser errors: %v", errs)
	}
	out, diags, err := compiler.Compile(prog, compiler.Options{
		Source:      "test.laye",
		Predeclared: machine.Globals().Names(),
	}, nil)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if err := diags.Err(); err != nil {
		t.Fatalf("compile diagnostics: %v", err)
	}
	return out
}

// runSource compiles src and runs its top level on a fresh VM.
func runSource(t *testing.T, src string) (*vm.VM, *bytes.Buffer) {
	t.Helper()
	machine, out := newMachine(t)
	if _, err := machine.Run(context.Background(), compileProgram(t, machine, src)); err != nil {
		t.Fatalf("run error: %v", err)
	}
	return machine, out
}

func call(t *testing.T, machine *vm.VM, name string, args ...vm.Value) vm.Value {
	t.Helper()
	v, err := machine.Call(context.Background(), name, args...)
	require.NoError(t, err)
	return v
}

func invoke(t *testing.T, machine *vm.VM, callee vm.Value, args ...vm.Value) vm.Value {
	t.Helper()
	v, err := machine.Invoke(context.Background(), callee, vm.Null(), args)
	require.NoError(t, err)
	return v
}

func TestAddMainPrintsFive(t *testing.T) {
	machine, out := runSource(t, `fn add(a, b) a + b; fn Main() Print(add(2, 3));`)
	call(t, machine, "Main")
	assert.Equal(t, "5\n", out.String())
}

func TestCounterClosure(t *testing.T) {
	machine, _ := runSource(t, `fn counter() { var n = 0; fn() { n = n + 1; ret n; } }`)
	c := call(t, machine, "counter")
	require.Equal(t, vm.KindClosure, c.Kind)

	assert.Equal(t, vm.Int(1), invoke(t, machine, c))
	assert.Equal(t, vm.Int(2), invoke(t, machine, c))

	other := call(t, machine, "counter")
	assert.Equal(t, vm.Int(1), invoke(t, machine, other))
	assert.Equal(t, vm.Int(3), invoke(t, machine, c))
	assert.Equal(t, 0, machine.LiveFrames(), "closed upvalues release their frame")
}

func TestUpvalueIdentity(t *testing.T) {
	machine, out := runSource(t, `
var get = null;
var set = null;
fn make() {
	var x = 1;
	get = fn() x;
	set = fn(v) { x = v; };
	set(5);
	Print(get(), x);
	x = 3;
	Print(get());
}
`)
	call(t, machine, "make")
	assert.Equal(t, "5 5\n3\n", out.String())

	// after make returns both closures still share the closed cell
	call(t, machine, "set", vm.Int(7))
	assert.Equal(t, vm.Int(7), call(t, machine, "get"))
}

func TestLoopClosuresCaptureEachIteration(t *testing.T) {
	machine, _ := runSource(t, `
var fs = [];
fn build() {
	var i = 0;
	while (i < 3) {
		var j = i;
		Append(fs, fn() j);
		i = i + 1;
	};
}
`)
	call(t, machine, "build")
	fs, ok := machine.Globals().LoadName("fs")
	require.True(t, ok)
	require.Equal(t, vm.KindList, fs.Kind)
	require.Len(t, fs.List.Items, 3)
	for i, f := range fs.List.Items {
		assert.Equal(t, vm.Int(int64(i)), invoke(t, machine, f))
	}
}

func TestNestedCaptureThroughMiddleFunction(t *testing.T) {
	machine, _ := runSource(t, `
fn outer() {
	var v = 10;
	var mid = fn() { fn() { v = v + 1; v; }; };
	var inner = mid();
	inner();
	inner();
}
`)
	assert.Equal(t, vm.Int(12), call(t, machine, "outer"))
}

func TestInvokeNonFunctionRaises(t *testing.T) {
	machine, _ := runSource(t, `
fn Main() {
	var x = 1;
	x();
}
fn ok() 42;
`)
	_, err := machine.Call(context.Background(), "Main")
	require.Error(t, err)
	var re *vm.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "attempt to invoke type int.", re.Message)
	assert.Equal(t, "Main", re.Frame.Function)
	assert.Equal(t, "test.laye", re.Frame.Source)
	assert.Equal(t, 4, re.Frame.Line)
	assert.NotEmpty(t, re.Stack)

	// the VM stays usable after an aborted invocation
	assert.Equal(t, vm.Int(42), call(t, machine, "ok"))
	assert.Equal(t, 0, machine.LiveFrames())
}

func TestVariadicBinding(t *testing.T) {
	machine, _ := runSource(t, `
fn count(first, rest..) [first, rest, Len(rest)];
fn two(a, b) [a, b];
`)
	v := call(t, machine, "count", vm.Int(1), vm.Int(2), vm.Int(3))
	assert.Equal(t, `[1, [2, 3], 2]`, v.String())

	v = call(t, machine, "count", vm.Int(1))
	assert.Equal(t, `[1, [], 0]`, v.String())

	v = call(t, machine, "count")
	assert.Equal(t, `[null, [], 0]`, v.String())

	v = call(t, machine, "two", vm.Int(1), vm.Int(2), vm.Int(3))
	assert.Equal(t, `[1, 2]`, v.String())

	v = call(t, machine, "two", vm.Int(1))
	assert.Equal(t, `[1, null]`, v.String())
}

func TestNumericPromotion(t *testing.T) {
	cases := []struct {
		op          string
		left, right vm.Value
		want        vm.Value
	}{
		{"/", vm.Int(7), vm.Int(2), vm.Float(3.5)},
		{"//", vm.Int(7), vm.Int(2), vm.Int(3)},
		{"//", vm.Int(-7), vm.Int(2), vm.Int(-3)},
		{"//", vm.Float(7.5), vm.Int(2), vm.Int(3)},
		{"+", vm.Int(1), vm.Float(0.5), vm.Float(1.5)},
		{"*", vm.Float(1.5), vm.Int(2), vm.Float(3)},
		{"-", vm.Int(5), vm.Int(7), vm.Int(-2)},
		{"%", vm.Int(7), vm.Int(3), vm.Int(1)},
		{"^", vm.Int(2), vm.Int(10), vm.Int(1024)},
		{"^", vm.Int(2), vm.Int(-1), vm.Float(0.5)},
		{"&", vm.Int(6), vm.Int(3), vm.Int(2)},
		{"|", vm.Int(6), vm.Int(3), vm.Int(7)},
		{"~", vm.Int(6), vm.Int(3), vm.Int(5)},
		{"<<", vm.Int(1), vm.Int(4), vm.Int(16)},
		{">>", vm.Int(16), vm.Int(2), vm.Int(4)},
		{"<", vm.Int(1), vm.Float(1.5), vm.Bool(true)},
		{"==", vm.Int(1), vm.Float(1), vm.Bool(true)},
		{"!=", vm.String("a"), vm.Int(1), vm.Bool(true)},
		{"+", vm.String("a"), vm.Int(1), vm.String("a1")},
		{"<", vm.String("a"), vm.String("b"), vm.Bool(true)},
		{"==", vm.Null(), vm.Null(), vm.Bool(true)},
	}
	for _, tc := range cases {
		t.Run(tc.left.String()+tc.op+tc.right.String(), func(t *testing.T) {
			got, err := vm.Infix(tc.op, tc.left, tc.right)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInfixErrors(t *testing.T) {
	_, err := vm.Infix("//", vm.Int(1), vm.Int(0))
	assert.ErrorIs(t, err, vm.ErrDivideByZero)

	_, err = vm.Infix("%", vm.Int(1), vm.Int(0))
	assert.ErrorIs(t, err, vm.ErrDivideByZero)

	_, err = vm.Infix("+", vm.Bool(true), vm.Int(1))
	require.Error(t, err)
	assert.Equal(t, "attempt to perform infix '+' operation on type bool.", err.Error())

	_, err = vm.Infix("&", vm.Float(1), vm.Int(1))
	assert.Error(t, err)

	_, err = vm.Infix("-", vm.String("a"), vm.String("b"))
	assert.Error(t, err)
}

func TestPrefixAndPostfix(t *testing.T) {
	v, err := vm.Prefix("-", vm.Int(3))
	require.NoError(t, err)
	assert.Equal(t, vm.Int(-3), v)

	v, err = vm.Prefix("~", vm.Int(0))
	require.NoError(t, err)
	assert.Equal(t, vm.Int(-1), v)

	v, err = vm.Prefix("not", vm.Null())
	require.NoError(t, err)
	assert.Equal(t, vm.Bool(true), v)

	_, err = vm.Prefix("~", vm.Float(1))
	assert.Error(t, err)

	_, err = vm.Postfix("!", vm.Int(3))
	require.Error(t, err)
	assert.Equal(t, "attempt to perform postfix '!' operation on type int.", err.Error())
}

func TestDivisionByZeroInScript(t *testing.T) {
	machine, _ := runSource(t, `fn f(a, b) a // b;`)
	_, err := machine.Call(context.Background(), "f", vm.Int(1), vm.Int(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, vm.ErrDivideByZero)
	var re *vm.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "f", re.Frame.Function)

	v := call(t, machine, "f", vm.Float(1), vm.Int(2))
	assert.Equal(t, vm.Int(0), v)
}

func TestPrintFormatting(t *testing.T) {
	machine, out := runSource(t, `fn Main() Print(1 / 2, 4 / 2, "s", [1, "a", null], true, Main);`)
	call(t, machine, "Main")
	assert.Equal(t, "0.5 2.0 s [1, \"a\", null] true <fn Main>\n", out.String())
}

func TestControlFlow(t *testing.T) {
	machine, _ := runSource(t, `
fn sum(n) {
	var total = 0;
	var i = 1;
	while (i <= n) { total = total + i; i = i + 1; };
	total;
}
fn sign(x) if (x < 0) -1; el if (x == 0) 0; el 1;
fn either(a, b) a or b;
fn both(a, b) a and b;
fn flip(a, b) a xor b;
fn early(x) { if (x) ret "yes"; "no"; }
`)
	assert.Equal(t, vm.Int(55), call(t, machine, "sum", vm.Int(10)))
	assert.Equal(t, vm.Int(-1), call(t, machine, "sign", vm.Int(-4)))
	assert.Equal(t, vm.Int(0), call(t, machine, "sign", vm.Int(0)))
	assert.Equal(t, vm.Int(1), call(t, machine, "sign", vm.Int(9)))
	assert.Equal(t, vm.Int(2), call(t, machine, "either", vm.Null(), vm.Int(2)))
	assert.Equal(t, vm.Int(1), call(t, machine, "either", vm.Int(1), vm.Int(2)))
	assert.Equal(t, vm.Bool(false), call(t, machine, "both", vm.Bool(false), vm.Int(2)))
	assert.Equal(t, vm.Int(2), call(t, machine, "both", vm.Int(1), vm.Int(2)))
	assert.Equal(t, vm.Bool(true), call(t, machine, "flip", vm.Int(1), vm.Null()))
	assert.Equal(t, vm.String("yes"), call(t, machine, "early", vm.Bool(true)))
	assert.Equal(t, vm.String("no"), call(t, machine, "early", vm.Bool(false)))
}

func TestListIndexing(t *testing.T) {
	machine, _ := runSource(t, `
fn swap(xs) { var t = xs[0]; xs[0] = xs[1]; xs[1] = t; xs; }
fn at(xs, i) xs[i];
`)
	v := call(t, machine, "swap", vm.NewList(vm.Int(1), vm.Int(2)))
	assert.Equal(t, "[2, 1]", v.String())

	_, err := machine.Call(context.Background(), "at", vm.NewList(), vm.Int(3))
	assert.Error(t, err)
	_, err = machine.Call(context.Background(), "at", vm.Int(1), vm.Int(0))
	assert.Error(t, err)
	assert.Equal(t, vm.String("b"), call(t, machine, "at", vm.String("abc"), vm.Int(1)))
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"typeof", `fn demo() [TypeOf(1.5), typeof 1, typeof demo, typeof Print];`, `["float", "int", "closure", "native"]`},
		{"len", `fn demo() [Len("abc"), Len([1, 2])];`, `[3, 2]`},
		{"append", `fn demo() { var xs = [1]; Append(xs, 2, 3); xs; }`, `[1, 2, 3]`},
		{"tostring", `fn demo() ToString([1, "a"]);`, `[1, "a"]`},
		{"indexRead", `fn demo() IndexRead([1], 5, "def");`, `def`},
		{"indexExists", `fn demo() [IndexExists([1], 0), IndexExists([1], 1)];`, `[true, false]`},
		{"contains", `fn demo() Contains([1, 2, 3], 2.0);`, `true`},
		{"assert passes", `fn demo() Assert(1 < 2, "math");`, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine, _ := runSource(t, tt.src)
			assert.Equal(t, tt.want, call(t, machine, "demo").String())
		})
	}
}

func TestRaisingBuiltins(t *testing.T) {
	machine, _ := runSource(t, `
fn boom() Raise("boom");
fn check(x) Assert(x, "x must hold");
fn bare() Assert(false);
fn nested() boom();
`)
	tests := []struct {
		name    string
		args    []vm.Value
		message string
	}{
		{"boom", nil, "boom"},
		{"check", []vm.Value{vm.Bool(false)}, "assertion failed: x must hold"},
		{"bare", nil, "assertion failed."},
		{"nested", nil, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := machine.Call(context.Background(), tt.name, tt.args...)
			var re *vm.RuntimeError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.message, re.Message)
		})
	}

	_, err := machine.Call(context.Background(), "nested")
	var re *vm.RuntimeError
	require.ErrorAs(t, err, &re)
	require.Len(t, re.Stack, 2)
	assert.Equal(t, "boom", re.Stack[0].Function)
	assert.Equal(t, "nested", re.Stack[1].Function)
	assert.Contains(t, re.StackTrace(), "at nested (test.laye:5)")
}

func TestNativeArityCheckedAtRuntime(t *testing.T) {
	machine, _ := newMachine(t)
	_, err := machine.Call(context.Background(), "Len")
	var re *vm.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Len expects 1 argument(s), got 0.", re.Message)
}

func TestNativeHandlesCallbackError(t *testing.T) {
	machine, out := newMachine(t)
	machine.DefineNative("Try", 1, func(rt *vm.VM, args []vm.Value) (vm.Value, error) {
		_, err := rt.CallValue(args[0])
		return vm.Bool(err != nil), nil
	})
	machine.SetMaxFrames(16)
	prog := compileProgram(t, machine, `
Print("before");
var r = Try(fn() 1(2));
Print("after", r);
fn deep(n) deep(n + 1);
Print("deep", Try(fn() deep(0)));
Print("ok", Try(fn() 1));
`)
	_, err := machine.Run(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, "before\nafter true\ndeep true\nok false\n", out.String())
	assert.Equal(t, 0, machine.LiveFrames())
}

func TestInstructionLimit(t *testing.T) {
	machine, _ := runSource(t, `fn spin() { while (true) null; }`)
	machine.SetInstructionLimit(1000)
	_, err := machine.Call(context.Background(), "spin")
	assert.ErrorIs(t, err, vm.ErrInstructionLimit)
	assert.Equal(t, 0, machine.LiveFrames())
}

func TestFrameLimit(t *testing.T) {
	machine, _ := runSource(t, `fn rec(n) rec(n + 1);`)
	machine.SetMaxFrames(32)
	_, err := machine.Call(context.Background(), "rec", vm.Int(0))
	assert.ErrorIs(t, err, vm.ErrFrameLimit)
	var re *vm.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Len(t, re.Stack, 32)
	assert.Equal(t, 0, machine.LiveFrames())
}

func TestCanceledContext(t *testing.T) {
	machine, _ := runSource(t, `fn f() 1;`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := machine.Call(ctx, "f")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCallUndefinedGlobal(t *testing.T) {
	machine, _ := newMachine(t)
	_, err := machine.Call(context.Background(), "nope")
	assert.ErrorIs(t, err, vm.ErrUndefinedGlobal)
}

func TestReservedOpcodeIsInternalError(t *testing.T) {
	for _, op := range []bytecode.Opcode{bytecode.OP_YIELD, bytecode.OP_TRY_START, bytecode.OP_BUILD_TYPE, bytecode.OP_AND, bytecode.OP_OR, bytecode.OP_THIS} {
		t.Run(op.String(), func(t *testing.T) {
			machine, _ := newMachine(t)
			prog := &bytecode.Program{
				Name: "reserved",
				Main: &bytecode.Prototype{
					Name:     "main",
					MaxStack: 1,
					Chunk:    &bytecode.Chunk{Code: []bytecode.Instruction{bytecode.Make(op)}},
				},
			}
			_, err := machine.Run(context.Background(), prog)
			var ie *bytecode.InternalError
			require.ErrorAs(t, err, &ie)
			assert.Contains(t, ie.Msg, "reserved opcode "+op.String())
		})
	}
}

func TestStackOverflowIsInternalError(t *testing.T) {
	machine, _ := newMachine(t)
	prog := &bytecode.Program{
		Name: "overflow",
		Main: &bytecode.Prototype{
			Name:     "main",
			MaxStack: 1,
			Chunk: &bytecode.Chunk{Code: []bytecode.Instruction{
				bytecode.Make(bytecode.OP_LOAD_NULL),
				bytecode.Make(bytecode.OP_LOAD_NULL),
			}},
		},
	}
	_, err := machine.Run(context.Background(), prog)
	var ie *bytecode.InternalError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Msg, "operand stack overflow")
	assert.Equal(t, 0, machine.LiveFrames())
}

func TestGlobalLinkMismatch(t *testing.T) {
	g := vm.NewGlobalState()
	g.StoreName("a", vm.Int(1))
	require.NoError(t, g.Link([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, g.Names())

	err := g.Link([]string{"b"})
	assert.ErrorIs(t, err, vm.ErrGlobalLayout)

	_, err = g.Load(9)
	assert.ErrorIs(t, err, vm.ErrGlobalIndex)
}

func TestGlobalLinkShadowedNames(t *testing.T) {
	g := vm.NewGlobalState()
	g.StoreName("x", vm.Int(1))
	require.NoError(t, g.Link([]string{"x", "y", "x"}))
	assert.Equal(t, []string{"x", "y", "x"}, g.Names())

	i, ok := g.IndexOf("x")
	require.True(t, ok)
	assert.Equal(t, 2, i)
	require.NoError(t, g.Store(2, vm.Int(2)))
	v, _ := g.LoadName("x")
	assert.Equal(t, vm.Int(2), v)
	first, _ := g.Load(0)
	assert.Equal(t, vm.Int(1), first)

	clone := g.Clone()
	assert.Equal(t, g.Names(), clone.Names())
	v, _ = clone.LoadName("x")
	assert.Equal(t, vm.Int(2), v)
}

func TestHostNative(t *testing.T) {
	machine, _ := newMachine(t)
	var seen []vm.Value
	machine.DefineNative("Host", -1, func(rt *vm.VM, args []vm.Value) (vm.Value, error) {
		seen = append(seen, args...)
		return vm.NewList(args...), nil
	})
	prog := compileProgram(t, machine, `extern Host; fn Main() Host(1, "two");`)
	_, err := machine.Run(context.Background(), prog)
	require.NoError(t, err)
	v := call(t, machine, "Main")
	assert.Equal(t, `[1, "two"]`, v.String())
	assert.Len(t, seen, 2)
}

func TestNativeCallsBackIntoScript(t *testing.T) {
	machine, _ := newMachine(t)
	machine.DefineNative("Apply", 2, func(rt *vm.VM, args []vm.Value) (vm.Value, error) {
		return rt.CallValue(args[0], args[1])
	})
	prog := compileProgram(t, machine, `extern Apply; fn Main() Apply(fn(x) x * 10, 4);`)
	_, err := machine.Run(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, vm.Int(40), call(t, machine, "Main"))
}

func TestDuplicateIsIndependent(t *testing.T) {
	machine, _ := runSource(t, `
var c = null;
fn counter() { var n = 0; fn() { n = n + 1; n; } }
c = counter();
`)
	c, _ := machine.Globals().LoadName("c")
	assert.Equal(t, vm.Int(1), invoke(t, machine, c))

	dup := machine.Duplicate()
	dc, _ := dup.Globals().LoadName("c")
	v, err := dup.Invoke(context.Background(), dc, vm.Null(), nil)
	require.NoError(t, err)
	assert.Equal(t, vm.Int(2), v)
	v, err = dup.Invoke(context.Background(), dc, vm.Null(), nil)
	require.NoError(t, err)
	assert.Equal(t, vm.Int(3), v)

	assert.Equal(t, vm.Int(2), invoke(t, machine, c))
}

func TestTraceHook(t *testing.T) {
	machine, _ := runSource(t, `fn add(a, b) a + b;`)
	var ops []string
	machine.SetTraceHook(func(info vm.TraceInfo) {
		ops = append(ops, info.Op.String())
		if info.Function != "add" {
			t.Errorf("unexpected function %q", info.Function)
		}
	})
	call(t, machine, "add", vm.Int(1), vm.Int(2))
	assert.Equal(t, []string{"LOAD_LOCAL", "LOAD_LOCAL", "INFIX", "RETURN"}, ops)
}

func TestDisassemble(t *testing.T) {
	machine, _ := runSource(t, `fn add(a, b) a + b;`)
	var buf bytes.Buffer
	require.NoError(t, machine.Disassemble(&buf))
	out := buf.String()
	assert.Contains(t, out, "func add (params=2")
	assert.Contains(t, out, "INFIX")
	assert.True(t, strings.Contains(out, "Print"), "natives are listed")
}

func TestRuntimeErrorUnwrap(t *testing.T) {
	cause := errors.New("host failure")
	machine, _ := newMachine(t)
	machine.DefineNative("Fail", 0, func(*vm.VM, []vm.Value) (vm.Value, error) {
		return vm.Null(), cause
	})
	prog := compileProgram(t, machine, `extern Fail; fn Main() Fail();`)
	_, err := machine.Run(context.Background(), prog)
	require.NoError(t, err)
	_, err = machine.Call(context.Background(), "Main")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "in Main: host failure")
}
