package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xirelogy/go-laye/internal/ast"
	"github.com/xirelogy/go-laye/internal/lexer"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New(lexer.New(src))
	prog := p.ParseProgram()
	require.Empty(t, p.Errors(), "parser errors")
	return prog
}

func TestParseFunctionDefinitions(t *testing.T) {
	prog := parse(t, `fn add(a, b) a + b; fn Main() Print(add(2, 3));`)
	require.Len(t, prog.Items, 2)

	add, ok := prog.Items[0].(*ast.FuncDef)
	require.True(t, ok, "expected FuncDef, got %T", prog.Items[0])
	assert.Equal(t, "add", add.Name)
	require.Len(t, add.Params, 2)
	assert.Equal(t, "a", add.Params[0].Name)
	assert.Equal(t, ast.KindInfix, add.Body.Kind())

	main := prog.Items[1].(*ast.FuncDef)
	call, ok := main.Body.(*ast.Call)
	require.True(t, ok)
	require.Len(t, call.Arguments, 1)
	inner := call.Arguments[0].(*ast.Call)
	assert.Len(t, inner.Arguments, 2)
}

func TestParseCounterClosure(t *testing.T) {
	prog := parse(t, `fn counter() { var n = 0; fn() { n = n + 1; ret n; } }`)
	require.Len(t, prog.Items, 1)
	def := prog.Items[0].(*ast.FuncDef)
	body, ok := def.Body.(*ast.Block)
	require.True(t, ok)
	require.Len(t, body.Items, 2)
	assert.Equal(t, ast.KindVarDef, body.Items[0].Kind())
	lit, ok := body.Items[1].(*ast.FuncExpr)
	require.True(t, ok)
	inner := lit.Body.(*ast.Block)
	require.Len(t, inner.Items, 2)
	assert.Equal(t, ast.KindAssign, inner.Items[0].Kind())
	assert.Equal(t, ast.KindReturn, inner.Items[1].Kind())
}

func TestParsePrecedence(t *testing.T) {
	prog := parse(t, `1 + 2 * 3 == 7 and not false;`)
	require.Len(t, prog.Items, 1)
	and := prog.Items[0].(*ast.Infix)
	assert.Equal(t, "and", and.Operator)
	eq := and.Left.(*ast.Infix)
	assert.Equal(t, "==", eq.Operator)
	sum := eq.Left.(*ast.Infix)
	assert.Equal(t, "+", sum.Operator)
	assert.Equal(t, "*", sum.Right.(*ast.Infix).Operator)
	assert.Equal(t, "not", and.Right.(*ast.Prefix).Operator)
}

func TestParseVariadicAndExtern(t *testing.T) {
	prog := parse(t, `extern Print; fn log(prefix, rest..) Print(prefix, rest);`)
	require.Len(t, prog.Items, 2)
	assert.Equal(t, "Print", prog.Items[0].(*ast.Extern).Name)
	def := prog.Items[1].(*ast.FuncDef)
	assert.True(t, def.Variadic)
	assert.Len(t, def.Params, 2)
}

func TestParseVariadicMustBeLast(t *testing.T) {
	p := New(lexer.New(`fn bad(a.., b) a;`))
	p.ParseProgram()
	require.NotEmpty(t, p.Errors())
	assert.Contains(t, p.Errors()[0], "must be last")
}

func TestParseIfElseAndWhile(t *testing.T) {
	prog := parse(t, `
var i = 0;
while (i < 3) i = i + 1;
var r = if (i == 3) "yes"; el "no";
`)
	require.Len(t, prog.Items, 3)
	loop := prog.Items[1].(*ast.While)
	assert.Equal(t, ast.KindAssign, loop.Body.Kind())
	def := prog.Items[2].(*ast.VarDef)
	cond := def.Value.(*ast.If)
	require.NotNil(t, cond.Else)
	assert.Equal(t, "no", cond.Else.(*ast.StringLit).Value)
}

func TestParsePostfixListAndIndex(t *testing.T) {
	prog := parse(t, `var xs = [1, 2.5, "s"]; xs[0] = xs[1]; xs!;`)
	require.Len(t, prog.Items, 3)
	list := prog.Items[0].(*ast.VarDef).Value.(*ast.List)
	assert.Len(t, list.Elements, 3)
	assign := prog.Items[1].(*ast.Assign)
	assert.Equal(t, ast.KindIndex, assign.Target.Kind())
	post := prog.Items[2].(*ast.Postfix)
	assert.Equal(t, "!", post.Operator)
}

func TestParseBlockThenStatement(t *testing.T) {
	prog := parse(t, `{ var x = 1; } ; Print(x);`)
	require.Len(t, prog.Items, 2)
	assert.Equal(t, ast.KindBlock, prog.Items[0].Kind())
	assert.Equal(t, ast.KindCall, prog.Items[1].Kind())
}

func TestParseReportsMissingSemicolon(t *testing.T) {
	p := New(lexer.New(`var a = 1 var b = 2;`))
	p.ParseProgram()
	require.NotEmpty(t, p.ErrorList())
	assert.Equal(t, 1, p.ErrorList()[0].Pos.Line)
}

func TestParseInvalidAssignmentTarget(t *testing.T) {
	p := New(lexer.New(`1 = 2;`))
	p.ParseProgram()
	require.NotEmpty(t, p.Errors())
}
