package ast_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xirelogy/go-laye/internal/ast"
	"github.com/xirelogy/go-laye/internal/lexer"
	"github.com/xirelogy/go-laye/internal/parser"
)

func TestDumpOutline(t *testing.T) {
	prog := &ast.Program{Items: []ast.Node{
		&ast.VarDef{Name: "x", Value: &ast.List{Elements: []ast.Node{
			&ast.IntLit{Value: 1},
			&ast.StringLit{Value: "s"},
		}}},
		&ast.Return{},
	}}
	var out bytes.Buffer
	require.NoError(t, ast.Dump(&out, prog))
	assert.Equal(t, `Program
  0: VarDef x
    value: List
      0: IntLit 1
      1: StringLit "s"
  1: Return
`, out.String())
}

func TestDumpParsedProgram(t *testing.T) {
	p := parser.New(lexer.New(`fn log(p, rest..) if (p) Print(rest[0]); el null;`))
	prog := p.ParseProgram()
	require.Empty(t, p.Errors())

	var out bytes.Buffer
	require.NoError(t, ast.Dump(&out, prog))
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "Program", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  0: FuncDef log(p, rest..) @1:"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "    body: If @1:"), lines[2])
	assert.Contains(t, out.String(), "      cond: Ident p @1:")
	assert.Contains(t, out.String(), "        target: Ident Print")
	assert.Contains(t, out.String(), "        arg[0]: Index")
	assert.Contains(t, out.String(), "      else: NullLit")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestDumpReportsWriteErrors(t *testing.T) {
	err := ast.Dump(failingWriter{}, &ast.Program{Items: []ast.Node{&ast.NullLit{}}})
	assert.EqualError(t, err, "closed")
}
