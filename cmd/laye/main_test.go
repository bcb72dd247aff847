package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunCallsMain(t *testing.T) {
	path := writeFile(t, t.TempDir(), "add.laye", `fn add(a, b) a + b; fn Main() Print(add(2, 3));`)

	code, stdout, stderr := runCLI("run", path)
	assert.Equal(t, 0, code, stderr)
	assert.Equal(t, "5\n", stdout)
}

func TestRunCustomEntry(t *testing.T) {
	path := writeFile(t, t.TempDir(), "entry.laye", `fn Main() Print("main"); fn Other() Print("other");`)

	code, stdout, _ := runCLI("run", "-entry", "Other", path)
	assert.Equal(t, 0, code)
	assert.Equal(t, "other\n", stdout)

	code, stdout, _ = runCLI("run", "-entry", "", path)
	assert.Equal(t, 0, code)
	assert.Empty(t, stdout)
}

func TestRunReportsRuntimeError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "boom.laye", `
fn boom() Raise("boom");
fn Main() boom();
`)

	code, _, stderr := runCLI("run", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Runtime error")
	assert.Contains(t, stderr, "boom")
	assert.Contains(t, stderr, "  at Main")
}

func TestRunReportsCompileErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.laye", `fn Main() missing();`)

	code, stdout, stderr := runCLI("run", path)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "unresolved identifier missing")
}

func TestRunUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "laye.toml", "[compiler]\nunresolved = \"warn\"\n")
	path := writeFile(t, dir, "warn.laye", `fn Main() Print(missing);`)

	code, stdout, stderr := runCLI("run", path)
	assert.Equal(t, 0, code, stderr)
	assert.Equal(t, "null\n", stdout)
	assert.Contains(t, stderr, "unresolved identifier missing")
}

func TestRunInstructionLimitFlag(t *testing.T) {
	path := writeFile(t, t.TempDir(), "spin.laye", `fn Main() { while (true) null; }`)

	code, _, stderr := runCLI("run", "-limit", "500", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "instruction limit")
}

func TestCompileThenRunCompiled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "prog.laye", `fn Main() Print("compiled", [1, 2]);`)
	out := filepath.Join(dir, "out.layec")

	code, stdout, stderr := runCLI("compile", "-o", out, path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "wrote "+out)

	code, stdout, stderr = runCLI("run", out)
	assert.Equal(t, 0, code, stderr)
	assert.Equal(t, "compiled [1, 2]\n", stdout)
}

func TestCompileDefaultOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "prog.laye", `fn Main() 1;`)

	code, _, stderr := runCLI("compile", path)
	require.Equal(t, 0, code, stderr)
	_, err := os.Stat(filepath.Join(dir, "prog.layec"))
	assert.NoError(t, err)
}

func TestDisasm(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dis.laye", `fn add(a, b) a + b; Print("not run");`)

	code, stdout, stderr := runCLI("disasm", path)
	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "program")
	assert.Contains(t, stdout, "add")
}

func TestAST(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tree.laye", `fn add(a, b) a + b;`)

	code, stdout, stderr := runCLI("ast", path)
	assert.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasPrefix(stdout, "Program\n  0: FuncDef add(a, b) @1:"), stdout)
	assert.Contains(t, stdout, "body: Infix +")

	bad := writeFile(t, dir, "bad.laye", "fn f( {")
	code, _, stderr = runCLI("ast", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error: "+bad)
}

func TestUsageErrors(t *testing.T) {
	code, _, stderr := runCLI()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage: laye")

	code, _, stderr = runCLI("frobnicate", "x.laye")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")

	code, _, _ = runCLI("run")
	assert.Equal(t, 2, code)

	code, stdout, _ := runCLI("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Commands:")
}

func TestMissingFile(t *testing.T) {
	code, _, stderr := runCLI("run", filepath.Join(t.TempDir(), "nope.laye"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error:")
}
