package bytecode

import (
	"bytes"
	"strings"
	"testing"
)

func sampleProgram() *Program {
	inner := &Prototype{
		Name:      "inc",
		NumParams: 0,
		MaxStack:  2,
		Upvalues:  []Upvalue{{Name: "n", IsLocal: true, Index: 0}},
		Chunk: &Chunk{
			Code: []Instruction{
				MustA(OP_LOAD_UPVAL, 0),
				MustA(OP_LOAD_CONST, 0),
				MustA(OP_INFIX, 1),
				Make(OP_RETURN),
			},
			Consts: []Constant{IntConst(1), OperatorConst("+")},
			Lines:  []LineInfo{{Offset: 0, Line: 2}},
		},
	}
	main := &Prototype{
		Name:      "main",
		MaxLocals: 1,
		MaxStack:  2,
		Nested:    []*Prototype{inner},
		Chunk: &Chunk{
			Code: []Instruction{
				MustA(OP_LOAD_GLOBAL, 0),
				MustA(OP_BUILD_CLOSURE, 0),
				MustB(OP_INVOKE, 1),
				MustAB(OP_RETURN, 0, 1),
			},
			Lines: []LineInfo{{Offset: 0, Line: 1}},
		},
	}
	return &Program{Name: "sample.laye", Main: main, Globals: []string{"DisasmTestNative"}}
}

func TestDisassembleProgram(t *testing.T) {
	if _, ok := LookupNativeInfo("DisasmTestNative"); !ok {
		RegisterNativeInfo("DisasmTestNative", 1)
	}
	var buf bytes.Buffer
	dis := NewDisassembler(&buf)
	if err := dis.DisassembleProgram(sampleProgram()); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"program sample.laye (globals=1)",
		"global 0 DisasmTestNative ; native arity=1",
		"func main (params=0, locals=1, stack=2, upvalues=0)",
		"0000    1 LOAD_GLOBAL      0 ; name=DisasmTestNative native arity=1",
		"BUILD_CLOSURE    0 ; proto inc upvalues=1",
		"RETURN           ; close",
		"func inc (params=0, locals=0, stack=2, upvalues=1)",
		"upval 0 n <- local 0",
		"LOAD_UPVAL       0 ; n",
		"INFIX            1 ; const[1]=op +",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestDisassembleRejectsBadConstIndex(t *testing.T) {
	proto := &Prototype{
		Name:  "bad",
		Chunk: &Chunk{Code: []Instruction{MustA(OP_LOAD_CONST, 5)}},
	}
	var buf bytes.Buffer
	if err := NewDisassembler(&buf).DisassemblePrototype("", proto); err == nil {
		t.Fatalf("expected error for out-of-range constant")
	}
}
