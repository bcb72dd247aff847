package compiler

import (
	"fmt"

	"github.com/xirelogy/go-laye/internal/ast"
	"github.com/xirelogy/go-laye/internal/bytecode"
	"github.com/xirelogy/go-laye/internal/diag"
	"github.com/xirelogy/go-laye/internal/symbol"
	"github.com/xirelogy/go-laye/internal/token"
)

type pendingCall struct {
	sym  symbol.Symbol
	argc int
	pos  token.Position
}

// calleeGlobal returns the global a call target names, if it is a plain
// identifier that resolves to a global.
func (fc *funcCompiler) calleeGlobal(target ast.Node) (symbol.Symbol, bool) {
	if target.Kind() != ast.KindIdent {
		return symbol.Symbol{}, false
	}
	sym, ok := fc.table().GetSymbol(target.(*ast.Ident).Name)
	if !ok || sym.Class != symbol.Global {
		return symbol.Symbol{}, false
	}
	return sym, true
}

// nativeInfo returns registered metadata for a host native still bound to its
// predeclared slot.
func (c *compiler) nativeInfo(sym symbol.Symbol) (bytecode.NativeInfo, bool) {
	if sym.Index >= c.predeclared || c.redefined[sym.Index] {
		return bytecode.NativeInfo{}, false
	}
	return bytecode.LookupNativeInfo(sym.Name)
}

// checkArity queues a call for arity checking once the whole program has been
// walked, when every assignment to a global is known.
func (fc *funcCompiler) checkArity(n *ast.Call, argc int) {
	sym, ok := fc.calleeGlobal(n.Target)
	if !ok {
		return
	}
	fc.c.calls = append(fc.c.calls, pendingCall{sym: sym, argc: argc, pos: n.PosT})
}

// checkArities compares queued calls against the known shape of a top-level
// fn or a registered native. Globals the program assigns to have no known
// shape. Too many arguments to a fixed-arity function is an error; too few
// is a warning since missing parameters read as null.
func (c *compiler) checkArities() {
	for _, call := range c.calls {
		sym, argc := call.sym, call.argc
		if c.reassigned[sym.Index] {
			continue
		}
		if sig, ok := c.sigs[sym.Index]; ok {
			fixed := sig.params
			if sig.variadic {
				fixed--
			}
			switch {
			case !sig.variadic && argc > sig.params:
				c.report(diag.Error, call.pos, "%s", errArgs(sym.Name, sig.params, argc))
			case argc < fixed:
				c.report(diag.Warning, call.pos, "%s; missing parameters are null", errArgs(sym.Name, fixed, argc))
			}
			continue
		}
		if info, ok := c.nativeInfo(sym); ok && info.Arity >= 0 && argc != info.Arity {
			c.report(diag.Error, call.pos, "%s", errArgs(sym.Name, info.Arity, argc))
		}
	}
}

func errArgs(name string, want, got int) string {
	unit := "arguments"
	if want == 1 {
		unit = "argument"
	}
	return fmt.Sprintf("%s expects %d %s, got %d", name, want, unit, got)
}
