package symbol

import (
	"errors"
	"fmt"
)

// Class is the storage class of a resolved name.
type Class int

const (
	Global Class = iota
	Local
	Upvalue
)

func (c Class) String() string {
	switch c {
	case Global:
		return "global"
	case Local:
		return "local"
	case Upvalue:
		return "upvalue"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Symbol is an immutable resolution result.
type Symbol struct {
	Class Class
	Name  string
	Index int
}

// Capture describes where a function's upvalue comes from: a local slot of the
// directly enclosing function (IsLocal) or one of that function's own upvalues.
type Capture struct {
	Name    string
	IsLocal bool
	Index   int
}

// FunctionInfo summarises a finished function scope.
type FunctionInfo struct {
	Upvalues  []Capture
	MaxLocals int
	// Captured reports whether any local of the function was captured by a
	// nested function.
	Captured bool
}

// ErrDuplicate is returned when a name is declared twice in one scope.
var ErrDuplicate = errors.New("duplicate declaration")

type entry struct {
	sym      Symbol
	fn       *function
	captured bool
}

type function struct {
	parent    *function
	nextLocal int
	maxLocals int
	upvalues  []Capture
	upByEntry map[*entry]int
	captured  bool
}

// Scope is one node in the lexical scope tree.
type Scope struct {
	parent   *Scope
	fn       *function
	symbols  map[string]*entry
	entries  []*entry
	children []*Scope
	base     int
	isEntry  bool
}

// Table assigns storage classes and indices to names.
type Table struct {
	root    *Scope
	current *Scope
	globals []string
}

// NewTable creates a table whose global scope already holds predeclared, in
// order. A repeated name takes a slot of its own and shadows the earlier one.
func NewTable(predeclared ...string) *Table {
	top := &function{upByEntry: make(map[*entry]int)}
	root := &Scope{fn: top, symbols: make(map[string]*entry), isEntry: true}
	t := &Table{root: root, current: root}
	for _, name := range predeclared {
		t.declare(name)
	}
	return t
}

// AddSymbol declares name in the current scope. On a duplicate the existing
// symbol is returned together with ErrDuplicate.
func (t *Table) AddSymbol(name string) (Symbol, error) {
	if e, ok := t.current.symbols[name]; ok {
		return e.sym, ErrDuplicate
	}
	return t.declare(name), nil
}

// Shadow declares name in the current scope even if it already exists there.
// Later lookups see the new symbol.
func (t *Table) Shadow(name string) Symbol {
	return t.declare(name)
}

func (t *Table) declare(name string) Symbol {
	s := t.current
	e := &entry{fn: s.fn}
	if s == t.root {
		e.sym = Symbol{Class: Global, Name: name, Index: len(t.globals)}
		t.globals = append(t.globals, name)
	} else {
		fn := s.fn
		e.sym = Symbol{Class: Local, Name: name, Index: fn.nextLocal}
		fn.nextLocal++
		if fn.nextLocal > fn.maxLocals {
			fn.maxLocals = fn.nextLocal
		}
	}
	s.symbols[name] = e
	s.entries = append(s.entries, e)
	return e.sym
}

// GetSymbol resolves name from the current scope outward. Names declared in an
// enclosing function are promoted to upvalues of the current function.
func (t *Table) GetSymbol(name string) (Symbol, bool) {
	e, ok := t.lookup(name)
	if !ok {
		return Symbol{}, false
	}
	if e.sym.Class == Global || e.fn == t.current.fn {
		return e.sym, true
	}
	idx := t.current.fn.resolveUpvalue(e)
	return Symbol{Class: Upvalue, Name: name, Index: idx}, true
}

// IsSymbolDefined reports whether name resolves, without promoting it.
func (t *Table) IsSymbolDefined(name string) bool {
	_, ok := t.lookup(name)
	return ok
}

// DefinedInCurrentScope reports whether name is declared directly in the current scope.
func (t *Table) DefinedInCurrentScope(name string) bool {
	_, ok := t.current.symbols[name]
	return ok
}

func (t *Table) lookup(name string) (*entry, bool) {
	for s := t.current; s != nil; s = s.parent {
		if e, ok := s.symbols[name]; ok {
			return e, true
		}
	}
	return nil, false
}

// resolveUpvalue records e as an upvalue of fn, threading it through every
// function between the declaring one and fn. Descriptors are added outermost
// first and reused on repeated resolution.
func (fn *function) resolveUpvalue(e *entry) int {
	if idx, ok := fn.upByEntry[e]; ok {
		return idx
	}
	var c Capture
	if fn.parent == e.fn {
		e.captured = true
		e.fn.captured = true
		c = Capture{Name: e.sym.Name, IsLocal: true, Index: e.sym.Index}
	} else {
		c = Capture{Name: e.sym.Name, IsLocal: false, Index: fn.parent.resolveUpvalue(e)}
	}
	idx := len(fn.upvalues)
	fn.upvalues = append(fn.upvalues, c)
	fn.upByEntry[e] = idx
	return idx
}

// BeginScope opens a block scope in the current function.
func (t *Table) BeginScope() {
	t.push(&Scope{
		parent:  t.current,
		fn:      t.current.fn,
		symbols: make(map[string]*entry),
		base:    t.current.fn.nextLocal,
	})
}

// EndScope closes the current block scope and releases its slots. It returns
// the first released slot and whether any released local was captured.
func (t *Table) EndScope() (base int, captured bool) {
	s := t.current
	if s.isEntry {
		panic("symbol: EndScope called on a function scope")
	}
	for _, e := range s.entries {
		if e.captured {
			captured = true
			break
		}
	}
	s.fn.nextLocal = s.base
	t.current = s.parent
	return s.base, captured
}

// BeginFunctionScope opens the entry scope of a nested function with a fresh
// slot space.
func (t *Table) BeginFunctionScope() {
	fn := &function{parent: t.current.fn, upByEntry: make(map[*entry]int)}
	t.push(&Scope{
		parent:  t.current,
		fn:      fn,
		symbols: make(map[string]*entry),
		isEntry: true,
	})
}

// EndFunctionScope closes the current function scope and restores the
// enclosing function's slot space.
func (t *Table) EndFunctionScope() FunctionInfo {
	s := t.current
	if !s.isEntry || s == t.root {
		panic("symbol: EndFunctionScope called outside a function scope")
	}
	t.current = s.parent
	return s.fn.info()
}

// RootInfo summarises the top-level function.
func (t *Table) RootInfo() FunctionInfo {
	return t.root.fn.info()
}

func (fn *function) info() FunctionInfo {
	ups := make([]Capture, len(fn.upvalues))
	copy(ups, fn.upvalues)
	return FunctionInfo{Upvalues: ups, MaxLocals: fn.maxLocals, Captured: fn.captured}
}

// AtGlobalScope reports whether declarations currently produce globals.
func (t *Table) AtGlobalScope() bool {
	return t.current == t.root
}

// Globals returns global names in index order.
func (t *Table) Globals() []string {
	out := make([]string, len(t.globals))
	copy(out, t.globals)
	return out
}

// LocalCount reports the current high-water mark of the current function.
func (t *Table) LocalCount() int {
	return t.current.fn.nextLocal
}

func (t *Table) push(s *Scope) {
	t.current.children = append(t.current.children, s)
	t.current = s
}
