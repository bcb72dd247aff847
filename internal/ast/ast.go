package ast

import "github.com/xirelogy/go-laye/internal/token"

// Kind enumerates every node shape the parser produces. The set is closed:
// consumers switch over it instead of type-asserting open interfaces.
type Kind int

const (
	KindProgram Kind = iota
	KindBlock
	KindVarDef
	KindFuncDef
	KindFuncExpr
	KindExtern
	KindIdent
	KindIntLit
	KindFloatLit
	KindStringLit
	KindBoolLit
	KindNullLit
	KindInfix
	KindPrefix
	KindPostfix
	KindCall
	KindAssign
	KindIf
	KindWhile
	KindReturn
	KindList
	KindIndex
	KindTypeOf
)

var kindNames = [...]string{
	KindProgram:   "Program",
	KindBlock:     "Block",
	KindVarDef:    "VarDef",
	KindFuncDef:   "FuncDef",
	KindFuncExpr:  "FuncExpr",
	KindExtern:    "Extern",
	KindIdent:     "Ident",
	KindIntLit:    "IntLit",
	KindFloatLit:  "FloatLit",
	KindStringLit: "StringLit",
	KindBoolLit:   "BoolLit",
	KindNullLit:   "NullLit",
	KindInfix:     "Infix",
	KindPrefix:    "Prefix",
	KindPostfix:   "Postfix",
	KindCall:      "Call",
	KindAssign:    "Assign",
	KindIf:        "If",
	KindWhile:     "While",
	KindReturn:    "Return",
	KindList:      "List",
	KindIndex:     "Index",
	KindTypeOf:    "TypeOf",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Node represents any AST node.
type Node interface {
	Kind() Kind
	Pos() token.Position
	Span() token.Span
}

// Program is the root node.
type Program struct {
	Items    []Node
	NodeSpan token.Span
}

func (p *Program) Kind() Kind { return KindProgram }
func (p *Program) Pos() token.Position {
	if len(p.Items) == 0 {
		return token.Position{}
	}
	return p.Items[0].Pos()
}
func (p *Program) Span() token.Span { return p.NodeSpan }

// Block is a braced sequence of items. Its value is the value of the last item.
type Block struct {
	LBrace    token.Position
	Items     []Node
	BlockSpan token.Span
}

func (b *Block) Kind() Kind          { return KindBlock }
func (b *Block) Pos() token.Position { return b.LBrace }
func (b *Block) Span() token.Span    { return b.BlockSpan }

type VarDef struct {
	VarPos  token.Position
	Name    string
	NamePos token.Position
	Value   Node // nil when no initializer
	Sp      token.Span
}

func (v *VarDef) Kind() Kind          { return KindVarDef }
func (v *VarDef) Pos() token.Position { return v.VarPos }
func (v *VarDef) Span() token.Span    { return v.Sp }

// Param is one declared parameter.
type Param struct {
	Name string
	Pos  token.Position
}

// Function carries the shape shared by definitions and literals.
type Function struct {
	FnPos    token.Position
	Name     string
	NamePos  token.Position
	Params   []Param
	Variadic bool
	Body     Node
	Sp       token.Span
}

// FuncDef is a named top-level or block-level function declaration.
type FuncDef struct {
	Function
}

func (f *FuncDef) Kind() Kind          { return KindFuncDef }
func (f *FuncDef) Pos() token.Position { return f.FnPos }
func (f *FuncDef) Span() token.Span    { return f.Sp }

// FuncExpr is an anonymous function literal.
type FuncExpr struct {
	Function
}

func (f *FuncExpr) Kind() Kind          { return KindFuncExpr }
func (f *FuncExpr) Pos() token.Position { return f.FnPos }
func (f *FuncExpr) Span() token.Span    { return f.Sp }

type Extern struct {
	ExternPos token.Position
	Name      string
	Sp        token.Span
}

func (e *Extern) Kind() Kind          { return KindExtern }
func (e *Extern) Pos() token.Position { return e.ExternPos }
func (e *Extern) Span() token.Span    { return e.Sp }

type Ident struct {
	Name string
	PosT token.Position
	Sp   token.Span
}

func (i *Ident) Kind() Kind          { return KindIdent }
func (i *Ident) Pos() token.Position { return i.PosT }
func (i *Ident) Span() token.Span    { return i.Sp }

type IntLit struct {
	Value int64
	PosT  token.Position
	Sp    token.Span
}

func (i *IntLit) Kind() Kind          { return KindIntLit }
func (i *IntLit) Pos() token.Position { return i.PosT }
func (i *IntLit) Span() token.Span    { return i.Sp }

type FloatLit struct {
	Value float64
	PosT  token.Position
	Sp    token.Span
}

func (f *FloatLit) Kind() Kind          { return KindFloatLit }
func (f *FloatLit) Pos() token.Position { return f.PosT }
func (f *FloatLit) Span() token.Span    { return f.Sp }

type StringLit struct {
	Value string
	PosT  token.Position
	Sp    token.Span
}

func (s *StringLit) Kind() Kind          { return KindStringLit }
func (s *StringLit) Pos() token.Position { return s.PosT }
func (s *StringLit) Span() token.Span    { return s.Sp }

type BoolLit struct {
	Value bool
	PosT  token.Position
	Sp    token.Span
}

func (b *BoolLit) Kind() Kind          { return KindBoolLit }
func (b *BoolLit) Pos() token.Position { return b.PosT }
func (b *BoolLit) Span() token.Span    { return b.Sp }

type NullLit struct {
	PosT token.Position
	Sp   token.Span
}

func (n *NullLit) Kind() Kind          { return KindNullLit }
func (n *NullLit) Pos() token.Position { return n.PosT }
func (n *NullLit) Span() token.Span    { return n.Sp }

// Infix is a binary operation. Operator holds the operator spelling or one of
// the keywords "and", "or", "xor".
type Infix struct {
	Left     Node
	Operator string
	Right    Node
	PosT     token.Position
	Sp       token.Span
}

func (i *Infix) Kind() Kind          { return KindInfix }
func (i *Infix) Pos() token.Position { return i.PosT }
func (i *Infix) Span() token.Span    { return i.Sp }

type Prefix struct {
	Operator string
	Right    Node
	PosT     token.Position
	Sp       token.Span
}

func (p *Prefix) Kind() Kind          { return KindPrefix }
func (p *Prefix) Pos() token.Position { return p.PosT }
func (p *Prefix) Span() token.Span    { return p.Sp }

type Postfix struct {
	Left     Node
	Operator string
	PosT     token.Position
	Sp       token.Span
}

func (p *Postfix) Kind() Kind          { return KindPostfix }
func (p *Postfix) Pos() token.Position { return p.PosT }
func (p *Postfix) Span() token.Span    { return p.Sp }

type Call struct {
	Target    Node
	Arguments []Node
	PosT      token.Position
	Sp        token.Span
}

func (c *Call) Kind() Kind          { return KindCall }
func (c *Call) Pos() token.Position { return c.PosT }
func (c *Call) Span() token.Span    { return c.Sp }

// Assign stores Value into Target, which is an Ident or an Index.
type Assign struct {
	Target Node
	Value  Node
	PosT   token.Position
	Sp     token.Span
}

func (a *Assign) Kind() Kind          { return KindAssign }
func (a *Assign) Pos() token.Position { return a.PosT }
func (a *Assign) Span() token.Span    { return a.Sp }

type If struct {
	IfPos     token.Position
	Condition Node
	Then      Node
	Else      Node // nil when absent
	Sp        token.Span
}

func (i *If) Kind() Kind          { return KindIf }
func (i *If) Pos() token.Position { return i.IfPos }
func (i *If) Span() token.Span    { return i.Sp }

type While struct {
	WhilePos  token.Position
	Condition Node
	Body      Node
	Sp        token.Span
}

func (w *While) Kind() Kind          { return KindWhile }
func (w *While) Pos() token.Position { return w.WhilePos }
func (w *While) Span() token.Span    { return w.Sp }

type Return struct {
	RetPos token.Position
	Value  Node // nil for a bare ret
	Sp     token.Span
}

func (r *Return) Kind() Kind          { return KindReturn }
func (r *Return) Pos() token.Position { return r.RetPos }
func (r *Return) Span() token.Span    { return r.Sp }

type List struct {
	Elements []Node
	PosT     token.Position
	Sp       token.Span
}

func (l *List) Kind() Kind          { return KindList }
func (l *List) Pos() token.Position { return l.PosT }
func (l *List) Span() token.Span    { return l.Sp }

type Index struct {
	Target Node
	Index  Node
	PosT   token.Position
	Sp     token.Span
}

func (i *Index) Kind() Kind          { return KindIndex }
func (i *Index) Pos() token.Position { return i.PosT }
func (i *Index) Span() token.Span    { return i.Sp }

type TypeOf struct {
	Operand Node
	PosT    token.Position
	Sp      token.Span
}

func (t *TypeOf) Kind() Kind          { return KindTypeOf }
func (t *TypeOf) Pos() token.Position { return t.PosT }
func (t *TypeOf) Span() token.Span    { return t.Sp }

// IsDeclaration reports whether n introduces a name rather than producing a value.
func IsDeclaration(n Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind() {
	case KindVarDef, KindFuncDef, KindExtern:
		return true
	default:
		return false
	}
}
