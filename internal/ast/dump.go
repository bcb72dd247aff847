package ast

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dump writes an indented outline of n to w, one node per line with its
// source position.
func Dump(w io.Writer, n Node) error {
	d := &dumper{w: w}
	d.node("", n)
	return d.err
}

type dumper struct {
	w     io.Writer
	depth int
	err   error
}

func (d *dumper) line(label, text string, n Node) {
	if d.err != nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(strings.Repeat("  ", d.depth))
	if label != "" {
		sb.WriteString(label)
		sb.WriteString(": ")
	}
	sb.WriteString(text)
	if n != nil {
		if pos := n.Pos(); pos.Line > 0 {
			fmt.Fprintf(&sb, " @%d:%d", pos.Line, pos.Column)
		}
	}
	sb.WriteByte('\n')
	_, d.err = io.WriteString(d.w, sb.String())
}

func (d *dumper) children(label string, nodes []Node) {
	for i, c := range nodes {
		name := strconv.Itoa(i)
		if label != "" {
			name = label + "[" + name + "]"
		}
		d.node(name, c)
	}
}

func (d *dumper) node(label string, n Node) {
	if n == nil {
		d.line(label, "<none>", nil)
		return
	}
	head := n.Kind().String()
	switch n := n.(type) {
	case *Program:
		d.line(label, head, nil)
		d.nest(func() { d.children("", n.Items) })
	case *Block:
		d.line(label, head, n)
		d.nest(func() { d.children("", n.Items) })
	case *VarDef:
		d.line(label, head+" "+n.Name, n)
		if n.Value != nil {
			d.nest(func() { d.node("value", n.Value) })
		}
	case *FuncDef:
		d.line(label, head+" "+n.Name+signature(&n.Function), n)
		d.nest(func() { d.node("body", n.Body) })
	case *FuncExpr:
		d.line(label, head+signature(&n.Function), n)
		d.nest(func() { d.node("body", n.Body) })
	case *Extern:
		d.line(label, head+" "+n.Name, n)
	case *Ident:
		d.line(label, head+" "+n.Name, n)
	case *IntLit:
		d.line(label, head+" "+strconv.FormatInt(n.Value, 10), n)
	case *FloatLit:
		d.line(label, head+" "+strconv.FormatFloat(n.Value, 'g', -1, 64), n)
	case *StringLit:
		d.line(label, head+" "+strconv.Quote(n.Value), n)
	case *BoolLit:
		d.line(label, head+" "+strconv.FormatBool(n.Value), n)
	case *NullLit:
		d.line(label, head, n)
	case *Infix:
		d.line(label, head+" "+n.Operator, n)
		d.nest(func() {
			d.node("left", n.Left)
			d.node("right", n.Right)
		})
	case *Prefix:
		d.line(label, head+" "+n.Operator, n)
		d.nest(func() { d.node("operand", n.Right) })
	case *Postfix:
		d.line(label, head+" "+n.Operator, n)
		d.nest(func() { d.node("operand", n.Left) })
	case *Call:
		d.line(label, head, n)
		d.nest(func() {
			d.node("target", n.Target)
			d.children("arg", n.Arguments)
		})
	case *Assign:
		d.line(label, head, n)
		d.nest(func() {
			d.node("target", n.Target)
			d.node("value", n.Value)
		})
	case *If:
		d.line(label, head, n)
		d.nest(func() {
			d.node("cond", n.Condition)
			d.node("then", n.Then)
			if n.Else != nil {
				d.node("else", n.Else)
			}
		})
	case *While:
		d.line(label, head, n)
		d.nest(func() {
			d.node("cond", n.Condition)
			d.node("body", n.Body)
		})
	case *Return:
		d.line(label, head, n)
		if n.Value != nil {
			d.nest(func() { d.node("value", n.Value) })
		}
	case *List:
		d.line(label, head, n)
		d.nest(func() { d.children("", n.Elements) })
	case *Index:
		d.line(label, head, n)
		d.nest(func() {
			d.node("target", n.Target)
			d.node("index", n.Index)
		})
	case *TypeOf:
		d.line(label, head, n)
		d.nest(func() { d.node("operand", n.Operand) })
	default:
		d.line(label, fmt.Sprintf("%s (%T)", head, n), n)
	}
}

func (d *dumper) nest(fn func()) {
	d.depth++
	fn()
	d.depth--
}

func signature(fn *Function) string {
	names := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		names[i] = p.Name
	}
	if fn.Variadic && len(names) > 0 {
		names[len(names)-1] += ".."
	}
	return "(" + strings.Join(names, ", ") + ")"
}
