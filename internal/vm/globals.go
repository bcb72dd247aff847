package vm

import (
	"errors"
	"fmt"
)

var (
	// ErrGlobalIndex is returned for a global slot outside the table.
	ErrGlobalIndex = errors.New("global index out of range")
	// ErrGlobalLayout is returned when a program's globals disagree with the
	// slots already defined.
	ErrGlobalLayout = errors.New("global layout mismatch")
)

// GlobalState holds global values by index. Slots are numbered in the order
// they are defined, matching the compiler's global numbering. A name may own
// several slots when a program shadows a global; lookups by name see the
// newest one.
type GlobalState struct {
	names  []string
	index  map[string]int
	values []Value
}

func NewGlobalState() *GlobalState {
	return &GlobalState{index: make(map[string]int)}
}

// Len reports the number of defined slots.
func (g *GlobalState) Len() int { return len(g.names) }

// Names returns slot names in index order.
func (g *GlobalState) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// IndexOf returns the slot of name.
func (g *GlobalState) IndexOf(name string) (int, bool) {
	i, ok := g.index[name]
	return i, ok
}

// Name returns the name of slot i.
func (g *GlobalState) Name(i int) string {
	if i < 0 || i >= len(g.names) {
		return ""
	}
	return g.names[i]
}

// Define returns the slot of name, appending a null slot if it is new.
func (g *GlobalState) Define(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	return g.add(name)
}

func (g *GlobalState) add(name string) int {
	i := len(g.names)
	g.names = append(g.names, name)
	g.values = append(g.values, Null())
	g.index[name] = i
	return i
}

func (g *GlobalState) Load(i int) (Value, error) {
	if i < 0 || i >= len(g.values) {
		return Null(), fmt.Errorf("load global %d: %w", i, ErrGlobalIndex)
	}
	return g.values[i], nil
}

func (g *GlobalState) Store(i int, v Value) error {
	if i < 0 || i >= len(g.values) {
		return fmt.Errorf("store global %d: %w", i, ErrGlobalIndex)
	}
	g.values[i] = v
	return nil
}

// LoadName returns the value bound to name.
func (g *GlobalState) LoadName(name string) (Value, bool) {
	i, ok := g.index[name]
	if !ok {
		return Null(), false
	}
	return g.values[i], true
}

// StoreName binds v to name, defining the slot if needed, and returns its index.
func (g *GlobalState) StoreName(name string, v Value) int {
	i := g.Define(name)
	g.values[i] = v
	return i
}

// Link prepares the table for a program whose global slots are named by
// names. Existing slots must agree with the program's prefix; every slot past
// it is added as null, even when its name repeats an earlier slot.
func (g *GlobalState) Link(names []string) error {
	for i, name := range names {
		if i < len(g.names) {
			if g.names[i] != name {
				return fmt.Errorf("global %d is %q, program expects %q: %w", i, g.names[i], name, ErrGlobalLayout)
			}
			continue
		}
		g.add(name)
	}
	return nil
}
