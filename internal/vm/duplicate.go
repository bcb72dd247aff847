package vm

// Duplicate returns a new VM with copied globals and configuration.
// Lists, closures and upvalues are deep-copied with sharing preserved, so
// two closures that shared a cell in vm share one cell in the duplicate.
// Upvalues still open in vm are closed over their current value, since the
// duplicate does not own vm's frames.
func (vm *VM) Duplicate() *VM {
	if vm == nil {
		return nil
	}
	dup := NewWithGlobals(vm.globals.cloneWith(newCloneState()))
	dup.maxFrames = vm.maxFrames
	dup.traceHook = vm.traceHook
	dup.instLimit = vm.instLimit
	dup.out = vm.out
	dup.logger = vm.logger
	return dup
}

// Clone returns a deep copy of the table with the same slot layout.
func (g *GlobalState) Clone() *GlobalState {
	return g.cloneWith(newCloneState())
}

func (g *GlobalState) cloneWith(cs *cloneState) *GlobalState {
	out := NewGlobalState()
	for i, name := range g.names {
		out.values[out.add(name)] = cs.cloneValue(g.values[i])
	}
	return out
}

type cloneState struct {
	lists    map[*List]*List
	closures map[*Closure]*Closure
	upvalues map[*Upvalue]*Upvalue
}

func newCloneState() *cloneState {
	return &cloneState{
		lists:    make(map[*List]*List),
		closures: make(map[*Closure]*Closure),
		upvalues: make(map[*Upvalue]*Upvalue),
	}
}

func (cs *cloneState) cloneValue(v Value) Value {
	switch v.Kind {
	case KindList:
		if v.List == nil {
			return v
		}
		return Value{Kind: KindList, List: cs.cloneList(v.List)}
	case KindClosure:
		if v.Closure == nil {
			return v
		}
		return closureValue(cs.cloneClosure(v.Closure))
	default:
		// natives and scalars are immutable
		return v
	}
}

func (cs *cloneState) cloneList(l *List) *List {
	if cloned, ok := cs.lists[l]; ok {
		return cloned
	}
	out := &List{Items: make([]Value, len(l.Items))}
	cs.lists[l] = out
	for i := range l.Items {
		out.Items[i] = cs.cloneValue(l.Items[i])
	}
	return out
}

func (cs *cloneState) cloneClosure(c *Closure) *Closure {
	if cloned, ok := cs.closures[c]; ok {
		return cloned
	}
	out := &Closure{Proto: c.Proto}
	cs.closures[c] = out
	if c.Upvalues != nil {
		out.Upvalues = make([]*Upvalue, len(c.Upvalues))
		for i, uv := range c.Upvalues {
			out.Upvalues[i] = cs.cloneUpvalue(uv)
		}
	}
	return out
}

func (cs *cloneState) cloneUpvalue(uv *Upvalue) *Upvalue {
	if uv == nil {
		return nil
	}
	if cloned, ok := cs.upvalues[uv]; ok {
		return cloned
	}
	out := &Upvalue{}
	cs.upvalues[uv] = out
	out.closed = cs.cloneValue(uv.get())
	return out
}
