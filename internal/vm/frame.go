package vm

import "github.com/xirelogy/go-laye/internal/bytecode"

// FrameID names a frame in the arena. The low 32 bits are the slot and the
// high 32 bits its generation, so an id never matches a later occupant of
// the same slot. The zero id is never allocated.
type FrameID uint64

func makeFrameID(slot int, gen uint32) FrameID {
	return FrameID(uint64(gen)<<32 | uint64(slot+1))
}

func (id FrameID) slot() int { return int(uint32(id)) - 1 }

func (id FrameID) gen() uint32 { return uint32(id >> 32) }

type frame struct {
	id       FrameID
	parent   FrameID
	closure  *Closure
	receiver Value
	locals   []Value
	stack    []Value
	sp       int
	ip       int
	lastOp   int
	// refs counts the active call plus each open upvalue over a local.
	refs int
	open map[int]*Upvalue
}

func (fr *frame) proto() *bytecode.Prototype { return fr.closure.Proto }

func (fr *frame) push(v Value) {
	if fr.sp >= len(fr.stack) {
		panic(bytecode.Internalf("%s: operand stack overflow at %d (max %d)", fr.closure.Name(), fr.lastOp, len(fr.stack)))
	}
	fr.stack[fr.sp] = v
	fr.sp++
}

func (fr *frame) pop() Value {
	if fr.sp == 0 {
		panic(bytecode.Internalf("%s: operand stack underflow at %d", fr.closure.Name(), fr.lastOp))
	}
	fr.sp--
	v := fr.stack[fr.sp]
	fr.stack[fr.sp] = Value{}
	return v
}

func (fr *frame) peek() Value {
	if fr.sp == 0 {
		panic(bytecode.Internalf("%s: operand stack underflow at %d", fr.closure.Name(), fr.lastOp))
	}
	return fr.stack[fr.sp-1]
}

// popN removes the top n values and returns them in push order.
func (fr *frame) popN(n int) []Value {
	if fr.sp < n {
		panic(bytecode.Internalf("%s: operand stack underflow at %d", fr.closure.Name(), fr.lastOp))
	}
	out := make([]Value, n)
	copy(out, fr.stack[fr.sp-n:fr.sp])
	clear(fr.stack[fr.sp-n : fr.sp])
	fr.sp -= n
	return out
}

func (fr *frame) local(i int) *Value {
	if i < 0 || i >= len(fr.locals) {
		panic(bytecode.Internalf("%s: local slot %d out of range (max %d)", fr.closure.Name(), i, len(fr.locals)))
	}
	return &fr.locals[i]
}

// frameArena owns every frame of one VM. Frames are addressed by FrameID and
// recycled once their reference count drops to zero.
type frameArena struct {
	slots []*frame
	gens  []uint32
	free  []int
	live  int
}

func (a *frameArena) alloc(parent FrameID, c *Closure, receiver Value) *frame {
	var slot int
	if n := len(a.free); n > 0 {
		slot = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		slot = len(a.slots)
		a.slots = append(a.slots, nil)
		a.gens = append(a.gens, 0)
	}
	fr := a.slots[slot]
	if fr == nil {
		fr = &frame{}
		a.slots[slot] = fr
	}
	proto := c.Proto
	*fr = frame{
		id:       makeFrameID(slot, a.gens[slot]),
		parent:   parent,
		closure:  c,
		receiver: receiver,
		locals:   resize(fr.locals, proto.MaxLocals),
		stack:    resize(fr.stack, proto.MaxStack),
		lastOp:   -1,
		refs:     1,
	}
	a.live++
	return fr
}

// get returns the frame for id, or nil once it has been freed.
func (a *frameArena) get(id FrameID) *frame {
	slot := id.slot()
	if id == 0 || slot >= len(a.slots) || a.gens[slot] != id.gen() || a.slots[slot].refs == 0 {
		return nil
	}
	return a.slots[slot]
}

func (a *frameArena) retain(fr *frame) { fr.refs++ }

func (a *frameArena) release(fr *frame) {
	if fr.refs <= 0 {
		panic(bytecode.Internalf("release of dead frame %#x", uint64(fr.id)))
	}
	fr.refs--
	if fr.refs > 0 {
		return
	}
	slot := fr.id.slot()
	a.gens[slot]++
	clear(fr.locals)
	clear(fr.stack)
	fr.closure = nil
	fr.open = nil
	fr.receiver = Value{}
	a.free = append(a.free, slot)
	a.live--
}

// Live reports the number of frames still referenced.
func (a *frameArena) Live() int { return a.live }

func resize(buf []Value, n int) []Value {
	if cap(buf) >= n {
		buf = buf[:n]
		clear(buf)
		return buf
	}
	return make([]Value, n)
}
