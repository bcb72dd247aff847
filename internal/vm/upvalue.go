package vm

import "github.com/xirelogy/go-laye/internal/bytecode"

// Upvalue is a captured variable slot. While open it names a local of a
// live frame; after close it holds the value itself. The transition happens
// once, when the owning frame executes CLOSE_UP_VALUES or a closing RETURN.
type Upvalue struct {
	arena  *frameArena
	frame  FrameID
	slot   int
	open   bool
	closed Value
}

// IsOpen reports whether the upvalue still refers to its frame's slot.
func (uv *Upvalue) IsOpen() bool { return uv != nil && uv.open }

func (uv *Upvalue) location() *Value {
	fr := uv.arena.get(uv.frame)
	if fr == nil {
		panic(bytecode.Internalf("open upvalue over freed frame %#x slot %d", uint64(uv.frame), uv.slot))
	}
	return fr.local(uv.slot)
}

func (uv *Upvalue) get() Value {
	if uv == nil {
		return Null()
	}
	if uv.open {
		return *uv.location()
	}
	return uv.closed
}

func (uv *Upvalue) set(v Value) {
	if uv == nil {
		return
	}
	if uv.open {
		*uv.location() = v
		return
	}
	uv.closed = v
}

func (uv *Upvalue) close(fr *frame) {
	if !uv.open {
		return
	}
	arena := uv.arena
	uv.closed = *fr.local(uv.slot)
	uv.open = false
	uv.arena = nil
	arena.release(fr)
}

// captureUpvalue returns the frame's upvalue for slot, creating it on first
// capture. Closures capturing the same slot share one Upvalue.
func (vm *VM) captureUpvalue(fr *frame, slot int) *Upvalue {
	if uv, ok := fr.open[slot]; ok {
		return uv
	}
	fr.local(slot)
	uv := &Upvalue{arena: &vm.arena, frame: fr.id, slot: slot, open: true}
	if fr.open == nil {
		fr.open = make(map[int]*Upvalue)
	}
	fr.open[slot] = uv
	vm.arena.retain(fr)
	return uv
}

// closeUpvalues closes every open upvalue of fr whose slot is at least from.
func (vm *VM) closeUpvalues(fr *frame, from int) {
	for slot, uv := range fr.open {
		if slot < from {
			continue
		}
		delete(fr.open, slot)
		uv.close(fr)
	}
}
