package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/xirelogy/go-laye/internal/bytecode"
)

const (
	DefaultMaxFrames = 256
	// the context is polled at every call and every ctxCheckInterval instructions
	ctxCheckInterval = 1024
)

var (
	// ErrInstructionLimit is the cause of a RuntimeError raised when a run
	// exceeds its instruction budget.
	ErrInstructionLimit = errors.New("instruction limit exceeded")
	// ErrFrameLimit is the cause of a RuntimeError raised when calls nest
	// deeper than the frame limit.
	ErrFrameLimit = errors.New("call stack overflow")
	// ErrUndefinedGlobal is returned by Call for a name with no global slot.
	ErrUndefinedGlobal = errors.New("undefined global")
)

// VM is a stack-based bytecode interpreter. Each call runs in its own frame
// with fixed-size locals and operand stack; frames live in an arena so open
// upvalues can refer to them by id.
type VM struct {
	globals   *GlobalState
	arena     frameArena
	current   FrameID
	depth     int
	maxFrames int
	instLimit int
	instCount int
	traceHook TraceHook
	running   bool
	ctx       context.Context
	out       io.Writer
	logger    zerolog.Logger
}

// New constructs a VM with an empty global table.
func New() *VM {
	return NewWithGlobals(NewGlobalState())
}

// NewWithGlobals constructs a VM over an existing global table.
func NewWithGlobals(g *GlobalState) *VM {
	if g == nil {
		g = NewGlobalState()
	}
	return &VM{
		globals:   g,
		maxFrames: DefaultMaxFrames,
		ctx:       context.Background(),
		out:       os.Stdout,
		logger:    zerolog.Nop(),
	}
}

// Globals exposes the VM's global table.
func (vm *VM) Globals() *GlobalState { return vm.globals }

// SetTraceHook registers a callback for instruction-level tracing.
func (vm *VM) SetTraceHook(h TraceHook) {
	vm.traceHook = h
}

// SetInstructionLimit caps the number of instructions executed per top-level
// invocation (0 for unlimited).
func (vm *VM) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	vm.instLimit = limit
}

// SetMaxFrames caps call nesting. Values below one select the default.
func (vm *VM) SetMaxFrames(n int) {
	if n < 1 {
		n = DefaultMaxFrames
	}
	vm.maxFrames = n
}

// SetOutput directs script output such as Print.
func (vm *VM) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	vm.out = w
}

// Output returns the writer script output goes to.
func (vm *VM) Output() io.Writer { return vm.out }

func (vm *VM) SetLogger(l zerolog.Logger) { vm.logger = l }

// LiveFrames reports how many frames are still referenced, including frames
// kept alive by open upvalues.
func (vm *VM) LiveFrames() int { return vm.arena.Live() }

// DefineNative binds a host function to a global name.
func (vm *VM) DefineNative(name string, arity int, fn NativeFunc) int {
	return vm.globals.StoreName(name, NativeValue(name, arity, fn))
}

// Run links prog's globals and executes its top level once.
func (vm *VM) Run(ctx context.Context, prog *bytecode.Program) (Value, error) {
	if prog == nil || prog.Main == nil {
		return Null(), fmt.Errorf("run: nil program")
	}
	if len(prog.Main.Upvalues) > 0 {
		return Null(), fmt.Errorf("run %s: %w", prog.Name, bytecode.Internalf("top level captures %d upvalues", len(prog.Main.Upvalues)))
	}
	if err := vm.globals.Link(prog.Globals); err != nil {
		return Null(), fmt.Errorf("run %s: %w", prog.Name, err)
	}
	return vm.Invoke(ctx, closureValue(&Closure{Proto: prog.Main}), Null(), nil)
}

// Call invokes a global by name.
func (vm *VM) Call(ctx context.Context, name string, args ...Value) (Value, error) {
	callee, ok := vm.globals.LoadName(name)
	if !ok {
		return Null(), fmt.Errorf("call %s: %w", name, ErrUndefinedGlobal)
	}
	return vm.Invoke(ctx, callee, Null(), args)
}

// Invoke calls callee with receiver and args. At top level it resets the
// instruction budget and converts internal failures into errors; from inside
// a native it re-enters the running VM.
func (vm *VM) Invoke(ctx context.Context, callee, receiver Value, args []Value) (result Value, err error) {
	if vm.running {
		return vm.invoke(callee, receiver, args)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	vm.ctx = ctx
	vm.running = true
	vm.instCount = 0
	vm.current = 0
	vm.depth = 0
	start := time.Now()
	vm.logger.Debug().Str("callee", calleeName(callee)).Int("args", len(args)).Msg("invoke")

	defer func() {
		vm.running = false
		vm.current = 0
		vm.depth = 0
		vm.ctx = context.Background()
		if r := recover(); r != nil {
			ie, ok := r.(*bytecode.InternalError)
			if !ok {
				panic(r)
			}
			result = Null()
			err = fmt.Errorf("invoke %s: %w", calleeName(callee), ie)
		}
		if err != nil {
			vm.logger.Error().Err(err).Str("callee", calleeName(callee)).Msg("invoke failed")
			return
		}
		vm.logger.Debug().
			Str("callee", calleeName(callee)).
			Int("instructions", vm.instCount).
			Dur("elapsed", time.Since(start)).
			Msg("invoke done")
	}()

	return vm.invoke(callee, receiver, args)
}

// CallValue invokes callee from inside a native function.
func (vm *VM) CallValue(callee Value, args ...Value) (Value, error) {
	return vm.Invoke(vm.ctx, callee, Null(), args)
}

func (vm *VM) invoke(callee, receiver Value, args []Value) (Value, error) {
	switch callee.Kind {
	case KindClosure:
		return vm.callClosure(callee.Closure, receiver, args)
	case KindNative:
		return vm.callNative(callee.Native, args)
	default:
		return Null(), vm.raise(vm.currentFrame(), nil, "attempt to invoke type %s.", callee.Kind)
	}
}

func (vm *VM) callNative(n *Native, args []Value) (Value, error) {
	fr := vm.currentFrame()
	if n.Arity >= 0 && len(args) != n.Arity {
		return Null(), vm.raise(fr, nil, "%s expects %d argument(s), got %d.", n.Name, n.Arity, len(args))
	}
	v, err := n.Fn(vm, args)
	if err != nil {
		return Null(), vm.wrapError(fr, err)
	}
	return v, nil
}

func (vm *VM) callClosure(c *Closure, receiver Value, args []Value) (Value, error) {
	parent := vm.currentFrame()
	if c == nil || c.Proto == nil || c.Proto.Chunk == nil {
		panic(bytecode.Internalf("invoke of closure without prototype"))
	}
	if vm.depth >= vm.maxFrames {
		return Null(), vm.raise(parent, ErrFrameLimit, "call stack overflow (depth %d).", vm.depth)
	}
	if err := vm.ctx.Err(); err != nil {
		return Null(), vm.raise(parent, err, "%s", err.Error())
	}

	fr := vm.arena.alloc(vm.current, c, receiver)
	bindArgs(fr, args)
	saved := vm.current
	vm.current = fr.id
	vm.depth++
	defer func() {
		vm.current = saved
		vm.depth--
		vm.arena.release(fr)
	}()
	return vm.execute(fr)
}

// bindArgs copies args into the parameter slots. Missing parameters stay
// null. A variadic function receives its excess arguments as a list in the
// last parameter; a fixed-arity function drops them.
func bindArgs(fr *frame, args []Value) {
	proto := fr.proto()
	n := min(proto.NumParams, len(fr.locals))
	if proto.Variadic && n > 0 {
		fixed := n - 1
		copy(fr.locals[:fixed], args)
		var rest []Value
		if len(args) > fixed {
			rest = append(rest, args[fixed:]...)
		}
		fr.locals[fixed] = NewList(rest...)
		return
	}
	copy(fr.locals[:n], args)
}

func (vm *VM) currentFrame() *frame {
	return vm.arena.get(vm.current)
}

// execute runs fr until its code ends, it returns, or an error unwinds it. The
// result is the top of the operand stack, or null if it is empty.
func (vm *VM) execute(fr *frame) (Value, error) {
	proto := fr.proto()
	code := proto.Chunk.Code
	consts := proto.Chunk.Consts

	for fr.ip < len(code) {
		ins := code[fr.ip]
		fr.lastOp = fr.ip
		fr.ip++
		vm.instCount++
		if vm.instLimit > 0 && vm.instCount > vm.instLimit {
			return Null(), vm.raise(fr, ErrInstructionLimit, "instruction limit exceeded (%d).", vm.instLimit)
		}
		if vm.instCount%ctxCheckInterval == 0 {
			if err := vm.ctx.Err(); err != nil {
				return Null(), vm.raise(fr, err, "%s", err.Error())
			}
		}
		op := ins.Op()
		vm.trace(fr, op)

		switch op {
		case bytecode.OP_CLOSE_UP_VALUES:
			vm.closeUpvalues(fr, ins.A())
		case bytecode.OP_POP:
			fr.pop()
		case bytecode.OP_DUP:
			fr.push(fr.peek())
		case bytecode.OP_LOAD_LOCAL:
			fr.push(*fr.local(ins.A()))
		case bytecode.OP_STORE_LOCAL:
			*fr.local(ins.A()) = fr.pop()
		case bytecode.OP_LOAD_GLOBAL:
			v, err := vm.globals.Load(ins.A())
			if err != nil {
				panic(bytecode.Internalf("%s: %v", proto.Name, err))
			}
			fr.push(v)
		case bytecode.OP_STORE_GLOBAL:
			if err := vm.globals.Store(ins.A(), fr.pop()); err != nil {
				panic(bytecode.Internalf("%s: %v", proto.Name, err))
			}
		case bytecode.OP_LOAD_UPVAL:
			fr.push(upvalueAt(fr, ins.A()).get())
		case bytecode.OP_STORE_UPVAL:
			upvalueAt(fr, ins.A()).set(fr.pop())
		case bytecode.OP_LOAD_INDEX:
			index := fr.pop()
			target := fr.pop()
			v, err := indexGet(target, index)
			if err != nil {
				return Null(), vm.wrapError(fr, err)
			}
			fr.push(v)
		case bytecode.OP_STORE_INDEX:
			val := fr.pop()
			index := fr.pop()
			target := fr.pop()
			if err := indexSet(target, index, val); err != nil {
				return Null(), vm.wrapError(fr, err)
			}
			fr.push(val)
		case bytecode.OP_LOAD_BOOL:
			fr.push(Bool(ins.A() != 0))
		case bytecode.OP_LOAD_NULL:
			fr.push(Null())
		case bytecode.OP_LOAD_CONST:
			v, ok := constToValue(constantAt(proto, consts, ins.A()))
			if !ok {
				panic(bytecode.Internalf("%s: constant %d is not a value", proto.Name, ins.A()))
			}
			fr.push(v)
		case bytecode.OP_BUILD_CLOSURE:
			fr.push(closureValue(vm.buildClosure(fr, ins.A())))
		case bytecode.OP_PREFIX:
			v, err := Prefix(operatorAt(proto, consts, ins.A()), fr.pop())
			if err != nil {
				return Null(), vm.wrapError(fr, err)
			}
			fr.push(v)
		case bytecode.OP_POSTFIX:
			v, err := Postfix(operatorAt(proto, consts, ins.A()), fr.pop())
			if err != nil {
				return Null(), vm.wrapError(fr, err)
			}
			fr.push(v)
		case bytecode.OP_INFIX:
			right := fr.pop()
			left := fr.pop()
			v, err := Infix(operatorAt(proto, consts, ins.A()), left, right)
			if err != nil {
				return Null(), vm.wrapError(fr, err)
			}
			fr.push(v)
		case bytecode.OP_TYPEOF:
			fr.push(String(fr.pop().Kind.String()))
		case bytecode.OP_XOR:
			b := fr.pop()
			a := fr.pop()
			fr.push(Bool(Truthy(a) != Truthy(b)))
		case bytecode.OP_TEST:
			if Truthy(fr.pop()) == (ins.B() != 0) {
				jump(fr, len(code), ins.A())
			}
		case bytecode.OP_JUMP:
			jump(fr, len(code), ins.A())
		case bytecode.OP_INVOKE:
			args := fr.popN(ins.B())
			callee := fr.pop()
			res, err := vm.invoke(callee, Null(), args)
			if err != nil {
				return Null(), err
			}
			fr.push(res)
		case bytecode.OP_RETURN:
			v := fr.pop()
			if ins.B() != 0 {
				vm.closeUpvalues(fr, 0)
			}
			return v, nil
		case bytecode.OP_LIST:
			fr.push(NewList(fr.popN(ins.A())...))
		default:
			if info, ok := op.Info(); ok && info.Reserved {
				panic(bytecode.Internalf("%s: reserved opcode %s at %d", proto.Name, op, fr.lastOp))
			}
			panic(bytecode.Internalf("%s: unknown opcode %s at %d", proto.Name, op, fr.lastOp))
		}
	}

	if fr.sp > 0 {
		return fr.peek(), nil
	}
	return Null(), nil
}

func (vm *VM) buildClosure(fr *frame, idx int) *Closure {
	nested := fr.proto().Nested
	if idx < 0 || idx >= len(nested) {
		panic(bytecode.Internalf("%s: nested prototype %d out of range", fr.closure.Name(), idx))
	}
	proto := nested[idx]
	c := &Closure{Proto: proto, Frame: fr.id}
	if len(proto.Upvalues) > 0 {
		c.Upvalues = make([]*Upvalue, len(proto.Upvalues))
		for i, desc := range proto.Upvalues {
			if desc.IsLocal {
				c.Upvalues[i] = vm.captureUpvalue(fr, desc.Index)
			} else {
				c.Upvalues[i] = upvalueAt(fr, desc.Index)
			}
		}
	}
	return c
}

func upvalueAt(fr *frame, i int) *Upvalue {
	ups := fr.closure.Upvalues
	if i < 0 || i >= len(ups) {
		panic(bytecode.Internalf("%s: upvalue %d out of range", fr.closure.Name(), i))
	}
	return ups[i]
}

func constantAt(proto *bytecode.Prototype, consts []bytecode.Constant, i int) bytecode.Constant {
	if i < 0 || i >= len(consts) {
		panic(bytecode.Internalf("%s: constant %d out of range", proto.Name, i))
	}
	return consts[i]
}

func operatorAt(proto *bytecode.Prototype, consts []bytecode.Constant, i int) string {
	c := constantAt(proto, consts, i)
	if c.Kind != bytecode.ConstOperator {
		panic(bytecode.Internalf("%s: constant %d is not an operator", proto.Name, i))
	}
	return c.Str
}

func jump(fr *frame, size, target int) {
	if target < 0 || target > size {
		panic(bytecode.Internalf("%s: jump target %d out of range", fr.closure.Name(), target))
	}
	fr.ip = target
}

func calleeName(v Value) string {
	switch v.Kind {
	case KindClosure:
		return v.Closure.Name()
	case KindNative:
		return v.Native.Name
	default:
		return v.Kind.String()
	}
}
