package laye

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	_ "github.com/xirelogy/go-laye/internal/builtins"
	"github.com/xirelogy/go-laye/internal/bytecode"
	"github.com/xirelogy/go-laye/internal/cache"
	"github.com/xirelogy/go-laye/internal/compiler"
	"github.com/xirelogy/go-laye/internal/config"
	"github.com/xirelogy/go-laye/internal/diag"
	"github.com/xirelogy/go-laye/internal/intern"
	"github.com/xirelogy/go-laye/internal/lexer"
	"github.com/xirelogy/go-laye/internal/parser"
	"github.com/xirelogy/go-laye/internal/runtime"
	"github.com/xirelogy/go-laye/internal/vm"
)

var (
	// ErrBusy is returned when a VM is used while another call is in flight.
	ErrBusy = errors.New("VM is busy")
	// ErrUndefinedGlobal is the cause when a call names no global.
	ErrUndefinedGlobal = vm.ErrUndefinedGlobal
	// ErrInstructionLimit is the cause when a call runs out of instructions.
	ErrInstructionLimit = vm.ErrInstructionLimit
	// ErrFrameLimit is the cause when calls nest deeper than the frame limit.
	ErrFrameLimit = vm.ErrFrameLimit
)

// FrameTrace describes a single frame in a runtime error or trace.
type FrameTrace struct {
	Function string
	Source   string
	Line     int
	IP       int
}

// RuntimeError is a source-aware execution error surfaced from the VM.
type RuntimeError struct {
	Message string
	Frame   FrameTrace
	Stack   []FrameTrace
	Cause   error
}

func (e *RuntimeError) Error() string {
	parts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			parts = append(parts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Function != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(parts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// StackTrace renders the frames innermost first.
func (e *RuntimeError) StackTrace() string {
	var sb strings.Builder
	for _, fr := range e.Stack {
		fmt.Fprintf(&sb, "  at %s (%s:%d)\n", fr.Function, fr.Source, fr.Line)
	}
	return sb.String()
}

// TraceInfo captures execution steps for debug hooks.
type TraceInfo struct {
	Op       string
	Function string
	Source   string
	Line     int
	IP       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

func convertRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	var rte *vm.RuntimeError
	if errors.As(err, &rte) {
		return &RuntimeError{
			Message: rte.Message,
			Frame:   frameTraceFromVM(rte.Frame),
			Stack:   stackTraceFromVM(rte.Stack),
			Cause:   rte.Cause,
		}
	}
	return err
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Line,
		IP:       info.IP,
	}
}

func stackTraceFromVM(stack []vm.FrameInfo) []FrameTrace {
	if len(stack) == 0 {
		return nil
	}
	out := make([]FrameTrace, len(stack))
	for i, fr := range stack {
		out[i] = frameTraceFromVM(fr)
	}
	return out
}

// Diagnostic is a message reported while parsing or compiling a source.
type Diagnostic struct {
	Level     string
	Component string
	Source    string
	Line      int
	Column    int
	Message   string
}

func (d Diagnostic) String() string {
	var sb strings.Builder
	if d.Source != "" || d.Line > 0 {
		fmt.Fprintf(&sb, "%s:%d:%d: ", d.Source, d.Line, d.Column)
	}
	sb.WriteString(d.Level)
	if d.Component != "" {
		fmt.Fprintf(&sb, " [%s]", d.Component)
	}
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	return sb.String()
}

func diagnosticFromCompiler(d diag.Diagnostic) Diagnostic {
	out := Diagnostic{Level: d.Level.String(), Component: d.Component, Message: d.Message}
	if d.Location != nil {
		out.Source = d.Location.Source
		out.Line = d.Location.Line
		out.Column = d.Location.Column
	}
	return out
}

// SourceError reports a source that failed to parse or compile. Nothing from
// the source has been executed.
type SourceError struct {
	Source      string
	Diagnostics []Diagnostic
	err         error
}

func (e *SourceError) Error() string {
	var errs []string
	for _, d := range e.Diagnostics {
		if d.Level == diag.Error.String() {
			errs = append(errs, d.String())
		}
	}
	if len(errs) == 0 && e.err != nil {
		return fmt.Sprintf("%s: %v", e.Source, e.err)
	}
	return fmt.Sprintf("%s: %d error(s):\n%s", e.Source, len(errs), strings.Join(errs, "\n"))
}

func (e *SourceError) Unwrap() error {
	return e.err
}

// VM is the configurator/executor for laye scripts.
// It accumulates host bindings and loaded sources; each loaded source sees the
// globals of everything loaded before it.
type VM struct {
	core     *vm.VM
	session  uuid.UUID
	base     zerolog.Logger
	logger   zerolog.Logger
	interner *intern.Table
	opts     compiler.Options
	cache    *cache.Cache
	ownCache bool
	diags    []Diagnostic
	mu       sync.Mutex
	busy     bool
}

// NewVM constructs a new VM with the built-in natives installed.
func NewVM() *VM {
	g := vm.NewGlobalState()
	runtime.Install(g)
	vmc := &VM{
		core:     vm.NewWithGlobals(g),
		session:  uuid.New(),
		interner: intern.New(),
	}
	vmc.SetLogger(zerolog.Nop())
	return vmc
}

// NewVMWithConfig constructs a VM and applies cfg. The cache is opened when
// enabled and closed by Close.
func NewVMWithConfig(cfg *config.Config) (*VM, error) {
	vmc := NewVM()
	if cfg == nil {
		return vmc, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := cfg.CompilerOptions()
	vmc.opts.Duplicate = opts.Duplicate
	vmc.opts.Unresolved = opts.Unresolved
	vmc.SetInstructionLimit(cfg.VM.InstructionLimit)
	vmc.SetMaxDepth(cfg.VM.MaxDepth)
	if cfg.VM.Trace {
		vmc.SetTraceHook(vmc.logTrace)
	}
	if cfg.Cache.Enabled {
		if err := vmc.EnableCache(cfg.CachePath()); err != nil {
			return nil, err
		}
	}
	return vmc, nil
}

// Session identifies this VM in log output.
func (vmc *VM) Session() string {
	return vmc.session.String()
}

// SetLogger directs VM and compiler logging. Every event carries the session id.
func (vmc *VM) SetLogger(l zerolog.Logger) {
	vmc.base = l
	vmc.logger = l.With().Str("session", vmc.session.String()).Logger()
	vmc.core.SetLogger(vmc.logger)
}

// SetOutput directs script output such as Print (os.Stdout by default).
func (vmc *VM) SetOutput(w io.Writer) {
	vmc.core.SetOutput(w)
}

// SetDuplicatePolicy selects how redeclarations compile: "reject", "shadow" or "reuse".
func (vmc *VM) SetDuplicatePolicy(policy string) error {
	p, err := compiler.ParseDuplicatePolicy(policy)
	if err != nil {
		return err
	}
	vmc.opts.Duplicate = p
	return nil
}

// SetUnresolvedPolicy selects how unknown identifiers compile: "fail" or "warn".
func (vmc *VM) SetUnresolvedPolicy(policy string) error {
	p, err := compiler.ParseUnresolvedPolicy(policy)
	if err != nil {
		return err
	}
	vmc.opts.Unresolved = p
	return nil
}

// EnableCache stores compiled programs in the SQLite database at path and
// reuses them for identical sources.
func (vmc *VM) EnableCache(path string) error {
	c, err := cache.Open(path)
	if err != nil {
		return fmt.Errorf("enable cache: %w", err)
	}
	if vmc.ownCache && vmc.cache != nil {
		vmc.cache.Close()
	}
	vmc.cache = c
	vmc.ownCache = true
	return nil
}

// Close releases the program cache, if any.
func (vmc *VM) Close() error {
	if vmc == nil || vmc.cache == nil || !vmc.ownCache {
		return nil
	}
	err := vmc.cache.Close()
	vmc.cache = nil
	return err
}

// Duplicate clones the VM configuration and global state into a new instance.
// The duplicate has independent memory, a new session id, and no in-flight
// execution state. It shares the program cache but does not own it.
func (vmc *VM) Duplicate() (*VM, error) {
	if vmc == nil || vmc.core == nil {
		return nil, errors.New("nil VM")
	}
	if err := vmc.acquire(); err != nil {
		return nil, fmt.Errorf("duplicate: %w", err)
	}
	defer vmc.release()

	dup := &VM{
		core:     vmc.core.Duplicate(),
		session:  uuid.New(),
		interner: intern.New(),
		opts:     vmc.opts,
		cache:    vmc.cache,
	}
	dup.SetLogger(vmc.base)
	return dup, nil
}

// SetGlobalFunction binds a marshaled function to a global name. Sources
// loaded afterwards can call it without an extern declaration.
func (vmc *VM) SetGlobalFunction(name string, fn *VmFunction) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	if fn == nil {
		return errors.New("nil function")
	}
	if name == "" {
		return errors.New("empty function name")
	}
	vmc.core.Globals().StoreName(name, fn.toVMValueWithName(name))
	return nil
}

// SetGlobalFuncs binds plain Go functions by name. See vmFunctionFromFunc
// for the supported signatures.
func (vmc *VM) SetGlobalFuncs(funcs map[string]any) error {
	for name, fn := range funcs {
		hostFn, err := vmFunctionFromFunc(name, fn)
		if err != nil {
			return fmt.Errorf("marshal function %s: %w", name, err)
		}
		if err := vmc.SetGlobalFunction(name, hostFn); err != nil {
			return err
		}
	}
	return nil
}

// SetGlobal stores a marshaled value under name.
func (vmc *VM) SetGlobal(name string, val VmValue) {
	vmc.core.Globals().StoreName(name, val.v)
}

// Global reads a global by name.
func (vmc *VM) Global(name string) (VmValue, bool) {
	v, ok := vmc.core.Globals().LoadName(name)
	if !ok {
		return VmValue{}, false
	}
	return VmValue{v: v, owner: vmc.core}, true
}

// HasFunction reports whether a global function exists with the given name.
func (vmc *VM) HasFunction(name string) bool {
	if vmc == nil || vmc.core == nil {
		return false
	}
	v, ok := vmc.core.Globals().LoadName(name)
	return ok && (v.Kind == vm.KindClosure || v.Kind == vm.KindNative)
}

// LoadFile loads, compiles and runs a script from a filesystem path.
func (vmc *VM) LoadFile(path string) error {
	return vmc.LoadFileContext(context.Background(), path)
}

// LoadFileContext is LoadFile with a context bounding the top-level run.
func (vmc *VM) LoadFileContext(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return vmc.LoadSourceContext(ctx, path, string(data))
}

// LoadSource compiles a script from raw source text and runs its top level,
// which defines its functions and variables as globals.
// The name is used in diagnostics (e.g., "inline" or a synthetic filename).
func (vmc *VM) LoadSource(name string, src string) error {
	return vmc.LoadSourceContext(context.Background(), name, src)
}

// LoadSourceContext is LoadSource with a context bounding the top-level run.
func (vmc *VM) LoadSourceContext(ctx context.Context, name string, src string) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	if err := vmc.acquire(); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	defer vmc.release()

	prog, err := vmc.compile(name, src)
	if err != nil {
		return err
	}
	_, err = vmc.core.Run(ctx, prog)
	return convertRuntimeError(err)
}

// RunProgram links a previously compiled program into the globals and runs
// its top level. The program must have been compiled against a prefix of
// this VM's global layout.
func (vmc *VM) RunProgram(ctx context.Context, prog *bytecode.Program) error {
	if err := vmc.acquire(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer vmc.release()
	_, err := vmc.core.Run(ctx, prog)
	return convertRuntimeError(err)
}

// Compile parses and compiles src against the current globals without
// running it.
func (vmc *VM) Compile(name string, src string) (*bytecode.Program, error) {
	if err := vmc.acquire(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	defer vmc.release()
	return vmc.compile(name, src)
}

// Diagnostics returns the messages reported by the most recent load or
// compile, including warnings from a successful one. A program served from
// the cache reports the warnings of the compile that produced it.
func (vmc *VM) Diagnostics() []Diagnostic {
	return vmc.diags
}

func (vmc *VM) compile(name, src string) (*bytecode.Program, error) {
	opts := vmc.opts
	opts.Name = name
	opts.Source = name
	opts.Predeclared = vmc.core.Globals().Names()
	vmc.diags = nil

	var key string
	if vmc.cache != nil {
		key = cache.Key(src, opts)
		entry, err := vmc.cache.Lookup(key)
		if err == nil {
			vmc.logger.Debug().Str("source", name).Str("key", key).Msg("cache hit")
			sink := diag.LogSink{Logger: vmc.logger}
			for _, d := range entry.Diagnostics {
				sink.Report(d)
				vmc.diags = append(vmc.diags, diagnosticFromCompiler(d))
			}
			return entry.Program, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			vmc.logger.Warn().Err(err).Str("source", name).Msg("cache lookup failed")
		}
	}

	p := parser.New(lexer.New(src, lexer.WithInterner(vmc.interner)))
	tree := p.ParseProgram()
	if errs := p.ErrorList(); len(errs) > 0 {
		for _, e := range errs {
			vmc.diags = append(vmc.diags, Diagnostic{
				Level:     diag.Error.String(),
				Component: "parser",
				Source:    name,
				Line:      e.Pos.Line,
				Column:    e.Pos.Column,
				Message:   e.Msg,
			})
		}
		return nil, &SourceError{Source: name, Diagnostics: vmc.diags, err: fmt.Errorf("parse errors: %v", p.Errors())}
	}

	prog, diags, err := compiler.Compile(tree, opts, diag.LogSink{Logger: vmc.logger})
	for _, d := range diags.Diagnostics() {
		vmc.diags = append(vmc.diags, diagnosticFromCompiler(d))
	}
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}
	if err := diags.Err(); err != nil {
		return nil, &SourceError{Source: name, Diagnostics: vmc.diags, err: err}
	}

	if vmc.cache != nil {
		if err := vmc.cache.Store(key, cache.Entry{Program: prog, Diagnostics: diags.Diagnostics()}); err != nil {
			vmc.logger.Warn().Err(err).Str("source", name).Msg("cache store failed")
		}
	}
	return prog, nil
}

// SetInstructionLimit caps the number of instructions a single call may execute (0 for unlimited).
func (vmc *VM) SetInstructionLimit(limit int) {
	if vmc == nil || vmc.core == nil {
		return
	}
	vmc.core.SetInstructionLimit(limit)
}

// SetMaxDepth caps call nesting (0 selects the default of 256).
func (vmc *VM) SetMaxDepth(n int) {
	if vmc == nil || vmc.core == nil {
		return
	}
	vmc.core.SetMaxFrames(n)
}

// SetTraceHook attaches a debug hook that observes instruction dispatch.
func (vmc *VM) SetTraceHook(h TraceHook) {
	if vmc == nil || vmc.core == nil {
		return
	}
	if h == nil {
		vmc.core.SetTraceHook(nil)
		return
	}
	vmc.core.SetTraceHook(func(info vm.TraceInfo) {
		h(TraceInfo{
			Op:       info.Op.String(),
			Function: info.Function,
			Source:   info.Source,
			Line:     info.Line,
			IP:       info.IP,
			Depth:    info.Depth,
		})
	})
}

func (vmc *VM) logTrace(info TraceInfo) {
	vmc.logger.Trace().
		Str("op", info.Op).
		Str("function", info.Function).
		Int("line", info.Line).
		Int("ip", info.IP).
		Int("depth", info.Depth).
		Msg("step")
}

// Disassemble writes a listing of every global function.
func (vmc *VM) Disassemble(w io.Writer) error {
	return vmc.core.Disassemble(w)
}

// VmCallFuture represents an in-flight VM call.
type VmCallFuture struct {
	ch <-chan VmCallResult
}

// VmCallResult is the outcome of a VM call.
type VmCallResult struct {
	Value VmValue
	Err   error
}

// Await waits for completion or context cancellation.
func (f VmCallFuture) Await(ctx context.Context) (VmValue, error) {
	select {
	case <-ctx.Done():
		return VmValue{}, ctx.Err()
	case res := <-f.ch:
		return res.Value, res.Err
	}
}

// Call runs a global function synchronously.
func (vmc *VM) Call(ctx context.Context, name string, args ...VmValue) (VmValue, error) {
	return vmc.CallAsync(ctx, name, args).Await(ctx)
}

// CallAsync resolves a function by name, marshals arguments, and executes it on the VM asynchronously.
func (vmc *VM) CallAsync(ctx context.Context, name string, args []VmValue) VmCallFuture {
	ch := make(chan VmCallResult, 1)
	if err := vmc.acquire(); err != nil {
		ch <- VmCallResult{Err: fmt.Errorf("call %s: %w; concurrent CallAsync not allowed", name, err)}
		close(ch)
		return VmCallFuture{ch: ch}
	}

	go func() {
		res := vmc.call(ctx, name, args)
		// release before publishing so the VM is free once Await returns
		vmc.release()
		ch <- res
		close(ch)
	}()
	return VmCallFuture{ch: ch}
}

func (vmc *VM) call(ctx context.Context, name string, args []VmValue) VmCallResult {
	select {
	case <-ctx.Done():
		return VmCallResult{Err: ctx.Err()}
	default:
	}
	res, err := vmc.core.Call(ctx, name, unwrapValues(args)...)
	if err := convertRuntimeError(err); err != nil {
		return VmCallResult{Err: err}
	}
	return VmCallResult{Value: VmValue{v: res, owner: vmc.core}}
}

func (vmc *VM) acquire() error {
	vmc.mu.Lock()
	defer vmc.mu.Unlock()
	if vmc.busy {
		return ErrBusy
	}
	vmc.busy = true
	return nil
}

func (vmc *VM) release() {
	vmc.mu.Lock()
	vmc.busy = false
	vmc.mu.Unlock()
}
