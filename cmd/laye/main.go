// Laye CLI - compiles, runs and inspects Laye programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	laye "github.com/xirelogy/go-laye"
	"github.com/xirelogy/go-laye/internal/ast"
	"github.com/xirelogy/go-laye/internal/bytecode"
	"github.com/xirelogy/go-laye/internal/config"
	"github.com/xirelogy/go-laye/internal/lexer"
	"github.com/xirelogy/go-laye/internal/parser"
)

// compiledExt marks files written by "laye compile".
const compiledExt = ".layec"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configDir string
	entry     string
	output    string
	verbose   bool
	trace     bool
	limit     int
	noCache   bool
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: laye <command> [options] <file>\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  run      load a .laye or %s file and call its entry function\n", compiledExt)
	fmt.Fprintf(w, "  disasm   print the bytecode of a .laye file\n")
	fmt.Fprintf(w, "  compile  write the compiled program to a %s file\n", compiledExt)
	fmt.Fprintf(w, "  ast      print the syntax tree of a .laye file\n")
	fmt.Fprintf(w, "\nSettings are read from the nearest laye.toml above the file.\n")
}

// run executes one CLI invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd := args[0]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage(stdout)
		return 0
	}

	var opts options
	fs := flag.NewFlagSet("laye "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configDir, "config", "", "Directory to search for laye.toml (default: the file's directory)")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose (debug) logging")
	fs.BoolVar(&opts.noCache, "no-cache", false, "Bypass the compiled-program cache")
	switch cmd {
	case "run":
		fs.StringVar(&opts.entry, "entry", "Main", "Function to call after loading (empty to skip)")
		fs.BoolVar(&opts.trace, "trace", false, "Log every executed instruction")
		fs.IntVar(&opts.limit, "limit", 0, "Instruction limit per call (0 uses the config)")
	case "compile":
		fs.StringVar(&opts.output, "o", "", "Output file (default: input with "+compiledExt+" extension)")
	case "disasm", "ast":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(stderr)
		return 2
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "laye %s: expected exactly one file\n", cmd)
		return 2
	}
	path := fs.Arg(0)

	cfg, err := loadConfig(opts, path)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	logger, err := newLogger(cfg.Log, opts.verbose, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error configuring logger: %v\n", err)
		return 1
	}

	vmc, err := laye.NewVMWithConfig(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating VM: %v\n", err)
		return 1
	}
	defer vmc.Close()
	vmc.SetLogger(logger)
	vmc.SetOutput(stdout)

	switch cmd {
	case "run":
		err = runFile(ctx, vmc, opts, path, stderr)
	case "disasm":
		err = disasmFile(vmc, path, stdout)
	case "compile":
		err = compileFile(vmc, opts, path, stdout)
	case "ast":
		err = astFile(path, stdout)
	}
	if err != nil {
		reportError(stderr, err)
		return 1
	}
	return 0
}

func loadConfig(opts options, path string) (*config.Config, error) {
	dir := opts.configDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	cfg, err := config.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if opts.noCache {
		cfg.Cache.Enabled = false
	}
	if opts.trace {
		cfg.VM.Trace = true
	}
	if opts.limit > 0 {
		cfg.VM.InstructionLimit = opts.limit
	}
	return cfg, nil
}

// newLogger builds the session logger. Trace mode needs trace-level events,
// so it lowers the configured level.
func newLogger(cfg config.Log, verbose bool, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.WarnLevel
	if cfg.Level != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), err
		}
		level = lvl
	}
	if verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	var out io.Writer = w
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = w
			cw.NoColor = true
			cw.TimeFormat = "15:04:05"
		})
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func runFile(ctx context.Context, vmc *laye.VM, opts options, path string, stderr io.Writer) error {
	if filepath.Ext(path) == compiledExt {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		prog, err := bytecode.UnmarshalProgram(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := vmc.RunProgram(ctx, prog); err != nil {
			return err
		}
	} else {
		if err := vmc.LoadFileContext(ctx, path); err != nil {
			return err
		}
		printWarnings(stderr, vmc.Diagnostics())
	}

	if opts.entry == "" || !vmc.HasFunction(opts.entry) {
		return nil
	}
	_, err := vmc.Call(ctx, opts.entry)
	return err
}

func disasmFile(vmc *laye.VM, path string, stdout io.Writer) error {
	prog, err := compileSourceFile(vmc, path)
	if err != nil {
		return err
	}
	return bytecode.NewDisassembler(stdout).DisassembleProgram(prog)
}

func compileFile(vmc *laye.VM, opts options, path string, stdout io.Writer) error {
	prog, err := compileSourceFile(vmc, path)
	if err != nil {
		return err
	}
	data, err := bytecode.MarshalProgram(prog)
	if err != nil {
		return err
	}
	out := opts.output
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + compiledExt
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", out, len(data))
	return nil
}

func compileSourceFile(vmc *laye.VM, path string) (*bytecode.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return vmc.Compile(path, string(src))
}

func astFile(path string, stdout io.Writer) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p := parser.New(lexer.New(string(src)))
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return fmt.Errorf("%s: %s", path, strings.Join(errs, "; "))
	}
	return ast.Dump(stdout, prog)
}

func printWarnings(w io.Writer, diags []laye.Diagnostic) {
	for _, d := range diags {
		if d.Level != "error" {
			fmt.Fprintln(w, d.String())
		}
	}
}

func reportError(w io.Writer, err error) {
	var rte *laye.RuntimeError
	if errors.As(err, &rte) {
		fmt.Fprintf(w, "Runtime error: %v\n", rte)
		fmt.Fprint(w, rte.StackTrace())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
