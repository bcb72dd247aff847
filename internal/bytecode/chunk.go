package bytecode

// Chunk is a compiled instruction sequence with its constant pool.
type Chunk struct {
	Code   []Instruction
	Consts []Constant
	Lines  []LineInfo
}

// Prototype represents a compiled function. It is immutable once built and
// shared by every closure instantiated from it.
type Prototype struct {
	Name      string
	Source    string
	NumParams int
	Variadic  bool
	MaxLocals int
	MaxStack  int
	Chunk     *Chunk
	Nested    []*Prototype
	Upvalues  []Upvalue
}

// Program is the compiled form of a source file.
type Program struct {
	Name string
	Main *Prototype
	// Globals names each global slot in index order.
	Globals []string
}

// Upvalue describes a captured variable. IsLocal selects a local slot of the
// enclosing function; otherwise Index is one of the enclosing function's upvalues.
type Upvalue struct {
	Name    string
	IsLocal bool
	Index   int
}

// LineInfo maps instruction offsets to source lines (start-inclusive).
type LineInfo struct {
	Offset int
	Line   int
}

// LineForOffset returns the source line of the instruction at offset, or 0.
func (c *Chunk) LineForOffset(offset int) int {
	if c == nil || offset < 0 {
		return 0
	}
	line := 0
	for _, info := range c.Lines {
		if info.Offset > offset {
			break
		}
		line = info.Line
	}
	return line
}
