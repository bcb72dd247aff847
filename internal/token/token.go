package token

// Type identifies the category of a token.
type Type string

// Token carries the lexical item along with its source position.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
}

// Position describes a byte offset and 1-based line/column.
type Position struct {
	Offset int
	Line   int
	Column int
}

// Span represents an inclusive start and end position for a node.
type Span struct {
	Start Position
	End   Position
}

const (
	Illegal Type = "ILLEGAL"
	EOF     Type = "EOF"

	// identifiers and literals
	Ident  Type = "IDENT"
	Int    Type = "INT"
	Float  Type = "FLOAT"
	String Type = "STRING"

	// keywords
	And    Type = "AND"
	Or     Type = "OR"
	Xor    Type = "XOR"
	Not    Type = "NOT"
	TypeOf Type = "TYPEOF"
	True   Type = "TRUE"
	False  Type = "FALSE"
	Null   Type = "NULL"
	If     Type = "IF"
	Else   Type = "EL"
	While  Type = "WHILE"
	Return Type = "RET"
	Var    Type = "VAR"
	Fn     Type = "FN"
	Extern Type = "EXTERN"

	// Operator is any run of operator characters other than a lone '='.
	Operator Type = "OPERATOR"
	Assign   Type = "ASSIGN"   // =
	Variadic Type = "VARIADIC" // ..

	// delimiters
	Comma     Type = "COMMA"
	Semicolon Type = "SEMICOLON"
	LParen    Type = "LPAREN"
	RParen    Type = "RPAREN"
	LBrace    Type = "LBRACE"
	RBrace    Type = "RBRACE"
	LBracket  Type = "LBRACKET"
	RBracket  Type = "RBRACKET"
)

var keywords = map[string]Type{
	"and":    And,
	"or":     Or,
	"xor":    Xor,
	"not":    Not,
	"typeof": TypeOf,
	"true":   True,
	"false":  False,
	"null":   Null,
	"if":     If,
	"el":     Else,
	"else":   Else,
	"while":  While,
	"ret":    Return,
	"var":    Var,
	"fn":     Fn,
	"extern": Extern,
}

// LookupIdent returns the keyword token type or Ident.
func LookupIdent(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return Ident
}

// IsOperatorChar reports whether ch may appear in an operator.
func IsOperatorChar(ch byte) bool {
	switch ch {
	case '~', '!', '@', '$', '%', '^', '&', '*', '-', '+', '=', '\\', '|', '<', '>', '/', '?':
		return true
	default:
		return false
	}
}
