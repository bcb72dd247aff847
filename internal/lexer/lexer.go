package lexer

import (
	"strings"

	"github.com/xirelogy/go-laye/internal/intern"
	"github.com/xirelogy/go-laye/internal/token"
)

// Lexer converts source text into a stream of tokens.
type Lexer struct {
	input   string
	pos     int  // current position in bytes
	readPos int  // next read position
	ch      byte // current char
	line    int
	column  int
	names   *intern.Table
}

// Option configures a Lexer.
type Option func(*Lexer)

// WithInterner routes identifier and operator spellings through tbl.
func WithInterner(tbl *intern.Table) Option {
	return func(l *Lexer) {
		l.names = tbl
	}
}

// New creates a lexer for the provided source text.
func New(input string, opts ...Option) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.readChar()
	return l
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() token.Token {
	for {
		l.skipWhitespace()

		if l.ch == 0 {
			return l.makeToken(token.EOF, "")
		}

		if l.ch == '#' {
			l.skipLineComment()
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.skipBlockComment()
			continue
		}

		switch l.ch {
		case '.':
			if l.peekChar() == '.' {
				tok := l.makeToken(token.Variadic, "..")
				l.readChar()
				l.readChar()
				return tok
			}
			tok := l.makeToken(token.Illegal, string(l.ch))
			l.readChar()
			return tok
		case ',':
			return l.single(token.Comma)
		case ';':
			return l.single(token.Semicolon)
		case '(':
			return l.single(token.LParen)
		case ')':
			return l.single(token.RParen)
		case '[':
			return l.single(token.LBracket)
		case ']':
			return l.single(token.RBracket)
		case '{':
			return l.single(token.LBrace)
		case '}':
			return l.single(token.RBrace)
		case '"':
			return l.readString()
		default:
			if token.IsOperatorChar(l.ch) {
				return l.readOperator()
			}
			if isLetter(l.ch) {
				return l.readIdentifier()
			}
			if isDigit(l.ch) {
				return l.readNumber()
			}

			tok := l.makeToken(token.Illegal, string(l.ch))
			l.readChar()
			return tok
		}
	}
}

func (l *Lexer) single(t token.Type) token.Token {
	tok := l.makeToken(t, string(l.ch))
	l.readChar()
	return tok
}

func (l *Lexer) makeToken(t token.Type, lit string) token.Token {
	return token.Token{
		Type:    t,
		Literal: lit,
		Pos: token.Position{
			Offset: l.pos,
			Line:   l.line,
			Column: l.column,
		},
	}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
		l.readChar()
	}
}

func (l *Lexer) skipLineComment() {
	for l.ch != 0 && l.ch != '\n' {
		l.readChar()
	}
}

func (l *Lexer) skipBlockComment() {
	l.readChar() // consume '/'
	l.readChar() // consume '*'
	for {
		if l.ch == 0 {
			return
		}
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar() // '*'
			l.readChar() // '/'
			return
		}
		l.readChar()
	}
}

func (l *Lexer) readOperator() token.Token {
	start := l.makeToken(token.Operator, "")
	var sb strings.Builder
	for token.IsOperatorChar(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	lit := sb.String()
	if lit == "=" {
		start.Type = token.Assign
	}
	start.Literal = l.names.Intern(lit)
	return start
}

func (l *Lexer) readIdentifier() token.Token {
	start := l.makeToken(token.Ident, "")
	var sb strings.Builder
	for isLetter(l.ch) || isDigit(l.ch) {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	lit := sb.String()
	start.Type = token.LookupIdent(lit)
	if start.Type == token.Ident {
		lit = l.names.Intern(lit)
	}
	start.Literal = lit
	return start
}

func (l *Lexer) readNumber() token.Token {
	start := l.makeToken(token.Int, "")
	var sb strings.Builder
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		sb.WriteByte(l.ch)
		l.readChar()
		sb.WriteByte(l.ch)
		l.readChar()
		for isHexDigit(l.ch) || l.ch == '_' {
			sb.WriteByte(l.ch)
			l.readChar()
		}
		start.Literal = sb.String()
		return start
	}
	for isDigit(l.ch) || l.ch == '_' {
		sb.WriteByte(l.ch)
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		start.Type = token.Float
		sb.WriteByte(l.ch)
		l.readChar()
		for isDigit(l.ch) || l.ch == '_' {
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}
	start.Literal = sb.String()
	return start
}

func (l *Lexer) readString() token.Token {
	start := l.makeToken(token.String, "")
	var sb strings.Builder

	for {
		l.readChar()
		if l.ch == 0 {
			return l.makeToken(token.Illegal, "unterminated string")
		}
		if l.ch == '"' {
			l.readChar()
			break
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case '"', '\\':
				sb.WriteByte(l.ch)
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '0':
				sb.WriteByte(0)
			default:
				sb.WriteByte(l.ch)
			}
			continue
		}
		sb.WriteByte(l.ch)
	}

	start.Literal = sb.String()
	return start
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.pos = l.readPos
		l.ch = 0
		return
	}

	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}
