package lexer

import (
	"strings"

	"github.com/briarlang/briar/internal/token"
)

// Lexer converts source text into a stream of tokens. Grounded on the
// teacher's byte-at-a-time cursor design (internal/lexer/lexer.go); the
// newline/paren-depth significant-whitespace tracking it used for its own
// grammar is dropped since this grammar terminates statements with `;`
// and has no significant newlines.
type Lexer struct {
	input   string
	pos     int // current position in bytes
	readPos int // next read position
	ch      byte
	line    int
}

// New creates a lexer for the provided source text.
func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespaceAndComments()

	if l.ch == 0 {
		return l.makeToken(token.EOF, "")
	}

	switch {
	case isLetter(l.ch):
		return l.readIdentifier()
	case isDigit(l.ch):
		return l.readNumber()
	case l.ch == '"':
		return l.readString()
	}

	switch l.ch {
	case '(':
		return l.simple(token.LParen)
	case ')':
		return l.simple(token.RParen)
	case '{':
		return l.simple(token.LBrace)
	case '}':
		return l.simple(token.RBrace)
	case ',':
		return l.simple(token.Comma)
	case '.':
		return l.simple(token.Dot)
	case '-':
		return l.simple(token.Minus)
	case '+':
		return l.simple(token.Plus)
	case ';':
		return l.simple(token.Semicolon)
	case '*':
		return l.simple(token.Star)
	case '/':
		return l.simple(token.Slash)
	case '!':
		return l.twoChar('=', token.NotEqual, token.Bang)
	case '=':
		return l.twoChar('=', token.Equal, token.Assign)
	case '<':
		return l.twoChar('=', token.LessEqual, token.Less)
	case '>':
		return l.twoChar('=', token.GreaterEqual, token.Greater)
	default:
		return l.simple(token.Illegal)
	}
}

func (l *Lexer) simple(t token.Type) token.Token {
	tok := l.makeToken(t, string(l.ch))
	l.readChar()
	return tok
}

// twoChar matches a single char that may be followed by '=' to form a
// two-char operator, e.g. '!' / "!=".
func (l *Lexer) twoChar(second byte, twoType, oneType token.Type) token.Token {
	ch := l.ch
	if l.peekChar() == second {
		l.readChar()
		tok := l.makeToken(twoType, string(ch)+string(l.ch))
		l.readChar()
		return tok
	}
	return l.simple(oneType)
}

func (l *Lexer) makeToken(t token.Type, lit string) token.Token {
	return token.Token{
		Type:    t,
		Literal: lit,
		Pos:     token.Position{Offset: l.pos, Line: l.line},
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.ch {
		case ' ', '\t', '\r', '\n':
			l.readChar()
		case '/':
			if l.peekChar() == '/' {
				for l.ch != 0 && l.ch != '\n' {
					l.readChar()
				}
				continue
			}
			return
		default:
			return
		}
	}
}

func (l *Lexer) readIdentifier() token.Token {
	line := l.line
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	return token.Token{Type: token.LookupIdent(lit), Literal: lit, Pos: token.Position{Offset: start, Line: line}}
}

func (l *Lexer) readNumber() token.Token {
	line := l.line
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	lit := l.input[start:l.pos]
	return token.Token{Type: token.Number, Literal: lit, Pos: token.Position{Offset: start, Line: line}}
}

func (l *Lexer) readString() token.Token {
	line := l.line
	pos := l.pos
	var sb strings.Builder
	for {
		l.readChar()
		if l.ch == 0 {
			return token.Token{Type: token.Illegal, Literal: "unterminated string", Pos: token.Position{Offset: pos, Line: line}}
		}
		if l.ch == '"' {
			l.readChar()
			break
		}
		sb.WriteByte(l.ch)
	}
	return token.Token{Type: token.String, Literal: sb.String(), Pos: token.Position{Offset: pos, Line: line}}
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
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
	}
}
