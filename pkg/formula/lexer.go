package formula

import (
	"strings"
	"unicode"

	"github.com/fieldbook-labs/fieldbook/pkg/token"
)

// Lexer tokenizes formula input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
}

// NewLexer creates a new Lexer for the given formula text.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// currentPos returns the current position.
func (l *Lexer) currentPos() token.Position {
	return token.Position{
		Line:   l.line,
		Column: l.col,
		Offset: l.pos,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()

	pos := l.currentPos()

	// Field reference {{Name}}
	if l.ch == '{' && l.peekChar() == '{' {
		return l.readFieldRef(pos)
	}

	var tok token.Token
	tok.Pos = pos

	switch l.ch {
	case 0:
		tok.Type = token.EOF
		tok.Literal = ""
	case '=':
		tok = l.newToken(token.EQ, "=")
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			tok = token.Token{Type: token.LE, Literal: "<=", Pos: pos}
		case '>':
			l.readChar()
			tok = token.Token{Type: token.NE, Literal: "<>", Pos: pos}
		default:
			tok = l.newToken(token.LT, "<")
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = token.Token{Type: token.GE, Literal: ">=", Pos: pos}
		} else {
			tok = l.newToken(token.GT, ">")
		}
	case '&':
		tok = l.newToken(token.AMPERSAND, "&")
	case '-':
		if isDigit(l.peekChar()) {
			l.readChar()
			tok.Type = token.NUMBER
			tok.Literal = "-" + l.readNumber()
			tok.Pos = pos
			return tok
		}
		tok = l.newToken(token.ILLEGAL, "-")
	case ',':
		tok = l.newToken(token.COMMA, ",")
	case '(':
		tok = l.newToken(token.LPAREN, "(")
	case ')':
		tok = l.newToken(token.RPAREN, ")")
	case '"':
		return l.readString(pos)
	default:
		switch {
		case isLetter(l.ch) || l.ch == '_':
			tok.Literal = l.readIdentifier()
			tok.Type = token.LookupIdent(strings.ToUpper(tok.Literal))
			tok.Pos = pos
			return tok
		case isDigit(l.ch):
			tok.Type = token.NUMBER
			tok.Literal = l.readNumber()
			tok.Pos = pos
			return tok
		default:
			tok = l.newToken(token.ILLEGAL, string(l.ch))
		}
	}

	l.readChar()
	return tok
}

// newToken creates a new token at the current position.
func (l *Lexer) newToken(tokenType token.TokenType, literal string) token.Token {
	return token.Token{Type: tokenType, Literal: literal, Pos: l.currentPos()}
}

// skipWhitespace skips spaces, tabs and line breaks. Formatting between
// tokens is insignificant.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readString reads a double-quoted string literal with backslash escapes.
// An unterminated string yields an ILLEGAL token the parser reports.
func (l *Lexer) readString(pos token.Position) token.Token {
	l.readChar() // skip opening quote

	var result strings.Builder
	for l.ch != 0 {
		if l.ch == '\\' && l.peekChar() != 0 {
			l.readChar()
			result.WriteByte(l.ch)
			l.readChar()
			continue
		}
		if l.ch == '"' {
			l.readChar() // skip closing quote
			return token.Token{Type: token.STRING, Literal: result.String(), Pos: pos}
		}
		result.WriteByte(l.ch)
		l.readChar()
	}
	return token.Token{Type: token.ILLEGAL, Literal: "unterminated string", Pos: pos}
}

// readFieldRef reads a {{Name}} field token. The inner name is trimmed
// of surrounding whitespace.
func (l *Lexer) readFieldRef(pos token.Position) token.Token {
	l.readChar() // skip first {
	l.readChar() // skip second {

	start := l.pos
	for l.ch != 0 {
		if l.ch == '}' && l.peekChar() == '}' {
			name := strings.TrimSpace(l.input[start:l.pos])
			l.readChar() // skip first }
			l.readChar() // skip second }
			return token.Token{Type: token.FIELDREF, Literal: name, Pos: pos}
		}
		l.readChar()
	}
	return token.Token{Type: token.ILLEGAL, Literal: "unterminated field reference", Pos: pos}
}

// readIdentifier reads an unquoted identifier.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads an integer literal. The grammar has no float syntax;
// the AST reserves a float kind for when it does.
func (l *Lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// isLetter returns true if ch is a letter.
func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

// isDigit returns true if ch is a digit.
func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns all tokens from the input, ending with EOF.
func Tokenize(input string) []token.Token {
	l := NewLexer(input)
	var tokens []token.Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			break
		}
	}
	return tokens
}
