// Package token defines the lexical tokens of the formula language.
package token

import "fmt"

// TokenType represents the type of a lexical token.
//
//nolint:revive // token.TokenType stutters but reads clearly at call sites
type TokenType int32

//nolint:revive // TOKEN-style ALL_CAPS kept for lexer convention
const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL

	// Literals
	IDENT    // AND, IF, LOWER, unknown function names
	NUMBER   // 123
	STRING   // "hello"
	FIELDREF // {{Name}}

	// Operators
	EQ        // =
	NE        // <>
	LT        // <
	LE        // <=
	GT        // >
	GE        // >=
	AMPERSAND // &
	COMMA     // ,
	LPAREN    // (
	RPAREN    // )

	// Keywords
	AND
	OR
	NOT
	TRUE
	FALSE
)

// tokenNames maps token types to their string representations.
var tokenNames = map[TokenType]string{
	EOF:     "EOF",
	ILLEGAL: "ILLEGAL",

	IDENT:    "IDENT",
	NUMBER:   "NUMBER",
	STRING:   "STRING",
	FIELDREF: "FIELDREF",

	EQ:        "=",
	NE:        "<>",
	LT:        "<",
	LE:        "<=",
	GT:        ">",
	GE:        ">=",
	AMPERSAND: "&",
	COMMA:     ",",
	LPAREN:    "(",
	RPAREN:    ")",

	AND:   "AND",
	OR:    "OR",
	NOT:   "NOT",
	TRUE:  "TRUE",
	FALSE: "FALSE",
}

// keywords maps uppercase keyword strings to their token types.
// Formula keywords are case-insensitive; the lexer uppercases before lookup.
var keywords = map[string]TokenType{
	"AND":   AND,
	"OR":    OR,
	"NOT":   NOT,
	"TRUE":  TRUE,
	"FALSE": FALSE,
}

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

// LookupIdent returns the token type for the given (uppercased) identifier.
// If the identifier is a keyword, the keyword token type is returned.
// Otherwise, IDENT is returned.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// IsComparison returns true if the token type is a comparison operator.
func IsComparison(t TokenType) bool {
	return t >= EQ && t <= GE
}

// Token represents a lexical token with position information.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}
