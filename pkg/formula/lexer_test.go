package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook-labs/fieldbook/pkg/token"
)

func TestLexerOperatorsAndLiterals(t *testing.T) {
	input := `={{Name}} <> "x" & 42 <= -7, ( )`

	expected := []struct {
		typ     token.TokenType
		literal string
	}{
		{token.EQ, "="},
		{token.FIELDREF, "Name"},
		{token.NE, "<>"},
		{token.STRING, "x"},
		{token.AMPERSAND, "&"},
		{token.NUMBER, "42"},
		{token.LE, "<="},
		{token.NUMBER, "-7"},
		{token.COMMA, ","},
		{token.LPAREN, "("},
		{token.RPAREN, ")"},
		{token.EOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		assert.Equal(t, exp.typ, tok.Type, "token %d type", i)
		assert.Equal(t, exp.literal, tok.Literal, "token %d literal", i)
	}
}

func TestLexerKeywordsCaseInsensitive(t *testing.T) {
	tests := []struct {
		input string
		typ   token.TokenType
	}{
		{"AND", token.AND},
		{"and", token.AND},
		{"Or", token.OR},
		{"NOT", token.NOT},
		{"true", token.TRUE},
		{"FALSE", token.FALSE},
		{"LOWER", token.IDENT},
		{"if", token.IDENT},
	}

	for _, tt := range tests {
		toks := Tokenize(tt.input)
		require.Len(t, toks, 2, "input %q", tt.input)
		assert.Equal(t, tt.typ, toks[0].Type, "input %q", tt.input)
	}
}

func TestLexerStringEscapes(t *testing.T) {
	toks := Tokenize(`"say \"hi\" \\ there"`)
	require.Len(t, toks, 2)
	assert.Equal(t, token.STRING, toks[0].Type)
	assert.Equal(t, `say "hi" \ there`, toks[0].Literal)
}

func TestLexerStringPreservesInteriorWhitespace(t *testing.T) {
	toks := Tokenize(`"Is  a language?"`)
	require.Len(t, toks, 2)
	assert.Equal(t, "Is  a language?", toks[0].Literal)
}

func TestLexerFieldRefTrimsName(t *testing.T) {
	toks := Tokenize("{{  First Name  }}")
	require.Len(t, toks, 2)
	assert.Equal(t, token.FIELDREF, toks[0].Type)
	assert.Equal(t, "First Name", toks[0].Literal)
}

func TestLexerUnterminatedInputs(t *testing.T) {
	for _, input := range []string{`"never closed`, "{{NoClose"} {
		toks := Tokenize(input)
		require.NotEmpty(t, toks, "input %q", input)
		assert.Equal(t, token.ILLEGAL, toks[0].Type, "input %q", input)
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("TRUE AND\nFALSE")

	tok := l.NextToken()
	assert.Equal(t, 1, tok.Pos.Line)
	assert.Equal(t, 1, tok.Pos.Column)

	tok = l.NextToken() // AND
	assert.Equal(t, 1, tok.Pos.Line)
	assert.Equal(t, 6, tok.Pos.Column)

	tok = l.NextToken() // FALSE
	assert.Equal(t, 2, tok.Pos.Line)
	assert.Equal(t, 1, tok.Pos.Column)
}
