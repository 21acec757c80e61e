// Package formula provides parsing of spreadsheet-style formulas into
// an abstract syntax tree.
//
// # Usage
//
//	ast, err := formula.Parse(`=AND({{HasSyntax}}, NOT({{CanBeHeld}}))`)
//	if err != nil {
//	    // *formula.SyntaxError with position information
//	}
//
// # Grammar Overview
//
//	formula    → ["="] expr
//	expr       → andExpr (OR andExpr)*
//	andExpr    → notExpr (AND notExpr)*
//	notExpr    → NOT notExpr | concat
//	concat     → comparison ("&" comparison)*
//	comparison → primary [("=" | "<>" | "<" | "<=" | ">" | ">=") primary]
//	primary    → literal | "{{" Identifier "}}" | NAME "(" args ")" | "(" expr ")"
//
// Whitespace and line breaks between tokens are insignificant: two
// formulas differing only in formatting parse to structurally identical
// trees. AND, OR, NOT and IF in call position fold to their dedicated
// node kinds; any other NAME parses as a generic Call, rejected later
// only by backends that cannot emit it.
package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldbook-labs/fieldbook/pkg/token"
)

// Parser parses formula text into an AST.
type Parser struct {
	lexer  *Lexer
	token  token.Token // current token
	peek   token.Token // lookahead token
	errors []error
}

// NewParser creates a new parser for the given formula text.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses the formula text and returns the AST. A leading "="
// marker is accepted and skipped. Malformed input returns a
// *SyntaxError describing the first failure.
func Parse(input string) (Node, error) {
	p := NewParser(input)
	if p.check(token.EQ) {
		p.nextToken()
	}
	expr := p.parseExpr()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	if !p.check(token.EOF) {
		p.addError("end of formula")
		return nil, p.errors[0]
	}
	return expr, nil
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t token.TokenType) bool {
	return p.token.Type == t
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(t.String())
	return false
}

// addError records a syntax error at the current token.
func (p *Parser) addError(expected string) {
	p.errors = append(p.errors, &SyntaxError{
		Pos:      p.token.Pos,
		Expected: expected,
		Found:    describe(p.token),
	})
}

// describe renders a token for error messages.
func describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of formula"
	case token.ILLEGAL:
		return tok.Literal
	case token.IDENT, token.NUMBER:
		return fmt.Sprintf("%q", tok.Literal)
	case token.STRING:
		return fmt.Sprintf("string %q", tok.Literal)
	case token.FIELDREF:
		return fmt.Sprintf("{{%s}}", tok.Literal)
	default:
		return fmt.Sprintf("%q", tok.Type.String())
	}
}

// ---------- Grammar ----------

// parseExpr parses OR, the loosest binding operator.
func (p *Parser) parseExpr() Node {
	left := p.parseAnd()
	if !p.check(token.OR) {
		return left
	}
	operands := []Node{left}
	for p.check(token.OR) {
		p.nextToken()
		operands = append(operands, p.parseAnd())
	}
	return &Logical{Op: OpOr, Operands: operands}
}

// parseAnd parses infix AND.
func (p *Parser) parseAnd() Node {
	left := p.parseNot()
	if !p.check(token.AND) {
		return left
	}
	operands := []Node{left}
	for p.check(token.AND) {
		p.nextToken()
		operands = append(operands, p.parseNot())
	}
	return &Logical{Op: OpAnd, Operands: operands}
}

// parseNot parses prefix NOT. NOT(x) reaches the same node through the
// parenthesized-expression path. Infix NOT binds looser than
// comparison, so NOT a = b negates the whole comparison.
func (p *Parser) parseNot() Node {
	if p.check(token.NOT) {
		p.nextToken()
		return &Logical{Op: OpNot, Operands: []Node{p.parseNot()}}
	}
	return p.parseConcat()
}

// parseConcat parses '&' string concatenation (left-associative).
func (p *Parser) parseConcat() Node {
	left := p.parseComparison()
	if !p.check(token.AMPERSAND) {
		return left
	}
	parts := []Node{left}
	for p.check(token.AMPERSAND) {
		p.nextToken()
		parts = append(parts, p.parseComparison())
	}
	return &Concat{Parts: parts}
}

// parseComparison parses an optional binary comparison.
func (p *Parser) parseComparison() Node {
	left := p.parsePrimary()
	if !token.IsComparison(p.token.Type) {
		return left
	}
	op := CompareOp(p.token.Literal)
	p.nextToken()
	right := p.parsePrimary()
	return &Compare{Op: op, Left: left, Right: right}
}

// parsePrimary parses literals, field references, calls, and groups.
func (p *Parser) parsePrimary() Node {
	switch p.token.Type {
	case token.STRING:
		n := &LiteralString{Value: p.token.Literal}
		p.nextToken()
		return n

	case token.NUMBER:
		v, err := strconv.ParseInt(p.token.Literal, 10, 64)
		if err != nil {
			p.addError("integer literal")
			return &LiteralInt{}
		}
		p.nextToken()
		return &LiteralInt{Value: v}

	case token.FIELDREF:
		n := &FieldRef{Name: p.token.Literal}
		p.nextToken()
		return n

	case token.TRUE, token.FALSE:
		value := p.check(token.TRUE)
		p.nextToken()
		// TRUE and TRUE() are the same literal
		if p.check(token.LPAREN) {
			p.nextToken()
			p.expect(token.RPAREN)
		}
		return &LiteralBool{Value: value}

	case token.AND, token.OR:
		// Call forms AND(...) / OR(...)
		op := OpAnd
		if p.check(token.OR) {
			op = OpOr
		}
		p.nextToken()
		args := p.parseArgs()
		return &Logical{Op: op, Operands: args}

	case token.IDENT:
		name := strings.ToUpper(p.token.Literal)
		pos := p.token.Pos
		p.nextToken()
		if !p.check(token.LPAREN) {
			p.addError("'(' after function name")
			return &Call{Name: name}
		}
		args := p.parseArgs()
		if name == "IF" {
			return p.foldIf(pos, args)
		}
		return &Call{Name: name, Args: args}

	case token.LPAREN:
		p.nextToken()
		expr := p.parseExpr()
		p.expect(token.RPAREN)
		return expr

	default:
		p.addError("expression")
		p.nextToken()
		return &LiteralBool{}
	}
}

// parseArgs parses a parenthesized, comma-separated argument list.
// The current token must be '('.
func (p *Parser) parseArgs() []Node {
	p.expect(token.LPAREN)
	var args []Node
	if p.check(token.RPAREN) {
		p.nextToken()
		return args
	}
	args = append(args, p.parseExpr())
	for p.check(token.COMMA) {
		p.nextToken()
		args = append(args, p.parseExpr())
	}
	p.expect(token.RPAREN)
	return args
}

// foldIf converts IF call arguments into an If node. The else branch
// may be absent.
func (p *Parser) foldIf(pos token.Position, args []Node) Node {
	if len(args) < 2 || len(args) > 3 {
		p.errors = append(p.errors, &SyntaxError{
			Pos:      pos,
			Expected: "2 or 3 arguments to IF",
			Found:    fmt.Sprintf("%d arguments", len(args)),
		})
		return &LiteralBool{}
	}
	n := &If{Cond: args[0], Then: args[1]}
	if len(args) == 3 {
		n.Else = args[2]
	}
	return n
}
