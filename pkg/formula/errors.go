package formula

import (
	"fmt"

	"github.com/fieldbook-labs/fieldbook/pkg/token"
)

// SyntaxError reports malformed formula text. It is fatal for that one
// formula and carries the position the parser gave up at.
type SyntaxError struct {
	Pos      token.Position
	Expected string
	Found    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: expected %s, found %s",
		e.Pos.Line, e.Pos.Column, e.Expected, e.Found)
}
