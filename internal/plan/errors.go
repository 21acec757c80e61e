package plan

import (
	"fmt"
	"strings"
)

// UnknownFieldError reports a formula referencing a field the table
// does not declare. Fatal for the whole table.
type UnknownFieldError struct {
	Name             string // the missing field
	ReferencingField string // the derived field whose formula refers to it
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("field %q references unknown field %q", e.ReferencingField, e.Name)
}

// CyclicDependencyError reports circular formula dependencies, naming
// every field on a cycle. Fatal for the whole table.
type CyclicDependencyError struct {
	Members []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic field dependencies: %s", strings.Join(e.Members, ", "))
}
