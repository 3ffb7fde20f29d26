package linker

import (
	"fmt"
	"strings"
)

// ImportError describes one import that hard-failed resolution: the export
// exists but its type disagrees with the declaration. Actual is nil when the
// failure is not a type comparison.
type ImportError struct {
	Module   string
	Name     string
	Expected ExternType
	Actual   *ExternType
}

func (e *ImportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "import %s.%s: expected %s", e.Module, e.Name, e.Expected)
	if e.Actual != nil {
		fmt.Fprintf(&b, ", module provides %s", *e.Actual)
	}
	return b.String()
}

// LinkFailure aggregates every import that failed resolution in one pass.
type LinkFailure struct {
	Errors []*ImportError
}

func (f *LinkFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "linking failed, %d incompatible import", len(f.Errors))
	if len(f.Errors) != 1 {
		b.WriteByte('s')
	}
	for _, e := range f.Errors {
		b.WriteString("\n\t")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Is lets callers match any LinkFailure with errors.Is.
func (f *LinkFailure) Is(target error) bool {
	_, ok := target.(*LinkFailure)
	return ok
}
