// Package errors carries the structured error type shared by the loading,
// linking, and execution pipeline.
package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the run pipeline the error occurred.
type Phase string

const (
	PhaseLoad        Phase = "load"        // reading source from disk
	PhaseParse       Phase = "parse"       // text to module description
	PhaseLink        Phase = "linking"     // import resolution
	PhaseInstantiate Phase = "instantiate" // binding the module in its domain
	PhaseRuntime     Phase = "runtime"     // guest execution
	PhaseInternal    Phase = "internal"    // defect in the driver itself
)

// Kind categorizes the error.
type Kind string

const (
	KindParseFailed   Kind = "parse_failed"
	KindTypeMismatch  Kind = "type_mismatch"
	KindInstantiation Kind = "instantiation"
	KindMissingEntry  Kind = "missing_entry"
	KindBadArity      Kind = "bad_arity"
	KindTrap          Kind = "trap"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error is the structured error used throughout the runner. Module/Name
// identify the object involved when one exists; Expected/Actual carry type
// renderings for mismatch reporting.
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Module   string
	Name     string
	Expected string
	Actual   string
	Detail   string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error (%s)", e.Phase, e.Kind)
	if e.Module != "" || e.Name != "" {
		fmt.Fprintf(&b, " at %s.%s", e.Module, e.Name)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Expected != "" {
		fmt.Fprintf(&b, ": expected %s", e.Expected)
		if e.Actual != "" {
			fmt.Fprintf(&b, ", got %s", e.Actual)
		}
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error when the phase and kind agree, treating empty
// fields on the target as wildcards.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return true
}

// New builds an Error with a formatted detail message.
func New(phase Phase, kind Kind, format string, args ...any) *Error {
	return &Error{Phase: phase, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Cause: cause, Detail: detail}
}

// Load reports a failure to read the module source.
func Load(path string, cause error) *Error {
	return &Error{Phase: PhaseLoad, Kind: KindNotFound, Name: path, Cause: cause, Detail: "cannot read module"}
}

// ParseFailed reports malformed source text.
func ParseFailed(path string, cause error) *Error {
	return &Error{Phase: PhaseParse, Kind: KindParseFailed, Name: path, Cause: cause, Detail: "parse failed"}
}

// TypeMismatch reports an import whose provided type disagrees with the
// declared one.
func TypeMismatch(module, name, expected, actual string) *Error {
	return &Error{
		Phase: PhaseLink, Kind: KindTypeMismatch,
		Module: module, Name: name,
		Expected: expected, Actual: actual,
	}
}

// Instantiation reports a bind-time failure from the runtime.
func Instantiation(name string, cause error) *Error {
	return &Error{Phase: PhaseInstantiate, Kind: KindInstantiation, Name: name, Cause: cause, Detail: "instantiation failed"}
}

// MissingEntry reports that no conventional entry export exists.
func MissingEntry(names ...string) *Error {
	return &Error{
		Phase: PhaseRuntime, Kind: KindMissingEntry,
		Detail: fmt.Sprintf("no entry point: expected an export named %s", strings.Join(names, " or ")),
	}
}

// BadArity reports an entry point with an unsupported parameter count.
func BadArity(name string, got int) *Error {
	return &Error{
		Phase: PhaseRuntime, Kind: KindBadArity, Name: name,
		Detail:   fmt.Sprintf("entry point has %d parameters", got),
		Expected: "0 or 2 parameters",
	}
}

// Trap reports a guest fault during start-routine or entry execution.
func Trap(name string, cause error) *Error {
	return &Error{Phase: PhaseRuntime, Kind: KindTrap, Name: name, Cause: cause, Detail: "guest trapped"}
}

// Internal reports a defect in the driver itself.
func Internal(detail string, cause error) *Error {
	return &Error{Phase: PhaseInternal, Kind: KindInternal, Cause: cause, Detail: detail}
}
