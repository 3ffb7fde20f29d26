package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorRendering(t *testing.T) {
	err := TypeMismatch("env", "abort", "(func (param i32))", "(func (param i64))")
	msg := err.Error()
	for _, want := range []string{"linking", "type_mismatch", "env.abort", "(func (param i32))", "(func (param i64))"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestErrorIsMatchesPhaseAndKind(t *testing.T) {
	err := Trap("main", fmt.Errorf("unreachable"))
	if !stderrors.Is(err, &Error{Phase: PhaseRuntime, Kind: KindTrap}) {
		t.Error("expected match on phase+kind")
	}
	if !stderrors.Is(err, &Error{Kind: KindTrap}) {
		t.Error("expected match on kind wildcard")
	}
	if stderrors.Is(err, &Error{Kind: KindBadArity}) {
		t.Error("unexpected match on different kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := Load("/tmp/m.wat", cause)
	if !stderrors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
}

func TestMissingEntryNamesAll(t *testing.T) {
	err := MissingEntry("main", "_main")
	if !strings.Contains(err.Error(), "main or _main") {
		t.Errorf("message %q does not name the candidates", err)
	}
}
