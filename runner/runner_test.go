package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeModule(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "module.wat")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func runModule(t *testing.T, src string, args ...string) (int, string) {
	t.Helper()
	var stderr bytes.Buffer
	code := Run(context.Background(), Config{
		Path:   writeModule(t, src),
		Args:   args,
		Stderr: &stderr,
	})
	return code, stderr.String()
}

func TestRunExitCodeFromResult(t *testing.T) {
	code, stderr := runModule(t, `(module (func (export "main") (result i32) i32.const 7))`)
	if code != 7 {
		t.Fatalf("exit code = %d, want 7; stderr: %s", code, stderr)
	}
}

func TestRunNoResultIsSuccess(t *testing.T) {
	code, stderr := runModule(t, `(module (func (export "main")))`)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, want %d; stderr: %s", code, ExitSuccess, stderr)
	}
}

func TestRunUnderscoreMainFallback(t *testing.T) {
	code, _ := runModule(t, `(module (func (export "_main") (result i32) i32.const 3))`)
	if code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
}

func TestRunMainPreferredOverUnderscoreMain(t *testing.T) {
	code, _ := runModule(t, `(module
		(func (export "main") (result i32) i32.const 1)
		(func (export "_main") (result i32) i32.const 2))`)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1 (from main)", code)
	}
}

func TestRunMissingEntry(t *testing.T) {
	code, stderr := runModule(t, `(module (func (export "helper")))`)
	if code != ExitFailure {
		t.Fatalf("exit code = %d, want failure", code)
	}
	if !strings.Contains(stderr, "main or _main") {
		t.Fatalf("stderr does not name the expected entry points: %s", stderr)
	}
}

func TestRunNonFuncMainIgnored(t *testing.T) {
	code, stderr := runModule(t, `(module (global (export "main") i32 (i32.const 0)))`)
	if code != ExitFailure || !strings.Contains(stderr, "main or _main") {
		t.Fatalf("code = %d, stderr = %s", code, stderr)
	}
}

func TestRunBadArity(t *testing.T) {
	code, stderr := runModule(t, `(module (func (export "main") (param i32)))`)
	if code != ExitFailure {
		t.Fatalf("exit code = %d, want failure", code)
	}
	if !strings.Contains(stderr, "0 or 2 parameters") {
		t.Fatalf("stderr does not state the supported arities: %s", stderr)
	}
}

func TestRunTrapFails(t *testing.T) {
	code, stderr := runModule(t, `(module (func (export "main") unreachable))`)
	if code != ExitFailure {
		t.Fatalf("exit code = %d, want failure", code)
	}
	if !strings.Contains(stderr, "trap") {
		t.Fatalf("stderr does not mention the trap: %s", stderr)
	}
}

func TestRunStubbedImportUncalled(t *testing.T) {
	code, stderr := runModule(t, `(module
		(import "mystery" "fn" (func $fn))
		(func (export "main") (result i32) i32.const 0))`)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d, want success; stderr: %s", code, stderr)
	}
}

func TestRunStubbedImportCalledTraps(t *testing.T) {
	code, _ := runModule(t, `(module
		(import "mystery" "fn" (func $fn))
		(func (export "main") call $fn))`)
	if code != ExitFailure {
		t.Fatalf("exit code = %d, want failure", code)
	}
}

func TestRunArgcArgv(t *testing.T) {
	src := `(module
		(import "env" "memory" (memory 256))
		(func (export "main") (param i32 i32) (result i32)
			local.get 0))`
	code, stderr := runModule(t, src, "alpha", "beta")
	if code != 3 {
		t.Fatalf("argc = %d, want 3 (module path plus two args); stderr: %s", code, stderr)
	}
}

func TestRunArgvContents(t *testing.T) {
	// Returns the first byte of argv[1].
	src := `(module
		(import "env" "memory" (memory 256))
		(func (export "main") (param i32 i32) (result i32)
			local.get 1
			i32.const 4
			i32.add
			i32.load
			i32.load8_u))`
	code, stderr := runModule(t, src, "Zebra")
	if code != 'Z' {
		t.Fatalf("first byte of argv[1] = %d, want %d; stderr: %s", code, 'Z', stderr)
	}
}

func TestRunArgsWithoutEnvironment(t *testing.T) {
	code, stderr := runModule(t, `(module
		(func (export "main") (param i32 i32) (result i32) local.get 0))`)
	if code != ExitFailure {
		t.Fatalf("exit code = %d, want failure", code)
	}
	if !strings.Contains(stderr, "argc") {
		t.Fatalf("stderr does not explain the missing environment: %s", stderr)
	}
}

func TestRunParseDiagnostics(t *testing.T) {
	code, stderr := runModule(t, `(module (func (export "main") i32.addd))`)
	if code != ExitFailure {
		t.Fatalf("exit code = %d, want failure", code)
	}
	if !strings.Contains(stderr, "i32.addd") {
		t.Fatalf("stderr does not show the diagnostic: %s", stderr)
	}
}

func TestRunMissingFile(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), Config{
		Path:   filepath.Join(t.TempDir(), "no-such.wat"),
		Stderr: &stderr,
	})
	if code != ExitFailure {
		t.Fatalf("exit code = %d, want failure", code)
	}
	if !strings.Contains(stderr.String(), "cannot read module") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}

func TestLoad(t *testing.T) {
	desc, err := Load(writeModule(t, `(module (func (export "main")))`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := desc.ExportNamed("main"); !ok {
		t.Fatal("parsed module missing its export")
	}
}

func TestSetFatalHandler(t *testing.T) {
	var got error
	SetFatalHandler(func(err error) { got = err })
	defer SetFatalHandler(nil)

	reportFatal(os.ErrClosed)
	if got != os.ErrClosed {
		t.Fatalf("handler received %v", got)
	}
}
