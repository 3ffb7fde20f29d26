package wat

import (
	"bytes"
	"errors"
	"testing"

	"github.com/inyutin/WAVM/wasm"
)

func compileOK(t *testing.T, source string) *wasm.Module {
	t.Helper()
	mod, err := Compile(source)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := mod.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return mod
}

func TestCompileAdd(t *testing.T) {
	mod := compileOK(t, `(module
		(func (export "add") (param i32 i32) (result i32)
			local.get 0
			local.get 1
			i32.add
		)
	)`)

	if len(mod.Funcs) != 1 || len(mod.Code) != 1 {
		t.Fatalf("expected one function, got %d/%d", len(mod.Funcs), len(mod.Code))
	}
	want := []byte{0x20, 0x00, 0x20, 0x01, 0x6A, 0x0B}
	if !bytes.Equal(mod.Code[0].Code, want) {
		t.Errorf("body mismatch\n got % x\nwant % x", mod.Code[0].Code, want)
	}
	exp, ok := mod.ExportNamed("add")
	if !ok || exp.Kind != wasm.KindFunc || exp.Index != 0 {
		t.Errorf("bad export: %+v ok=%v", exp, ok)
	}
	ft, _ := mod.FuncTypeOf(0)
	if !ft.Equal(wasm.FuncType{Params: []wasm.ValType{wasm.I32, wasm.I32}, Results: []wasm.ValType{wasm.I32}}) {
		t.Errorf("bad signature %s", ft)
	}
}

func TestCompileNamedReferences(t *testing.T) {
	mod := compileOK(t, `(module
		(func $caller (export "caller") (result i32)
			call $answer
		)
		(func $answer (result i32)
			i32.const 42
		)
	)`)

	// forward call resolves to index 1
	want := []byte{0x10, 0x01, 0x0B}
	if !bytes.Equal(mod.Code[0].Code, want) {
		t.Errorf("caller body % x, want % x", mod.Code[0].Code, want)
	}
}

func TestCompileImports(t *testing.T) {
	mod := compileOK(t, `(module
		(import "env" "log" (func $log (param i32)))
		(import "env" "memory" (memory 1 4))
		(import "env" "table" (table 2 funcref))
		(import "env" "base" (global $base i32))
		(func (export "run")
			global.get $base
			call $log
		)
	)`)

	if len(mod.Imports) != 4 {
		t.Fatalf("expected 4 imports, got %d", len(mod.Imports))
	}
	if mod.Imports[0].Kind != wasm.KindFunc || mod.Imports[0].Module != "env" || mod.Imports[0].Name != "log" {
		t.Errorf("import 0: %+v", mod.Imports[0])
	}
	if m := mod.Imports[1]; m.Kind != wasm.KindMemory || m.Memory.Min != 1 || !m.Memory.HasMax || m.Memory.Max != 4 {
		t.Errorf("import 1: %+v", m)
	}
	if tb := mod.Imports[2]; tb.Kind != wasm.KindTable || tb.Table.Elem != wasm.FuncRef || tb.Table.Limits.Min != 2 {
		t.Errorf("import 2: %+v", tb)
	}
	if g := mod.Imports[3]; g.Kind != wasm.KindGlobal || g.Global.Type != wasm.I32 || g.Global.Mutable {
		t.Errorf("import 3: %+v", g)
	}
	// body: global.get 0, call 0, end
	want := []byte{0x23, 0x00, 0x10, 0x00, 0x0B}
	if !bytes.Equal(mod.Code[0].Code, want) {
		t.Errorf("body % x, want % x", mod.Code[0].Code, want)
	}
}

func TestCompileInlineImport(t *testing.T) {
	mod := compileOK(t, `(module
		(func $abort (import "env" "abort") (param i32))
		(func (export "main") (result i32)
			i32.const 1
			call $abort
			i32.const 0
		)
	)`)

	if len(mod.Imports) != 1 || mod.Imports[0].Name != "abort" {
		t.Fatalf("imports: %+v", mod.Imports)
	}
	if mod.NumImportedFuncs() != 1 || len(mod.Funcs) != 1 {
		t.Errorf("func spaces: %d imported, %d defined", mod.NumImportedFuncs(), len(mod.Funcs))
	}
}

func TestCompileGlobalsMemoryData(t *testing.T) {
	mod := compileOK(t, `(module
		(memory (export "memory") 1)
		(global $counter (mut i32) (i32.const 0))
		(global $limit i64 (i64.const 100))
		(data (i32.const 8) "hello\00")
		(func (export "bump") (result i32)
			global.get $counter
			i32.const 1
			i32.add
			global.set $counter
			global.get $counter
		)
	)`)

	if len(mod.Memories) != 1 || mod.Memories[0].Min != 1 {
		t.Errorf("memories: %+v", mod.Memories)
	}
	if len(mod.Globals) != 2 || !mod.Globals[0].Type.Mutable || mod.Globals[1].Type.Mutable {
		t.Errorf("globals: %+v", mod.Globals)
	}
	if !bytes.Equal(mod.Globals[1].Init, []byte{0x42, 0xE4, 0x00, 0x0B}) {
		t.Errorf("global 1 init: % x", mod.Globals[1].Init)
	}
	if len(mod.Data) != 1 || !bytes.Equal(mod.Data[0].Bytes, []byte("hello\x00")) {
		t.Errorf("data: %+v", mod.Data)
	}
}

func TestCompileTableElemStart(t *testing.T) {
	mod := compileOK(t, `(module
		(table 4 funcref)
		(elem (i32.const 0) $init $init)
		(start $init)
		(func $init)
	)`)

	if len(mod.Tables) != 1 || mod.Tables[0].Limits.Min != 4 {
		t.Errorf("tables: %+v", mod.Tables)
	}
	if len(mod.Elements) != 1 || len(mod.Elements[0].Funcs) != 2 {
		t.Fatalf("elements: %+v", mod.Elements)
	}
	if mod.Start == nil || *mod.Start != 0 {
		t.Errorf("start: %v", mod.Start)
	}
}

func TestCompileControlFlow(t *testing.T) {
	mod := compileOK(t, `(module
		(func (export "countdown") (param i32) (result i32)
			(local $acc i32)
			block $done
				loop $top
					local.get 0
					i32.eqz
					br_if $done
					local.get $acc
					local.get 0
					i32.add
					local.set $acc
					local.get 0
					i32.const 1
					i32.sub
					local.set 0
					br $top
				end
			end
			local.get $acc
		)
	)`)

	code := mod.Code[0].Code
	want := []byte{
		0x02, 0x40, // block
		0x03, 0x40, // loop
		0x20, 0x00, 0x45, 0x0D, 0x01, // local.get 0; i32.eqz; br_if 1
		0x20, 0x01, 0x20, 0x00, 0x6A, 0x21, 0x01, // acc += n
		0x20, 0x00, 0x41, 0x01, 0x6B, 0x21, 0x00, // n -= 1
		0x0C, 0x00, // br 0
		0x0B, 0x0B, // end loop, end block
		0x20, 0x01, // local.get acc
		0x0B, // end func
	}
	if !bytes.Equal(code, want) {
		t.Errorf("body mismatch\n got % x\nwant % x", code, want)
	}
	if len(mod.Code[0].Locals) != 1 || mod.Code[0].Locals[0].Type != wasm.I32 {
		t.Errorf("locals: %+v", mod.Code[0].Locals)
	}
}

func TestCompileFoldedInstructions(t *testing.T) {
	flat := compileOK(t, `(module
		(func (export "f") (param i32) (result i32)
			local.get 0
			i32.const 2
			i32.mul
		)
	)`)
	folded := compileOK(t, `(module
		(func (export "f") (param i32) (result i32)
			(i32.mul (local.get 0) (i32.const 2))
		)
	)`)
	if !bytes.Equal(flat.Code[0].Code, folded.Code[0].Code) {
		t.Errorf("folded form differs\nflat   % x\nfolded % x", flat.Code[0].Code, folded.Code[0].Code)
	}
}

func TestCompileFoldedIf(t *testing.T) {
	mod := compileOK(t, `(module
		(func (export "sign") (param i32) (result i32)
			(if (result i32) (i32.lt_s (local.get 0) (i32.const 0))
				(then (i32.const -1))
				(else (i32.const 1))
			)
		)
	)`)

	want := []byte{
		0x20, 0x00, 0x41, 0x00, 0x48, // condition
		0x04, 0x7F, // if (result i32)
		0x41, 0x7F, // i32.const -1
		0x05,       // else
		0x41, 0x01, // i32.const 1
		0x0B, 0x0B, // end if, end func
	}
	if !bytes.Equal(mod.Code[0].Code, want) {
		t.Errorf("body mismatch\n got % x\nwant % x", mod.Code[0].Code, want)
	}
}

func TestCompileMemoryAccess(t *testing.T) {
	mod := compileOK(t, `(module
		(memory 1)
		(func (export "peek") (param i32) (result i32)
			local.get 0
			i32.load offset=4
		)
		(func (export "poke") (param i32 i32)
			local.get 0
			local.get 1
			i32.store8
		)
	)`)

	if want := []byte{0x20, 0x00, 0x28, 0x02, 0x04, 0x0B}; !bytes.Equal(mod.Code[0].Code, want) {
		t.Errorf("peek body % x, want % x", mod.Code[0].Code, want)
	}
	if want := []byte{0x20, 0x00, 0x20, 0x01, 0x3A, 0x00, 0x00, 0x0B}; !bytes.Equal(mod.Code[1].Code, want) {
		t.Errorf("poke body % x, want % x", mod.Code[1].Code, want)
	}
}

func TestCompileExplicitTypes(t *testing.T) {
	mod := compileOK(t, `(module
		(type $binop (func (param i32 i32) (result i32)))
		(table 1 funcref)
		(func (export "apply") (param i32 i32 i32) (result i32)
			local.get 1
			local.get 2
			local.get 0
			call_indirect (type $binop)
		)
	)`)

	if len(mod.Types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(mod.Types))
	}
	// call_indirect encodes type index 0 and table index 0
	code := mod.Code[0].Code
	tail := []byte{0x11, 0x00, 0x00, 0x0B}
	if !bytes.HasSuffix(code, tail) {
		t.Errorf("call_indirect tail missing: % x", code)
	}
}

func TestCompileTagImport(t *testing.T) {
	mod := compileOK(t, `(module
		(import "env" "cpp_exception" (tag $exn (param i32)))
		(func (export "noop"))
	)`)

	if len(mod.Imports) != 1 || mod.Imports[0].Kind != wasm.KindTag {
		t.Fatalf("imports: %+v", mod.Imports)
	}
	ft := mod.Types[mod.Imports[0].TypeIndex]
	if !ft.Equal(wasm.FuncType{Params: []wasm.ValType{wasm.I32}}) {
		t.Errorf("tag signature %s", ft)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantMsg string
	}{
		{
			name:    "unterminated string",
			source:  "(module (import \"env\n",
			wantMsg: "unterminated string",
		},
		{
			name:    "unknown instruction",
			source:  `(module (func i32.frobnicate))`,
			wantMsg: "unknown instruction",
		},
		{
			name:    "unknown local",
			source:  `(module (func local.get $missing))`,
			wantMsg: `unknown local "$missing"`,
		},
		{
			name:    "unknown func in call",
			source:  `(module (func call $nothing))`,
			wantMsg: `unknown func "$nothing"`,
		},
		{
			name:    "import after definition",
			source:  `(module (func) (import "env" "f" (func)))`,
			wantMsg: "import after func definition",
		},
		{
			name:    "bad field",
			source:  `(module (widget))`,
			wantMsg: `unknown module field "widget"`,
		},
		{
			name:    "signature disagreement",
			source:  `(module (type (func)) (func (type 0) (param i32)))`,
			wantMsg: "disagrees with type 0",
		},
		{
			name:    "garbage after module",
			source:  `(module) extra`,
			wantMsg: "after module",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.source)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantMsg)
			}
			var list ErrorList
			if !errors.As(err, &list) || len(list) == 0 {
				t.Fatalf("expected ErrorList, got %T: %v", err, err)
			}
			found := false
			for _, e := range list {
				if containsStr(e.Message, tc.wantMsg) {
					found = true
					if e.Line <= 0 {
						t.Errorf("diagnostic missing line: %+v", e)
					}
				}
			}
			if !found {
				t.Errorf("no diagnostic containing %q in %v", tc.wantMsg, err)
			}
		})
	}
}

func TestCompileCollectsMultipleErrors(t *testing.T) {
	_, err := Compile(`(module
		(func (export "a") i32.bogus)
		(func (export "b") local.get $nope)
	)`)
	if err == nil {
		t.Fatal("expected errors")
	}
	var list ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("expected ErrorList, got %T", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d: %v", len(list), list)
	}
	if list[0].Line >= list[1].Line {
		t.Errorf("diagnostics out of order: %v", list)
	}
}

func containsStr(haystack, needle string) bool {
	return bytes.Contains([]byte(haystack), []byte(needle))
}
