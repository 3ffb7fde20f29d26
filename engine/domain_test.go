package engine

import (
	"context"
	"testing"

	stderrors "errors"

	"github.com/inyutin/WAVM/errors"
	"github.com/inyutin/WAVM/linker"
	"github.com/inyutin/WAVM/wasm"
	"github.com/inyutin/WAVM/wat"
)

func compileWAT(t *testing.T, d *Domain, src string) *Compiled {
	t.Helper()
	desc, err := wat.Compile(src)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	c, err := d.Compile(context.Background(), desc)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return c
}

func declaredBindings(desc *wasm.Module) []linker.Binding {
	bs := make([]linker.Binding, len(desc.Imports))
	for i, imp := range desc.Imports {
		bs[i] = linker.Binding{Module: imp.Module, Name: imp.Name}
	}
	return bs
}

func TestCompileAndInstantiate(t *testing.T) {
	ctx := context.Background()
	d := NewDomain(ctx, DefaultConfig())
	defer d.Close(ctx)

	c := compileWAT(t, d, `(module
		(func (export "add") (param i32 i32) (result i32)
			local.get 0
			local.get 1
			i32.add))`)

	inst, err := d.Instantiate(ctx, c, "calc", nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	res, err := inst.ExportedFunction("add").Call(ctx, 2, 40)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res[0] != 42 {
		t.Fatalf("add(2, 40) = %d, want 42", res[0])
	}
	if d.Module("calc") == nil {
		t.Fatal("instance not registered under its name")
	}
}

func TestInstantiateBinary(t *testing.T) {
	ctx := context.Background()
	d := NewDomain(ctx, DefaultConfig())
	defer d.Close(ctx)

	desc, err := wat.Compile(`(module (func (export "id") (param i32) (result i32) local.get 0))`)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	inst, err := d.InstantiateBinary(ctx, "raw", desc.Encode())
	if err != nil {
		t.Fatalf("InstantiateBinary: %v", err)
	}
	res, err := inst.ExportedFunction("id").Call(ctx, 7)
	if err != nil || res[0] != 7 {
		t.Fatalf("id(7) = %v, %v", res, err)
	}
}

func TestRebindImports(t *testing.T) {
	ctx := context.Background()
	d := NewDomain(ctx, DefaultConfig())
	defer d.Close(ctx)

	// Provider registered under a name that differs from the declaration.
	provider := compileWAT(t, d, `(module (func (export "value") (result i32) i32.const 99))`)
	if _, err := d.Instantiate(ctx, provider, "provider", nil); err != nil {
		t.Fatalf("instantiate provider: %v", err)
	}

	consumer := compileWAT(t, d, `(module
		(import "lib" "get" (func $get (result i32)))
		(func (export "run") (result i32) call $get))`)

	inst, err := d.Instantiate(ctx, consumer, "consumer", []linker.Binding{
		{Module: "provider", Name: "value"},
	})
	if err != nil {
		t.Fatalf("Instantiate with rebinding: %v", err)
	}
	res, err := inst.ExportedFunction("run").Call(ctx)
	if err != nil || res[0] != 99 {
		t.Fatalf("run() = %v, %v, want 99", res, err)
	}
}

func TestRebindImportsUnchanged(t *testing.T) {
	desc, err := wat.Compile(`(module (import "env" "f" (func)))`)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	if got := rebindImports(desc, declaredBindings(desc)); got != nil {
		t.Fatal("expected nil for bindings matching the declarations")
	}
	rebound := rebindImports(desc, []linker.Binding{{Module: "other", Name: "g"}})
	if rebound == nil {
		t.Fatal("expected a rebound copy")
	}
	if rebound.Imports[0].Module != "other" || rebound.Imports[0].Name != "g" {
		t.Fatalf("rebound import = %s.%s", rebound.Imports[0].Module, rebound.Imports[0].Name)
	}
	if desc.Imports[0].Module != "env" || desc.Imports[0].Name != "f" {
		t.Fatal("original description mutated")
	}
}

func TestInstantiateBundleMismatchPanics(t *testing.T) {
	ctx := context.Background()
	d := NewDomain(ctx, DefaultConfig())
	defer d.Close(ctx)

	c := compileWAT(t, d, `(module (import "env" "f" (func)))`)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on bundle length mismatch")
		}
	}()
	d.Instantiate(ctx, c, "bad", nil)
}

func TestStartTrapIsRuntimeFault(t *testing.T) {
	ctx := context.Background()
	d := NewDomain(ctx, DefaultConfig())
	defer d.Close(ctx)

	c := compileWAT(t, d, `(module
		(func $boom unreachable)
		(start $boom))`)

	_, err := d.Instantiate(ctx, c, "trapper", nil)
	if err == nil {
		t.Fatal("expected start routine trap")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindTrap}) {
		t.Fatalf("want runtime trap, got %v", err)
	}
}

func TestMemoryLimit(t *testing.T) {
	ctx := context.Background()
	d := NewDomain(ctx, Config{MemoryLimitPages: 4})
	defer d.Close(ctx)

	desc, err := wat.Compile(`(module (memory 8))`)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	if _, err := d.Compile(ctx, desc); err == nil {
		t.Fatal("expected memory over the domain limit to be rejected")
	}

	small := compileWAT(t, d, `(module (memory (export "mem") 2))`)
	if _, err := d.Instantiate(ctx, small, "small", nil); err != nil {
		t.Fatalf("memory within the limit rejected: %v", err)
	}
}
