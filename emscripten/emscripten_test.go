package emscripten

import (
	"context"
	"testing"

	"github.com/inyutin/WAVM/engine"
	"github.com/inyutin/WAVM/linker"
	"github.com/inyutin/WAVM/wat"
)

func newEnv(t *testing.T) (*engine.Domain, *Instance) {
	t.Helper()
	ctx := context.Background()
	d := engine.NewDomain(ctx, engine.DefaultConfig())
	t.Cleanup(func() { d.Close(ctx) })
	inst, err := Instantiate(ctx, d, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return d, inst
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"env import", `(module (import "env" "abort" (func (param i32))))`, true},
		{"asm2wasm import", `(module (import "asm2wasm" "f64-rem" (func (param f64 f64) (result f64))))`, true},
		{"global import", `(module (import "global" "NaN" (global f64)))`, true},
		{"no imports", `(module (func (export "main")))`, false},
		{"other module", `(module (import "wasi" "clock" (func (result i64))))`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := wat.Compile(tt.src)
			if err != nil {
				t.Fatalf("wat.Compile: %v", err)
			}
			if got := Detect(desc); got != tt.want {
				t.Fatalf("Detect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnvironmentShape(t *testing.T) {
	_, inst := newEnv(t)

	if inst.Memory() == nil {
		t.Fatal("env has no memory")
	}
	if got := inst.Memory().Size(); got != memoryPages*65536 {
		t.Fatalf("memory size = %d, want %d", got, memoryPages*65536)
	}

	reg := linker.NewRegistry()
	inst.Register(reg)
	if reg.Len() != 3 {
		t.Fatalf("registered %d modules, want env, asm2wasm, global", reg.Len())
	}
	for _, name := range []string{"env", "asm2wasm", "global"} {
		if _, ok := reg.Lookup(name); !ok {
			t.Fatalf("module %q not registered", name)
		}
	}

	if inst.env.ExportedGlobal("STACKTOP") == nil {
		t.Fatal("env does not export STACKTOP")
	}
	if inst.env.ExportedFunction("abort") == nil {
		t.Fatal("env does not export abort")
	}
}

func TestInjectArgs(t *testing.T) {
	ctx := context.Background()
	_, inst := newEnv(t)

	vals, err := inst.InjectArgs(ctx, nil, []string{"prog.wat", "hello"})
	if err != nil {
		t.Fatalf("InjectArgs: %v", err)
	}
	if len(vals) != 2 {
		t.Fatalf("got %d values, want argc and argv", len(vals))
	}
	if vals[0] != 2 {
		t.Fatalf("argc = %d, want 2", vals[0])
	}

	mem := inst.Memory()
	argv := uint32(vals[1])
	for i, want := range []string{"prog.wat", "hello"} {
		ptr, ok := mem.ReadUint32Le(argv + uint32(i)*4)
		if !ok || ptr == 0 {
			t.Fatalf("argv[%d] unreadable", i)
		}
		got, ok := mem.Read(ptr, uint32(len(want)+1))
		if !ok {
			t.Fatalf("argv[%d] string unreadable", i)
		}
		if string(got[:len(want)]) != want || got[len(want)] != 0 {
			t.Fatalf("argv[%d] = %q, want %q with NUL terminator", i, got, want)
		}
	}
	if term, ok := mem.ReadUint32Le(argv + 8); !ok || term != 0 {
		t.Fatalf("argv terminator = %d, want 0", term)
	}
}

func TestAbortTraps(t *testing.T) {
	ctx := context.Background()
	_, inst := newEnv(t)

	_, err := inst.env.ExportedFunction("abort").Call(ctx, 13)
	if err == nil {
		t.Fatal("abort did not trap")
	}
}

func TestAsm2wasmIntrinsics(t *testing.T) {
	ctx := context.Background()
	d, _ := newEnv(t)

	desc, err := wat.Compile(`(module
		(import "asm2wasm" "f64-to-int" (func $f2i (param f64) (result i32)))
		(func (export "trunc") (param f64) (result i32)
			local.get 0
			call $f2i))`)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	guest, err := d.InstantiateBinary(ctx, "guest", desc.Encode())
	if err != nil {
		t.Fatalf("instantiate guest: %v", err)
	}
	res, err := guest.ExportedFunction("trunc").Call(ctx, uint64(0x4045000000000000)) // 42.0
	if err != nil || res[0] != 42 {
		t.Fatalf("trunc(42.0) = %v, %v", res, err)
	}
}

func TestInitializeGlobals(t *testing.T) {
	ctx := context.Background()
	d, _ := newEnv(t)

	desc, err := wat.Compile(`(module
		(global $flag (mut i32) (i32.const 0))
		(func (export "__GLOBAL__sub_I_init")
			i32.const 1
			global.set $flag)
		(func (export "flag") (result i32) global.get $flag))`)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	guest, err := d.InstantiateBinary(ctx, "init-guest", desc.Encode())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	if err := InitializeGlobals(ctx, desc, guest); err != nil {
		t.Fatalf("InitializeGlobals: %v", err)
	}
	res, err := guest.ExportedFunction("flag").Call(ctx)
	if err != nil || res[0] != 1 {
		t.Fatalf("flag = %v, %v, want 1", res, err)
	}
}

func TestInitializeGlobalsSkipsNonNullary(t *testing.T) {
	ctx := context.Background()
	d, _ := newEnv(t)

	desc, err := wat.Compile(`(module
		(func (export "__GLOBAL__takes_arg") (param i32)))`)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	guest, err := d.InstantiateBinary(ctx, "skip-guest", desc.Encode())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if err := InitializeGlobals(ctx, desc, guest); err != nil {
		t.Fatalf("InitializeGlobals should skip, got %v", err)
	}
}
