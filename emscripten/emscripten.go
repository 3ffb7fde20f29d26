// Package emscripten provides the embedded convenience environment that
// emscripten-compiled programs expect: the "env" module with its memory,
// table, and runtime globals, the "asm2wasm" math intrinsics, and the
// "global" constants module. It also materializes command-line arguments
// into guest memory and runs C++-style global initializers.
package emscripten

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/inyutin/WAVM/engine"
	"github.com/inyutin/WAVM/errors"
	"github.com/inyutin/WAVM/linker"
	"github.com/inyutin/WAVM/wasm"
)

// Memory layout constants for the synthesized env module, following the
// classic asm.js-style static layout: globals and static data below the
// stack, heap above it.
const (
	memoryPages   = 256 // 16 MiB
	tableSize     = 1024
	memoryBase    = 1024
	stackTop      = 0x10000
	stackMax      = 0x80000
	heapBase      = 0x80000
	dynamicTopPtr = 0xFF00 // memory slot holding the current heap end
	tempDoubleSlot = 0xFF10
)

const hostModuleName = "emscripten.host"

// Detect reports whether the module's shape indicates it expects the
// emscripten environment.
func Detect(desc *wasm.Module) bool {
	return desc.ImportsFrom("env") || desc.ImportsFrom("asm2wasm") || desc.ImportsFrom("global")
}

// Instance is the instantiated environment. Its sub-modules are registered
// by name so import resolution can bind against them.
type Instance struct {
	env      api.Module
	asm2wasm api.Module
	global   api.Module
	memory   api.Memory

	heap uint32 // bump allocator cursor for argument injection
}

// Instantiate builds the environment inside the domain. The env module is a
// synthesized wasm module (so it can export memory, table, and globals);
// its functions are host functions re-exported from an internal host module.
func Instantiate(ctx context.Context, domain *engine.Domain, desc *wasm.Module) (*Instance, error) {
	if _, err := instantiateHostFuncs(ctx, domain); err != nil {
		return nil, errors.Instantiation(hostModuleName, err)
	}

	envDesc := buildEnvModule()
	if err := envDesc.Validate(); err != nil {
		return nil, errors.Internal("env module does not validate", err)
	}
	env, err := domain.InstantiateBinary(ctx, "env", envDesc.Encode())
	if err != nil {
		return nil, errors.Instantiation("env", err)
	}

	asm2wasm, err := instantiateAsm2wasm(ctx, domain)
	if err != nil {
		return nil, errors.Instantiation("asm2wasm", err)
	}

	globalDesc := buildGlobalModule()
	if err := globalDesc.Validate(); err != nil {
		return nil, errors.Internal("global module does not validate", err)
	}
	global, err := domain.InstantiateBinary(ctx, "global", globalDesc.Encode())
	if err != nil {
		return nil, errors.Instantiation("global", err)
	}

	inst := &Instance{
		env:      env,
		asm2wasm: asm2wasm,
		global:   global,
		memory:   env.ExportedMemory("memory"),
		heap:     heapBase,
	}
	inst.memory.WriteUint32Le(dynamicTopPtr, uint32(memoryPages*65536))

	engine.Logger().Debug("emscripten environment instantiated",
		zap.Uint32("memory_pages", memoryPages),
		zap.Uint32("stack_top", stackTop))
	return inst, nil
}

// Register places the environment's sub-modules into the host registry
// under the names guests import them by.
func (inst *Instance) Register(reg *linker.Registry) {
	reg.Register("env", inst.env)
	reg.Register("asm2wasm", inst.asm2wasm)
	reg.Register("global", inst.global)
}

// Memory returns the environment's linear memory.
func (inst *Instance) Memory() api.Memory { return inst.memory }

// InjectArgs materializes argument strings into guest-visible memory using
// the (argc, argv) convention: NUL-terminated strings plus a null-terminated
// pointer array. The returned values are ready to pass to a 2-parameter
// entry point. Strings land in the memory the target actually sees: its own
// exported memory when it has one, the environment's otherwise.
func (inst *Instance) InjectArgs(ctx context.Context, target api.Module, args []string) ([]uint64, error) {
	mem := inst.memory
	if target != nil {
		if m := target.ExportedMemory("memory"); m != nil {
			mem = m
		}
	}

	ptrs := make([]uint32, 0, len(args)+1)
	for _, arg := range args {
		ptr := inst.alloc(uint32(len(arg)) + 1)
		if !mem.Write(ptr, append([]byte(arg), 0)) {
			return nil, errors.Internal(fmt.Sprintf("argument %q does not fit in guest memory", arg), nil)
		}
		ptrs = append(ptrs, ptr)
	}
	ptrs = append(ptrs, 0)

	argv := inst.alloc(uint32(len(ptrs)) * 4)
	for i, p := range ptrs {
		if !mem.WriteUint32Le(argv+uint32(i)*4, p) {
			return nil, errors.Internal("argument vector does not fit in guest memory", nil)
		}
	}
	return []uint64{uint64(len(args)), uint64(argv)}, nil
}

func (inst *Instance) alloc(n uint32) uint32 {
	ptr := inst.heap
	inst.heap += (n + 3) &^ 3
	return ptr
}

// InitializeGlobals invokes the module's C++-style global initializers:
// every nullary exported function whose name starts with "__GLOBAL__", in
// export order, then the stack setup hook when present.
func InitializeGlobals(ctx context.Context, desc *wasm.Module, instance api.Module) error {
	for _, exp := range desc.Exports {
		if exp.Kind != wasm.KindFunc || !strings.HasPrefix(exp.Name, "__GLOBAL__") {
			continue
		}
		ft, ok := desc.FuncTypeOf(exp.Index)
		if !ok || len(ft.Params) != 0 {
			continue
		}
		if _, err := instance.ExportedFunction(exp.Name).Call(ctx); err != nil {
			return errors.Trap(exp.Name, err)
		}
	}
	if fn := instance.ExportedFunction("establishStackSpace"); fn != nil {
		def := fn.Definition()
		if len(def.ParamTypes()) == 2 {
			if _, err := fn.Call(ctx, stackTop, stackMax); err != nil {
				return errors.Trap("establishStackSpace", err)
			}
		}
	}
	return nil
}

// instantiateHostFuncs builds the internal host module backing the env
// functions.
func instantiateHostFuncs(ctx context.Context, domain *engine.Domain) (api.Module, error) {
	b := domain.Runtime().NewHostModuleBuilder(hostModuleName)

	i32 := api.ValueTypeI32

	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostAbort), []api.ValueType{i32}, nil).
		Export("abort")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			panic("abort()")
		}), nil, nil).
		Export("_abort")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostTime), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("_time")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostMemcpyBig), []api.ValueType{i32, i32, i32}, []api.ValueType{i32}).
		Export("_emscripten_memcpy_big")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostPutchar), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("_putchar")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostPuts), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("_puts")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			// ___setErrNo: errno slot is static data we do not model
			stack[0] = 0
		}), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("___setErrNo")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			stack[0] = uint64(memoryPages * 65536)
		}), nil, []api.ValueType{i32}).
		Export("getTotalMemory")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			panic("cannot grow memory")
		}), []api.ValueType{i32}, []api.ValueType{i32}).
		Export("abortOnCannotGrowMemory")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			panic(fmt.Sprintf("invalid function pointer called with signature 'ii' (%d)", int32(stack[0])))
		}), []api.ValueType{i32}, nil).
		Export("nullFunc_ii")

	return b.Instantiate(ctx)
}

func instantiateAsm2wasm(ctx context.Context, domain *engine.Domain) (api.Module, error) {
	b := domain.Runtime().NewHostModuleBuilder("asm2wasm")
	f64 := api.ValueTypeF64
	i32 := api.ValueTypeI32

	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			x := api.DecodeF64(stack[0])
			y := api.DecodeF64(stack[1])
			stack[0] = api.EncodeF64(math.Mod(x, y))
		}), []api.ValueType{f64, f64}, []api.ValueType{f64}).
		Export("f64-rem")
	b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(int32(api.DecodeF64(stack[0])))
		}), []api.ValueType{f64}, []api.ValueType{i32}).
		Export("f64-to-int")

	return b.Instantiate(ctx)
}

func hostAbort(ctx context.Context, mod api.Module, stack []uint64) {
	panic(fmt.Sprintf("abort(%d)", int32(stack[0])))
}

func nowUnix() int64 { return time.Now().Unix() }

func hostTime(ctx context.Context, mod api.Module, stack []uint64) {
	now := uint32(nowUnix())
	if ptr := uint32(stack[0]); ptr != 0 {
		mod.Memory().WriteUint32Le(ptr, now)
	}
	stack[0] = uint64(now)
}

func hostMemcpyBig(ctx context.Context, mod api.Module, stack []uint64) {
	dst, src, n := uint32(stack[0]), uint32(stack[1]), uint32(stack[2])
	if buf, ok := mod.Memory().Read(src, n); ok {
		mod.Memory().Write(dst, buf)
	}
	stack[0] = uint64(dst)
}

func hostPutchar(ctx context.Context, mod api.Module, stack []uint64) {
	c := byte(stack[0])
	os.Stdout.Write([]byte{c})
	stack[0] = stack[0] & 0xFF
}

func hostPuts(ctx context.Context, mod api.Module, stack []uint64) {
	ptr := uint32(stack[0])
	mem := mod.Memory()
	var out []byte
	for {
		b, ok := mem.ReadByte(ptr)
		if !ok || b == 0 {
			break
		}
		out = append(out, b)
		ptr++
	}
	out = append(out, '\n')
	os.Stdout.Write(out)
	stack[0] = uint64(len(out))
}

// buildEnvModule synthesizes the wasm description of the "env" module:
// memory, table, and runtime globals defined locally, functions imported
// from the internal host module and re-exported under their public names.
func buildEnvModule() *wasm.Module {
	m := &wasm.Module{}

	funcs := []struct {
		name   string
		params []wasm.ValType
		result []wasm.ValType
	}{
		{"abort", []wasm.ValType{wasm.I32}, nil},
		{"_abort", nil, nil},
		{"_time", []wasm.ValType{wasm.I32}, []wasm.ValType{wasm.I32}},
		{"_emscripten_memcpy_big", []wasm.ValType{wasm.I32, wasm.I32, wasm.I32}, []wasm.ValType{wasm.I32}},
		{"_putchar", []wasm.ValType{wasm.I32}, []wasm.ValType{wasm.I32}},
		{"_puts", []wasm.ValType{wasm.I32}, []wasm.ValType{wasm.I32}},
		{"___setErrNo", []wasm.ValType{wasm.I32}, []wasm.ValType{wasm.I32}},
		{"getTotalMemory", nil, []wasm.ValType{wasm.I32}},
		{"abortOnCannotGrowMemory", []wasm.ValType{wasm.I32}, []wasm.ValType{wasm.I32}},
		{"nullFunc_ii", []wasm.ValType{wasm.I32}, nil},
	}
	for i, f := range funcs {
		ti := m.AddType(wasm.FuncType{Params: f.params, Results: f.result})
		m.Imports = append(m.Imports, wasm.Import{
			Module: hostModuleName, Name: f.name, Kind: wasm.KindFunc, TypeIndex: ti,
		})
		m.Exports = append(m.Exports, wasm.Export{Name: f.name, Kind: wasm.KindFunc, Index: uint32(i)})
	}

	m.Memories = []wasm.Limits{{Min: memoryPages, Max: memoryPages, HasMax: true}}
	m.Exports = append(m.Exports, wasm.Export{Name: "memory", Kind: wasm.KindMemory, Index: 0})

	m.Tables = []wasm.TableType{{Elem: wasm.FuncRef, Limits: wasm.Limits{Min: tableSize}}}
	m.Exports = append(m.Exports, wasm.Export{Name: "table", Kind: wasm.KindTable, Index: 0})

	globals := []struct {
		name  string
		value int32
	}{
		{"memoryBase", memoryBase},
		{"__memory_base", memoryBase},
		{"tableBase", 0},
		{"__table_base", 0},
		{"STACKTOP", stackTop},
		{"STACK_MAX", stackMax},
		{"DYNAMICTOP_PTR", dynamicTopPtr},
		{"tempDoublePtr", tempDoubleSlot},
		{"ABORT", 0},
	}
	for i, g := range globals {
		init := []byte{wasm.OpI32Const}
		init = wasm.AppendSleb128(init, int64(g.value))
		init = append(init, wasm.OpEnd)
		m.Globals = append(m.Globals, wasm.Global{
			Type: wasm.GlobalType{Type: wasm.I32},
			Init: init,
		})
		m.Exports = append(m.Exports, wasm.Export{Name: g.name, Kind: wasm.KindGlobal, Index: uint32(i)})
	}

	return m
}

// buildGlobalModule synthesizes the "global" module holding the JavaScript
// numeric constants asm.js-era modules import.
func buildGlobalModule() *wasm.Module {
	m := &wasm.Module{}
	for _, g := range []struct {
		name string
		bits uint64
	}{
		{"NaN", math.Float64bits(math.NaN())},
		{"Infinity", math.Float64bits(math.Inf(1))},
	} {
		init := []byte{wasm.OpF64Const}
		for shift := 0; shift < 64; shift += 8 {
			init = append(init, byte(g.bits>>shift))
		}
		init = append(init, wasm.OpEnd)
		idx := uint32(len(m.Globals))
		m.Globals = append(m.Globals, wasm.Global{
			Type: wasm.GlobalType{Type: wasm.F64},
			Init: init,
		})
		m.Exports = append(m.Exports, wasm.Export{Name: g.name, Kind: wasm.KindGlobal, Index: idx})
	}
	return m
}
