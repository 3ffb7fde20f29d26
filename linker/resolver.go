package linker

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/inyutin/WAVM/wasm"
)

// Resolver answers one import request at a time against a host module
// registry, delegating to the Synthesizer on any miss.
type Resolver struct {
	registry *Registry
	synth    *Synthesizer
}

// NewResolver pairs a registry with a synthesizer.
func NewResolver(registry *Registry, synth *Synthesizer) *Resolver {
	return &Resolver{registry: registry, synth: synth}
}

// Resolve finds an object satisfying the request. An unknown module name or
// a missing export is stubbed, never an error. A present export whose type
// does not structurally match hard-fails with both types in the outcome; no
// stub is substituted, since a mismatch signals genuine incompatibility that
// silent stubbing would mask.
func (r *Resolver) Resolve(ctx context.Context, moduleName, exportName string, expected ExternType) (Resolution, error) {
	host, ok := r.registry.Lookup(moduleName)
	if !ok {
		return r.stub(ctx, moduleName, exportName, expected)
	}

	actual, found := lookupExport(host, exportName)
	if !found {
		return r.stub(ctx, moduleName, exportName, expected)
	}
	if !expected.Matches(actual) {
		Logger().Debug("import type mismatch",
			zap.String("module", moduleName),
			zap.String("export", exportName),
			zap.Stringer("expected", expected),
			zap.Stringer("actual", actual))
		return Resolution{
			State:   Failed,
			Failure: &ImportError{Module: moduleName, Name: exportName, Expected: expected, Actual: &actual},
		}, nil
	}

	Logger().Debug("import resolved",
		zap.String("module", moduleName),
		zap.String("export", exportName))
	return Resolution{
		State:   Resolved,
		Binding: Binding{Module: host.Name(), Name: exportName},
	}, nil
}

func (r *Resolver) stub(ctx context.Context, moduleName, exportName string, expected ExternType) (Resolution, error) {
	b, err := r.synth.Synthesize(ctx, exportName, expected)
	if err != nil {
		return Resolution{}, err
	}
	Logger().Debug("import stubbed",
		zap.String("module", moduleName),
		zap.String("export", exportName))
	return Resolution{State: Stubbed, Binding: b}, nil
}

// lookupExport reports the capability type of a host export, searching every
// kind the runtime lets us observe. Tables and tags are not visible through
// the runtime's reflection surface, so requests for them always miss here
// and get stubbed.
func lookupExport(host HostInstance, name string) (ExternType, bool) {
	if def, ok := host.ExportedFunctionDefinitions()[name]; ok {
		return ExternType{Kind: wasm.KindFunc, Func: funcTypeOfDef(def)}, true
	}
	if def, ok := host.ExportedMemoryDefinitions()[name]; ok {
		limits := wasm.Limits{Min: def.Min()}
		if max, has := def.Max(); has {
			limits.Max = max
			limits.HasMax = true
		}
		return ExternType{Kind: wasm.KindMemory, Memory: limits}, true
	}
	if g := host.ExportedGlobal(name); g != nil {
		gt := wasm.GlobalType{Type: wasm.ValType(g.Type())}
		if _, mutable := g.(api.MutableGlobal); mutable {
			gt.Mutable = true
		}
		return ExternType{Kind: wasm.KindGlobal, Global: gt}, true
	}
	return ExternType{}, false
}

func funcTypeOfDef(def api.FunctionDefinition) wasm.FuncType {
	var ft wasm.FuncType
	for _, p := range def.ParamTypes() {
		ft.Params = append(ft.Params, wasm.ValType(p))
	}
	for _, r := range def.ResultTypes() {
		ft.Results = append(ft.Results, wasm.ValType(r))
	}
	return ft
}
