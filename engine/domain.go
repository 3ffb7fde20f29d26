package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/inyutin/WAVM/errors"
	"github.com/inyutin/WAVM/linker"
	"github.com/inyutin/WAVM/wasm"
)

// Config controls domain construction.
type Config struct {
	// MemoryLimitPages caps every linear memory in the domain, in 64 KiB
	// pages. Zero means the runtime default.
	MemoryLimitPages uint32
}

// DefaultConfig returns the default domain configuration.
func DefaultConfig() Config {
	return Config{}
}

// Domain is an isolated execution namespace backed by one wazero runtime.
// All instances created through it are torn down together by Close.
type Domain struct {
	runtime wazero.Runtime
}

// NewDomain creates a fresh domain.
func NewDomain(ctx context.Context, cfg Config) *Domain {
	rc := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Domain{runtime: wazero.NewRuntimeWithConfig(ctx, rc)}
}

// Runtime exposes the underlying wazero runtime, used by collaborators that
// build host modules into the domain.
func (d *Domain) Runtime() wazero.Runtime { return d.runtime }

// Compiled pairs a module description with its compiled form.
type Compiled struct {
	Desc   *wasm.Module
	module wazero.CompiledModule
}

// Compile encodes and compiles a module description. Compilation is
// deterministic over a valid description; failure indicates the description
// violates constraints the structural validator does not check.
func (d *Domain) Compile(ctx context.Context, desc *wasm.Module) (*Compiled, error) {
	bin := desc.Encode()
	cm, err := d.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindInstantiation, err, "compile failed")
	}
	Logger().Debug("module compiled",
		zap.Int("bytes", len(bin)),
		zap.Int("imports", len(desc.Imports)))
	return &Compiled{Desc: desc, module: cm}, nil
}

// InstantiateBinary compiles raw module bytes and instantiates them under
// the given instance name. The linker's stub synthesizer runs its miniature
// modules through this, the same path ordinary modules take.
func (d *Domain) InstantiateBinary(ctx context.Context, name string, bin []byte) (api.Module, error) {
	return d.runtime.InstantiateWithConfig(ctx, bin, instanceConfig(name))
}

// Instantiate creates the live instance of a compiled module inside the
// domain, its imports redirected to the bound objects. The bundle must be
// positionally aligned with the description's import list; a length mismatch
// is a programming error, not a user-facing failure.
//
// The module's start routine, when declared, runs during instantiation; a
// trap there comes back as a runtime fault rather than an instantiation
// failure.
func (d *Domain) Instantiate(ctx context.Context, c *Compiled, name string, bindings []linker.Binding) (api.Module, error) {
	if len(bindings) != len(c.Desc.Imports) {
		panic("engine: bound imports bundle does not match import list")
	}

	cm := c.module
	if rebound := rebindImports(c.Desc, bindings); rebound != nil {
		var err error
		cm, err = d.runtime.CompileModule(ctx, rebound.Encode())
		if err != nil {
			return nil, errors.Internal("rebound module failed to compile", err)
		}
	}

	inst, err := d.runtime.InstantiateModule(ctx, cm, instanceConfig(name))
	if err != nil {
		if c.Desc.Start != nil {
			return nil, errors.Trap("start", err)
		}
		return nil, errors.Instantiation(name, err)
	}
	Logger().Debug("module instantiated", zap.String("name", name))
	return inst, nil
}

// Module finds an instance by name within the domain.
func (d *Domain) Module(name string) api.Module {
	return d.runtime.Module(name)
}

// Close tears down the domain and every object it owns.
func (d *Domain) Close(ctx context.Context) error {
	return d.runtime.Close(ctx)
}

// instanceConfig names an instance and clears the default "_start" call so
// only the wasm start section runs at instantiation time.
func instanceConfig(name string) wazero.ModuleConfig {
	return wazero.NewModuleConfig().WithName(name).WithStartFunctions()
}

// rebindImports returns a copy of desc whose imports point at the bound
// objects, or nil when every binding already matches the declaration.
func rebindImports(desc *wasm.Module, bindings []linker.Binding) *wasm.Module {
	changed := false
	for i, imp := range desc.Imports {
		if bindings[i].Module != imp.Module || bindings[i].Name != imp.Name {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	rebound := *desc
	rebound.Imports = make([]wasm.Import, len(desc.Imports))
	copy(rebound.Imports, desc.Imports)
	for i := range rebound.Imports {
		rebound.Imports[i].Module = bindings[i].Module
		rebound.Imports[i].Name = bindings[i].Name
	}
	return &rebound
}
