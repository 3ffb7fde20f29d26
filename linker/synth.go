package linker

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/inyutin/WAVM/errors"
	"github.com/inyutin/WAVM/wasm"
)

// Instantiator is the compile-and-instantiate surface the synthesizer runs
// stub modules through. It must place instances in the same execution domain
// as the target module so cross-references stay valid.
type Instantiator interface {
	InstantiateBinary(ctx context.Context, name string, bin []byte) (api.Module, error)
}

// Synthesizer fabricates default-behavior objects for unresolved imports.
// Each stub lives in its own miniature module, instantiated through the same
// path as any ordinary module.
type Synthesizer struct {
	domain Instantiator

	mu  sync.Mutex
	seq int
}

// NewSynthesizer creates a synthesizer placing stubs in the given domain.
func NewSynthesizer(domain Instantiator) *Synthesizer {
	return &Synthesizer{domain: domain}
}

// Synthesize builds and instantiates a stub satisfying the requested type,
// returning a binding to its sole export. A stub function traps when called;
// stub memories, tables, and globals are fresh objects of the exact
// requested shape, globals initialized to their type's zero value. The
// export carries the original name so diagnostics stay readable.
//
// Synthesize never fails on user input: a validation or instantiation error
// on a module we built ourselves indicates a defect and comes back as an
// internal error.
func (s *Synthesizer) Synthesize(ctx context.Context, exportName string, t ExternType) (Binding, error) {
	mod := buildStubModule(exportName, t)
	if err := mod.Validate(); err != nil {
		return Binding{}, errors.Internal(
			fmt.Sprintf("synthesized stub for %q does not validate", exportName), err)
	}

	s.mu.Lock()
	s.seq++
	name := fmt.Sprintf("stub:%s#%d", exportName, s.seq)
	s.mu.Unlock()

	inst, err := s.domain.InstantiateBinary(ctx, name, mod.Encode())
	if err != nil {
		return Binding{}, errors.Internal(
			fmt.Sprintf("synthesized stub for %q failed to instantiate", exportName), err)
	}

	Logger().Debug("synthesized stub",
		zap.String("export", exportName),
		zap.String("instance", inst.Name()),
		zap.Stringer("type", t))
	return Binding{Module: name, Name: exportName}, nil
}

// buildStubModule assembles the miniature description for one stub. The
// extern kind union is closed; an unrecognized kind is an
// internal-consistency fault, not a user error.
func buildStubModule(exportName string, t ExternType) *wasm.Module {
	mod := &wasm.Module{}
	switch t.Kind {
	case wasm.KindFunc:
		ti := mod.AddType(t.Func)
		mod.Funcs = []uint32{ti}
		mod.Code = []wasm.FuncBody{{Code: []byte{wasm.OpUnreachable, wasm.OpEnd}}}
	case wasm.KindTable:
		mod.Tables = []wasm.TableType{t.Table}
	case wasm.KindMemory:
		mod.Memories = []wasm.Limits{t.Memory}
	case wasm.KindGlobal:
		mod.Globals = []wasm.Global{{Type: t.Global, Init: wasm.ZeroInit(t.Global.Type)}}
	case wasm.KindTag:
		ti := mod.AddType(t.Tag)
		mod.Tags = []wasm.TagType{{TypeIndex: ti}}
	default:
		panic(fmt.Sprintf("linker: cannot synthesize stub of unknown kind %d", t.Kind))
	}
	mod.Exports = []wasm.Export{{Name: exportName, Kind: t.Kind, Index: 0}}
	return mod
}
