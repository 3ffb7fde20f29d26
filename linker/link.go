package linker

import (
	"context"

	"go.uber.org/zap"

	"github.com/inyutin/WAVM/wasm"
)

// Binding names the domain instance and export an import request resolved
// to. The instantiation step redirects the target module's imports to these.
type Binding struct {
	Module string
	Name   string
}

// State classifies one resolution outcome.
type State int

const (
	Resolved State = iota // a real host export, types agree
	Stubbed               // fabricated trap/default object
	Failed                // present but type-mismatched
)

// Resolution is the outcome of one import request.
type Resolution struct {
	State   State
	Binding Binding
	Failure *ImportError
}

// Link resolves every import of the module description in declaration
// order. It collects all hard failures rather than stopping at the first,
// so one pass reports every mismatched import. On success the returned
// bundle is positionally aligned with the description's import list, stubs
// included as ordinary entries.
func Link(ctx context.Context, desc *wasm.Module, resolver *Resolver) ([]Binding, error) {
	bindings := make([]Binding, 0, len(desc.Imports))
	var failure LinkFailure

	for _, imp := range desc.Imports {
		expected := TypeOfImport(desc, imp)
		res, err := resolver.Resolve(ctx, imp.Module, imp.Name, expected)
		if err != nil {
			return nil, err
		}
		switch res.State {
		case Resolved, Stubbed:
			bindings = append(bindings, res.Binding)
		case Failed:
			failure.Errors = append(failure.Errors, res.Failure)
		}
	}

	if len(failure.Errors) > 0 {
		Logger().Debug("link failed",
			zap.Int("imports", len(desc.Imports)),
			zap.Int("failures", len(failure.Errors)))
		return nil, &failure
	}

	Logger().Debug("link complete",
		zap.Int("imports", len(desc.Imports)),
		zap.Int("bindings", len(bindings)))
	return bindings, nil
}
