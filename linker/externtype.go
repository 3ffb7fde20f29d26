package linker

import (
	"fmt"
	"strings"

	"github.com/inyutin/WAVM/wasm"
)

// ExternType is the capability type of an importable object: a closed tagged
// union over the five extern kinds. Exactly one kind-specific field is
// meaningful, selected by Kind.
type ExternType struct {
	Kind   wasm.ExternKind
	Func   wasm.FuncType   // KindFunc
	Table  wasm.TableType  // KindTable
	Memory wasm.Limits     // KindMemory
	Global wasm.GlobalType // KindGlobal
	Tag    wasm.FuncType   // KindTag, parameter shape only
}

// TypeOfImport derives the expected capability type of one import request
// from its module description.
func TypeOfImport(m *wasm.Module, imp wasm.Import) ExternType {
	switch imp.Kind {
	case wasm.KindFunc:
		return ExternType{Kind: wasm.KindFunc, Func: m.Types[imp.TypeIndex]}
	case wasm.KindTable:
		return ExternType{Kind: wasm.KindTable, Table: imp.Table}
	case wasm.KindMemory:
		return ExternType{Kind: wasm.KindMemory, Memory: imp.Memory}
	case wasm.KindGlobal:
		return ExternType{Kind: wasm.KindGlobal, Global: imp.Global}
	case wasm.KindTag:
		return ExternType{Kind: wasm.KindTag, Tag: m.Types[imp.TypeIndex]}
	}
	panic(fmt.Sprintf("linker: unknown extern kind %d", imp.Kind))
}

// Matches reports whether an object of type actual satisfies a request for
// the receiver. Function and tag signatures must agree exactly; limits are
// satisfied when the actual range fits inside the requested one; globals
// must agree on value type and mutability.
func (t ExternType) Matches(actual ExternType) bool {
	if t.Kind != actual.Kind {
		return false
	}
	switch t.Kind {
	case wasm.KindFunc:
		return t.Func.Equal(actual.Func)
	case wasm.KindTable:
		return t.Table.Elem == actual.Table.Elem && limitsSatisfy(t.Table.Limits, actual.Table.Limits)
	case wasm.KindMemory:
		return limitsSatisfy(t.Memory, actual.Memory)
	case wasm.KindGlobal:
		return t.Global == actual.Global
	case wasm.KindTag:
		return t.Tag.Equal(actual.Tag)
	}
	panic(fmt.Sprintf("linker: unknown extern kind %d", t.Kind))
}

func limitsSatisfy(want, got wasm.Limits) bool {
	if got.Min < want.Min {
		return false
	}
	if want.HasMax && (!got.HasMax || got.Max > want.Max) {
		return false
	}
	return true
}

// String renders the type in text-format style for diagnostics.
func (t ExternType) String() string {
	switch t.Kind {
	case wasm.KindFunc:
		return t.Func.String()
	case wasm.KindTable:
		return fmt.Sprintf("(table %s %s)", limitsString(t.Table.Limits), t.Table.Elem)
	case wasm.KindMemory:
		return fmt.Sprintf("(memory %s)", limitsString(t.Memory))
	case wasm.KindGlobal:
		if t.Global.Mutable {
			return fmt.Sprintf("(global (mut %s))", t.Global.Type)
		}
		return fmt.Sprintf("(global %s)", t.Global.Type)
	case wasm.KindTag:
		var b strings.Builder
		b.WriteString("(tag")
		for _, p := range t.Tag.Params {
			fmt.Fprintf(&b, " (param %s)", p)
		}
		b.WriteByte(')')
		return b.String()
	}
	return "(unknown)"
}

func limitsString(l wasm.Limits) string {
	if l.HasMax {
		return fmt.Sprintf("%d %d", l.Min, l.Max)
	}
	return fmt.Sprintf("%d", l.Min)
}
