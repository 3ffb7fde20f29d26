package wasm

import "strings"

// Module is the in-memory description of a single WebAssembly module.
// Field order mirrors binary section order. Index spaces follow the wasm
// convention: imported objects come first, then locally defined ones.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type indices of locally defined functions
	Tables   []TableType
	Memories []Limits
	Globals  []Global
	Tags     []TagType
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports structural equality of the two signatures.
func (f FuncType) Equal(other FuncType) bool {
	if len(f.Params) != len(other.Params) || len(f.Results) != len(other.Results) {
		return false
	}
	for i, p := range f.Params {
		if other.Params[i] != p {
			return false
		}
	}
	for i, r := range f.Results {
		if other.Results[i] != r {
			return false
		}
	}
	return true
}

// String renders the signature in text-format style, e.g.
// "(func (param i32 i32) (result i32))".
func (f FuncType) String() string {
	var b strings.Builder
	b.WriteString("(func")
	if len(f.Params) > 0 {
		b.WriteString(" (param")
		for _, p := range f.Params {
			b.WriteByte(' ')
			b.WriteString(p.String())
		}
		b.WriteByte(')')
	}
	if len(f.Results) > 0 {
		b.WriteString(" (result")
		for _, r := range f.Results {
			b.WriteByte(' ')
			b.WriteString(r.String())
		}
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// Import declares an external dependency of the module. Exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type Import struct {
	Module string
	Name   string
	Kind   ExternKind

	TypeIndex uint32     // KindFunc, KindTag
	Table     TableType  // KindTable
	Memory    Limits     // KindMemory
	Global    GlobalType // KindGlobal
}

// Limits bound a memory or table size.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// TableType describes a table's element type and size bounds.
type TableType struct {
	Elem   ValType
	Limits Limits
}

// GlobalType is a global's value type plus mutability.
type GlobalType struct {
	Type    ValType
	Mutable bool
}

// Global is a defined global: its type and the initializer expression,
// opcode bytes terminated by End.
type Global struct {
	Type GlobalType
	Init []byte
}

// TagType describes an exception tag. The referenced function type must have
// an empty result list.
type TagType struct {
	TypeIndex uint32
}

// Export makes an object visible under a name. Index is into the combined
// (imports-first) index space of the exported kind.
type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32
}

// Element is an active funcref element segment.
type Element struct {
	TableIndex uint32
	Offset     []byte // initializer expression, terminated by End
	Funcs      []uint32
}

// LocalEntry is a run-length encoded group of locals of one type.
type LocalEntry struct {
	Count uint32
	Type  ValType
}

// FuncBody is a defined function's locals and instruction bytes. Code must
// be terminated by End.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// DataSegment is an active data segment.
type DataSegment struct {
	MemIndex uint32
	Offset   []byte // initializer expression, terminated by End
	Bytes    []byte
}

// NumImportedFuncs counts function imports.
func (m *Module) NumImportedFuncs() int { return m.countImports(KindFunc) }

// NumImportedTables counts table imports.
func (m *Module) NumImportedTables() int { return m.countImports(KindTable) }

// NumImportedMemories counts memory imports.
func (m *Module) NumImportedMemories() int { return m.countImports(KindMemory) }

// NumImportedGlobals counts global imports.
func (m *Module) NumImportedGlobals() int { return m.countImports(KindGlobal) }

// NumImportedTags counts tag imports.
func (m *Module) NumImportedTags() int { return m.countImports(KindTag) }

func (m *Module) countImports(kind ExternKind) int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

// FuncTypeIndex returns the type index of the function at funcIdx in the
// combined index space, and whether the index is in range.
func (m *Module) FuncTypeIndex(funcIdx uint32) (uint32, bool) {
	i := int(funcIdx)
	for _, imp := range m.Imports {
		if imp.Kind != KindFunc {
			continue
		}
		if i == 0 {
			return imp.TypeIndex, true
		}
		i--
	}
	if i < len(m.Funcs) {
		return m.Funcs[i], true
	}
	return 0, false
}

// FuncTypeOf resolves the signature of the function at funcIdx.
func (m *Module) FuncTypeOf(funcIdx uint32) (FuncType, bool) {
	ti, ok := m.FuncTypeIndex(funcIdx)
	if !ok || int(ti) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[ti], true
}

// AddType returns the index of ft in the type section, appending it if no
// structurally equal entry exists yet.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// ExportNamed finds an export by name.
func (m *Module) ExportNamed(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

// ImportsFrom reports whether the module imports anything from the named
// module.
func (m *Module) ImportsFrom(module string) bool {
	for _, imp := range m.Imports {
		if imp.Module == module {
			return true
		}
	}
	return false
}

// ZeroInit returns the initializer expression producing the zero value of t.
func ZeroInit(t ValType) []byte {
	switch t {
	case I32:
		return []byte{OpI32Const, 0x00, OpEnd}
	case I64:
		return []byte{OpI64Const, 0x00, OpEnd}
	case F32:
		return []byte{OpF32Const, 0x00, 0x00, 0x00, 0x00, OpEnd}
	case F64:
		return []byte{OpF64Const, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, OpEnd}
	case FuncRef, ExternRef:
		return []byte{OpRefNull, byte(t), OpEnd}
	}
	return []byte{OpEnd}
}
