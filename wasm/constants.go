package wasm

// Binary format preamble.
var (
	Magic   = []byte{0x00, 0x61, 0x73, 0x6D}
	Version = []byte{0x01, 0x00, 0x00, 0x00}
)

// Section IDs in the order they must appear.
const (
	SectionCustom byte = 0
	SectionType   byte = 1
	SectionImport byte = 2
	SectionFunc   byte = 3
	SectionTable  byte = 4
	SectionMemory byte = 5
	SectionGlobal byte = 6
	SectionExport byte = 7
	SectionStart  byte = 8
	SectionElem   byte = 9
	SectionCode   byte = 10
	SectionData   byte = 11
	SectionTag    byte = 13
)

// ValType is a WebAssembly value type encoding.
type ValType byte

const (
	I32       ValType = 0x7F
	I64       ValType = 0x7E
	F32       ValType = 0x7D
	F64       ValType = 0x7C
	V128      ValType = 0x7B
	FuncRef   ValType = 0x70
	ExternRef ValType = 0x6F
)

// String renders the type the way the text format spells it.
func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case V128:
		return "v128"
	case FuncRef:
		return "funcref"
	case ExternRef:
		return "externref"
	}
	return "unknown"
}

// ExternKind discriminates the five importable/exportable object kinds.
type ExternKind byte

const (
	KindFunc   ExternKind = 0
	KindTable  ExternKind = 1
	KindMemory ExternKind = 2
	KindGlobal ExternKind = 3
	KindTag    ExternKind = 4
)

func (k ExternKind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	case KindTag:
		return "tag"
	}
	return "unknown"
}

// Function type marker byte in the type section.
const FuncTypeByte byte = 0x60

// Limits flag bytes.
const (
	LimitsNoMax  byte = 0x00
	LimitsHasMax byte = 0x01
)

// MaxMemoryPages is the 32-bit linear memory page limit (4 GiB / 64 KiB).
const MaxMemoryPages = 1 << 16

// Opcodes used when assembling function bodies and initializer expressions.
const (
	OpUnreachable  byte = 0x00
	OpNop          byte = 0x01
	OpBlock        byte = 0x02
	OpLoop         byte = 0x03
	OpIf           byte = 0x04
	OpElse         byte = 0x05
	OpEnd          byte = 0x0B
	OpBr           byte = 0x0C
	OpBrIf         byte = 0x0D
	OpBrTable      byte = 0x0E
	OpReturn       byte = 0x0F
	OpCall         byte = 0x10
	OpCallIndirect byte = 0x11
	OpDrop         byte = 0x1A
	OpSelect       byte = 0x1B
	OpLocalGet     byte = 0x20
	OpLocalSet     byte = 0x21
	OpLocalTee     byte = 0x22
	OpGlobalGet    byte = 0x23
	OpGlobalSet    byte = 0x24
	OpI32Const     byte = 0x41
	OpI64Const     byte = 0x42
	OpF32Const     byte = 0x43
	OpF64Const     byte = 0x44
	OpRefNull      byte = 0xD0
	OpRefFunc      byte = 0xD2
)

// BlockTypeEmpty encodes a block with no parameters and no results.
const BlockTypeEmpty byte = 0x40
