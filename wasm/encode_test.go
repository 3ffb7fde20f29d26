package wasm

import (
	"bytes"
	"testing"
)

// smallest callable module: (func (export "f") (result i32) i32.const 7)
func TestEncodeMinimalModule(t *testing.T) {
	m := &Module{}
	ti := m.AddType(FuncType{Results: []ValType{I32}})
	m.Funcs = append(m.Funcs, ti)
	m.Code = append(m.Code, FuncBody{Code: []byte{OpI32Const, 0x07, OpEnd}})
	m.Exports = append(m.Exports, Export{Name: "f", Kind: KindFunc, Index: 0})

	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := m.Encode()

	want := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // preamble
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7F, // type section
		0x03, 0x02, 0x01, 0x00, // func section
		0x07, 0x05, 0x01, 0x01, 'f', 0x00, 0x00, // export section
		0x0A, 0x06, 0x01, 0x04, 0x00, 0x41, 0x07, 0x0B, // code section
	}
	if !bytes.Equal(got, want) {
		t.Errorf("encoding mismatch\n got % x\nwant % x", got, want)
	}
}

func TestEncodeImportsAllKinds(t *testing.T) {
	m := &Module{}
	ti := m.AddType(FuncType{Params: []ValType{I32}})
	m.Imports = []Import{
		{Module: "env", Name: "f", Kind: KindFunc, TypeIndex: ti},
		{Module: "env", Name: "t", Kind: KindTable, Table: TableType{Elem: FuncRef, Limits: Limits{Min: 1}}},
		{Module: "env", Name: "m", Kind: KindMemory, Memory: Limits{Min: 1, Max: 2, HasMax: true}},
		{Module: "env", Name: "g", Kind: KindGlobal, Global: GlobalType{Type: I64, Mutable: true}},
		{Module: "env", Name: "e", Kind: KindTag, TypeIndex: ti},
	}

	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := m.Encode()

	// Import section payload, entry by entry.
	want := []byte{
		0x05, // count
		0x03, 'e', 'n', 'v', 0x01, 'f', 0x00, 0x00, // func, type 0
		0x03, 'e', 'n', 'v', 0x01, 't', 0x01, 0x70, 0x00, 0x01, // table funcref min 1
		0x03, 'e', 'n', 'v', 0x01, 'm', 0x02, 0x01, 0x01, 0x02, // memory 1..2
		0x03, 'e', 'n', 'v', 0x01, 'g', 0x03, 0x7E, 0x01, // mutable i64 global
		0x03, 'e', 'n', 'v', 0x01, 'e', 0x04, 0x00, 0x00, // tag, type 0
	}
	section := findSection(t, got, SectionImport)
	if !bytes.Equal(section, want) {
		t.Errorf("import section mismatch\n got % x\nwant % x", section, want)
	}
}

func TestEncodeGlobalsAndStart(t *testing.T) {
	m := &Module{}
	ti := m.AddType(FuncType{})
	m.Funcs = append(m.Funcs, ti)
	m.Code = append(m.Code, FuncBody{Code: []byte{OpEnd}})
	m.Globals = append(m.Globals, Global{
		Type: GlobalType{Type: I32, Mutable: true},
		Init: ZeroInit(I32),
	})
	start := uint32(0)
	m.Start = &start

	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := m.Encode()

	if sec := findSection(t, got, SectionGlobal); !bytes.Equal(sec, []byte{0x01, 0x7F, 0x01, 0x41, 0x00, 0x0B}) {
		t.Errorf("global section mismatch: % x", sec)
	}
	if sec := findSection(t, got, SectionStart); !bytes.Equal(sec, []byte{0x00}) {
		t.Errorf("start section mismatch: % x", sec)
	}
}

// findSection walks the encoded module and returns the payload of the first
// section with the given id.
func findSection(t *testing.T, encoded []byte, id byte) []byte {
	t.Helper()
	b := encoded[8:]
	for len(b) > 0 {
		sid := b[0]
		size, n, err := Uleb128(b[1:])
		if err != nil {
			t.Fatalf("malformed section size: %v", err)
		}
		payload := b[1+n : 1+n+int(size)]
		if sid == id {
			return payload
		}
		b = b[1+n+int(size):]
	}
	t.Fatalf("section %d not found", id)
	return nil
}
