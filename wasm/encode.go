package wasm

import "github.com/inyutin/WAVM/wasm/internal/binary"

// Encode serializes the module to the WebAssembly binary format. The module
// should have passed Validate first; Encode does not re-check structure.
func (m *Module) Encode() []byte {
	var w binary.Writer
	w.Raw(Magic)
	w.Raw(Version)

	if len(m.Types) > 0 {
		writeSection(&w, SectionType, func(s *binary.Writer) {
			s.U32(uint32(len(m.Types)))
			for _, t := range m.Types {
				writeFuncType(s, t)
			}
		})
	}

	if len(m.Imports) > 0 {
		writeSection(&w, SectionImport, func(s *binary.Writer) {
			s.U32(uint32(len(m.Imports)))
			for _, imp := range m.Imports {
				s.Name(imp.Module)
				s.Name(imp.Name)
				s.Byte(byte(imp.Kind))
				switch imp.Kind {
				case KindFunc:
					s.U32(imp.TypeIndex)
				case KindTable:
					writeTableType(s, imp.Table)
				case KindMemory:
					writeLimits(s, imp.Memory)
				case KindGlobal:
					writeGlobalType(s, imp.Global)
				case KindTag:
					s.Byte(0) // exception attribute
					s.U32(imp.TypeIndex)
				}
			}
		})
	}

	if len(m.Funcs) > 0 {
		writeSection(&w, SectionFunc, func(s *binary.Writer) {
			s.U32(uint32(len(m.Funcs)))
			for _, ti := range m.Funcs {
				s.U32(ti)
			}
		})
	}

	if len(m.Tables) > 0 {
		writeSection(&w, SectionTable, func(s *binary.Writer) {
			s.U32(uint32(len(m.Tables)))
			for _, t := range m.Tables {
				writeTableType(s, t)
			}
		})
	}

	if len(m.Memories) > 0 {
		writeSection(&w, SectionMemory, func(s *binary.Writer) {
			s.U32(uint32(len(m.Memories)))
			for _, mem := range m.Memories {
				writeLimits(s, mem)
			}
		})
	}

	if len(m.Tags) > 0 {
		writeSection(&w, SectionTag, func(s *binary.Writer) {
			s.U32(uint32(len(m.Tags)))
			for _, tag := range m.Tags {
				s.Byte(0)
				s.U32(tag.TypeIndex)
			}
		})
	}

	if len(m.Globals) > 0 {
		writeSection(&w, SectionGlobal, func(s *binary.Writer) {
			s.U32(uint32(len(m.Globals)))
			for _, g := range m.Globals {
				writeGlobalType(s, g.Type)
				s.Raw(g.Init)
			}
		})
	}

	if len(m.Exports) > 0 {
		writeSection(&w, SectionExport, func(s *binary.Writer) {
			s.U32(uint32(len(m.Exports)))
			for _, e := range m.Exports {
				s.Name(e.Name)
				s.Byte(byte(e.Kind))
				s.U32(e.Index)
			}
		})
	}

	if m.Start != nil {
		writeSection(&w, SectionStart, func(s *binary.Writer) {
			s.U32(*m.Start)
		})
	}

	if len(m.Elements) > 0 {
		writeSection(&w, SectionElem, func(s *binary.Writer) {
			s.U32(uint32(len(m.Elements)))
			for _, e := range m.Elements {
				s.U32(e.TableIndex)
				s.Raw(e.Offset)
				s.U32(uint32(len(e.Funcs)))
				for _, fi := range e.Funcs {
					s.U32(fi)
				}
			}
		})
	}

	if len(m.Code) > 0 {
		writeSection(&w, SectionCode, func(s *binary.Writer) {
			s.U32(uint32(len(m.Code)))
			for _, body := range m.Code {
				var fb binary.Writer
				fb.U32(uint32(len(body.Locals)))
				for _, l := range body.Locals {
					fb.U32(l.Count)
					fb.Byte(byte(l.Type))
				}
				fb.Raw(body.Code)
				s.U32(uint32(fb.Len()))
				s.Raw(fb.Bytes())
			}
		})
	}

	if len(m.Data) > 0 {
		writeSection(&w, SectionData, func(s *binary.Writer) {
			s.U32(uint32(len(m.Data)))
			for _, d := range m.Data {
				s.U32(d.MemIndex)
				s.Raw(d.Offset)
				s.U32(uint32(len(d.Bytes)))
				s.Raw(d.Bytes)
			}
		})
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, body func(*binary.Writer)) {
	var s binary.Writer
	body(&s)
	w.Byte(id)
	w.U32(uint32(s.Len()))
	w.Raw(s.Bytes())
}

func writeFuncType(w *binary.Writer, t FuncType) {
	w.Byte(FuncTypeByte)
	w.U32(uint32(len(t.Params)))
	for _, p := range t.Params {
		w.Byte(byte(p))
	}
	w.U32(uint32(len(t.Results)))
	for _, r := range t.Results {
		w.Byte(byte(r))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	if l.HasMax {
		w.Byte(LimitsHasMax)
		w.U32(l.Min)
		w.U32(l.Max)
		return
	}
	w.Byte(LimitsNoMax)
	w.U32(l.Min)
}

func writeTableType(w *binary.Writer, t TableType) {
	w.Byte(byte(t.Elem))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.Type))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}
