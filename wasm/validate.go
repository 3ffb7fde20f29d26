package wasm

import "fmt"

// Validate performs the structural checks Encode relies on: index bounds,
// unique export names, start signature, limit sanity, and code/function
// section agreement. It does not type-check instruction sequences; the
// runtime compiler does that.
func (m *Module) Validate() error {
	if err := m.validateImports(); err != nil {
		return err
	}
	for i, ti := range m.Funcs {
		if int(ti) >= len(m.Types) {
			return fmt.Errorf("wasm: func %d references type %d, have %d types", i, ti, len(m.Types))
		}
	}
	if len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("wasm: %d function declarations but %d bodies", len(m.Funcs), len(m.Code))
	}
	for i, body := range m.Code {
		if len(body.Code) == 0 || body.Code[len(body.Code)-1] != OpEnd {
			return fmt.Errorf("wasm: func body %d not terminated by end", i)
		}
	}
	for i, t := range m.Tables {
		if err := validateLimits(t.Limits, 0); err != nil {
			return fmt.Errorf("wasm: table %d: %w", i, err)
		}
	}
	for i, mem := range m.Memories {
		if err := validateLimits(mem, MaxMemoryPages); err != nil {
			return fmt.Errorf("wasm: memory %d: %w", i, err)
		}
	}
	if n := m.NumImportedMemories() + len(m.Memories); n > 1 {
		return fmt.Errorf("wasm: %d memories, at most one allowed", n)
	}
	for i, tag := range m.Tags {
		if err := m.validateTagType(tag); err != nil {
			return fmt.Errorf("wasm: tag %d: %w", i, err)
		}
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	for i, e := range m.Elements {
		if int(e.TableIndex) >= m.NumImportedTables()+len(m.Tables) {
			return fmt.Errorf("wasm: element %d references table %d", i, e.TableIndex)
		}
		for _, fi := range e.Funcs {
			if int(fi) >= m.NumImportedFuncs()+len(m.Funcs) {
				return fmt.Errorf("wasm: element %d references func %d", i, fi)
			}
		}
	}
	for i, d := range m.Data {
		if int(d.MemIndex) >= m.NumImportedMemories()+len(m.Memories) {
			return fmt.Errorf("wasm: data %d references memory %d", i, d.MemIndex)
		}
	}
	return nil
}

func (m *Module) validateImports() error {
	for i, imp := range m.Imports {
		switch imp.Kind {
		case KindFunc:
			if int(imp.TypeIndex) >= len(m.Types) {
				return fmt.Errorf("wasm: import %d (%s.%s) references type %d", i, imp.Module, imp.Name, imp.TypeIndex)
			}
		case KindTable:
			if err := validateLimits(imp.Table.Limits, 0); err != nil {
				return fmt.Errorf("wasm: import %d (%s.%s): %w", i, imp.Module, imp.Name, err)
			}
		case KindMemory:
			if err := validateLimits(imp.Memory, MaxMemoryPages); err != nil {
				return fmt.Errorf("wasm: import %d (%s.%s): %w", i, imp.Module, imp.Name, err)
			}
		case KindGlobal:
			// nothing beyond the type byte to check
		case KindTag:
			if err := m.validateTagType(TagType{TypeIndex: imp.TypeIndex}); err != nil {
				return fmt.Errorf("wasm: import %d (%s.%s): %w", i, imp.Module, imp.Name, err)
			}
		default:
			return fmt.Errorf("wasm: import %d (%s.%s) has unknown kind %d", i, imp.Module, imp.Name, imp.Kind)
		}
	}
	return nil
}

func (m *Module) validateTagType(tag TagType) error {
	if int(tag.TypeIndex) >= len(m.Types) {
		return fmt.Errorf("references type %d, have %d types", tag.TypeIndex, len(m.Types))
	}
	if len(m.Types[tag.TypeIndex].Results) != 0 {
		return fmt.Errorf("tag type must have no results")
	}
	return nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]struct{}, len(m.Exports))
	for _, e := range m.Exports {
		if _, dup := seen[e.Name]; dup {
			return fmt.Errorf("wasm: duplicate export %q", e.Name)
		}
		seen[e.Name] = struct{}{}

		var limit int
		switch e.Kind {
		case KindFunc:
			limit = m.NumImportedFuncs() + len(m.Funcs)
		case KindTable:
			limit = m.NumImportedTables() + len(m.Tables)
		case KindMemory:
			limit = m.NumImportedMemories() + len(m.Memories)
		case KindGlobal:
			limit = m.NumImportedGlobals() + len(m.Globals)
		case KindTag:
			limit = m.NumImportedTags() + len(m.Tags)
		default:
			return fmt.Errorf("wasm: export %q has unknown kind %d", e.Name, e.Kind)
		}
		if int(e.Index) >= limit {
			return fmt.Errorf("wasm: export %q references %s %d, have %d", e.Name, e.Kind, e.Index, limit)
		}
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}
	ft, ok := m.FuncTypeOf(*m.Start)
	if !ok {
		return fmt.Errorf("wasm: start references func %d", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("wasm: start function must have signature [] -> [], got %s", ft)
	}
	return nil
}

func validateLimits(l Limits, ceiling uint32) error {
	if l.HasMax && l.Max < l.Min {
		return fmt.Errorf("limits max %d below min %d", l.Max, l.Min)
	}
	if ceiling > 0 {
		if l.Min > ceiling {
			return fmt.Errorf("limits min %d above %d", l.Min, ceiling)
		}
		if l.HasMax && l.Max > ceiling {
			return fmt.Errorf("limits max %d above %d", l.Max, ceiling)
		}
	}
	return nil
}
