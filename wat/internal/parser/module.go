package parser

import (
	"github.com/inyutin/WAVM/wasm"
	"github.com/inyutin/WAVM/wat/internal/token"
)

// parseTypeField handles (type $id? (func ...)). The leading keyword is
// already consumed.
func (p *Parser) parseTypeField() error {
	if p.peek().Type == token.Ident {
		p.next()
	}
	if err := p.expect(token.LParen); err != nil {
		return err
	}
	if err := p.expectKeyword("func"); err != nil {
		return err
	}
	ft, _, err := p.parseFuncSig()
	if err != nil {
		return err
	}
	if err := p.expect(token.RParen); err != nil {
		return err
	}
	p.mod.Types = append(p.mod.Types, ft)
	return p.expect(token.RParen)
}

// parseFuncSig reads (param ...)* (result ...)* groups, returning the
// signature and the names of any named parameters (indexed by position).
func (p *Parser) parseFuncSig() (wasm.FuncType, map[string]uint32, error) {
	var ft wasm.FuncType
	var names map[string]uint32

	for p.peekGroup("param") {
		p.next() // (
		p.next() // param
		if p.peek().Type == token.Ident {
			name := p.next().Value
			vt, err := p.parseValType()
			if err != nil {
				return ft, nil, err
			}
			if names == nil {
				names = make(map[string]uint32)
			}
			names[name] = uint32(len(ft.Params))
			ft.Params = append(ft.Params, vt)
		} else {
			for p.peek().Type == token.Keyword {
				vt, err := p.parseValType()
				if err != nil {
					return ft, nil, err
				}
				ft.Params = append(ft.Params, vt)
			}
		}
		if err := p.expect(token.RParen); err != nil {
			return ft, nil, err
		}
	}
	for p.peekGroup("result") {
		p.next()
		p.next()
		for p.peek().Type == token.Keyword {
			vt, err := p.parseValType()
			if err != nil {
				return ft, nil, err
			}
			ft.Results = append(ft.Results, vt)
		}
		if err := p.expect(token.RParen); err != nil {
			return ft, nil, err
		}
	}
	return ft, names, nil
}

// parseTypeUse reads an optional (type idx) reference followed by optional
// inline (param)/(result) groups, returning the resolved type index.
func (p *Parser) parseTypeUse() (uint32, map[string]uint32, error) {
	var explicit *uint32
	if p.peekGroup("type") {
		p.next()
		p.next()
		idx, err := p.parseIdx(spaceType)
		if err != nil {
			return 0, nil, err
		}
		if err := p.expect(token.RParen); err != nil {
			return 0, nil, err
		}
		explicit = &idx
	}

	line := p.line()
	ft, names, err := p.parseFuncSig()
	if err != nil {
		return 0, nil, err
	}

	if explicit != nil {
		if int(*explicit) >= len(p.mod.Types) {
			return 0, nil, p.errorf(line, "type index %d out of range", *explicit)
		}
		if len(ft.Params)+len(ft.Results) > 0 && !p.mod.Types[*explicit].Equal(ft) {
			return 0, nil, p.errorf(line, "inline signature disagrees with type %d", *explicit)
		}
		return *explicit, names, nil
	}
	return p.mod.AddType(ft), names, nil
}

// peekGroup reports whether the next tokens open a group with the keyword.
func (p *Parser) peekGroup(keyword string) bool {
	if p.peek().Type != token.LParen || p.pos+1 >= len(p.toks) {
		return false
	}
	t := p.toks[p.pos+1]
	return t.Type == token.Keyword && t.Value == keyword
}

func (p *Parser) parseValType() (wasm.ValType, error) {
	tok := p.peek()
	if tok.Type == token.Keyword {
		switch tok.Value {
		case "i32":
			p.next()
			return wasm.I32, nil
		case "i64":
			p.next()
			return wasm.I64, nil
		case "f32":
			p.next()
			return wasm.F32, nil
		case "f64":
			p.next()
			return wasm.F64, nil
		case "v128":
			p.next()
			return wasm.V128, nil
		case "funcref":
			p.next()
			return wasm.FuncRef, nil
		case "externref":
			p.next()
			return wasm.ExternRef, nil
		}
	}
	return 0, p.errorf(tok.Line, "expected value type, got %q", tok.Value)
}

func (p *Parser) parseLimits() (wasm.Limits, error) {
	var l wasm.Limits
	tok := p.peek()
	if tok.Type != token.Number {
		return l, p.errorf(tok.Line, "expected limits, got %q", tok.Value)
	}
	p.next()
	min, err := parseUint32(tok.Value)
	if err != nil {
		return l, p.errorf(tok.Line, "bad limits minimum %q", tok.Value)
	}
	l.Min = min
	if t := p.peek(); t.Type == token.Number {
		p.next()
		max, err := parseUint32(t.Value)
		if err != nil {
			return l, p.errorf(t.Line, "bad limits maximum %q", t.Value)
		}
		l.Max = max
		l.HasMax = true
	}
	return l, nil
}

// parseGlobalType reads valtype or (mut valtype).
func (p *Parser) parseGlobalType() (wasm.GlobalType, error) {
	if p.peekGroup("mut") {
		p.next()
		p.next()
		vt, err := p.parseValType()
		if err != nil {
			return wasm.GlobalType{}, err
		}
		if err := p.expect(token.RParen); err != nil {
			return wasm.GlobalType{}, err
		}
		return wasm.GlobalType{Type: vt, Mutable: true}, nil
	}
	vt, err := p.parseValType()
	if err != nil {
		return wasm.GlobalType{}, err
	}
	return wasm.GlobalType{Type: vt}, nil
}

func (p *Parser) parseTableType() (wasm.TableType, error) {
	limits, err := p.parseLimits()
	if err != nil {
		return wasm.TableType{}, err
	}
	elem, err := p.parseValType()
	if err != nil {
		return wasm.TableType{}, err
	}
	if elem != wasm.FuncRef && elem != wasm.ExternRef {
		return wasm.TableType{}, p.errorf(p.line(), "table element type must be a reference type")
	}
	return wasm.TableType{Elem: elem, Limits: limits}, nil
}

// parseImport handles the top-level form
// (import "mod" "name" (func|table|memory|global|tag $id? type)).
func (p *Parser) parseImport() error {
	module, err := p.expectString()
	if err != nil {
		return err
	}
	name, err := p.expectString()
	if err != nil {
		return err
	}
	if err := p.expect(token.LParen); err != nil {
		return err
	}
	kw := p.peek()
	if kw.Type != token.Keyword {
		return p.errorf(kw.Line, "expected import kind, got %q", kw.Value)
	}
	p.next()
	if p.peek().Type == token.Ident {
		p.next() // bound name, already assigned by prescan
	}

	imp := wasm.Import{Module: module, Name: name}
	switch kw.Value {
	case "func":
		if err := p.checkImportOrder(spaceFunc, kw.Line); err != nil {
			return err
		}
		ti, _, err := p.parseTypeUse()
		if err != nil {
			return err
		}
		imp.Kind = wasm.KindFunc
		imp.TypeIndex = ti
	case "table":
		if err := p.checkImportOrder(spaceTable, kw.Line); err != nil {
			return err
		}
		tt, err := p.parseTableType()
		if err != nil {
			return err
		}
		imp.Kind = wasm.KindTable
		imp.Table = tt
	case "memory":
		if err := p.checkImportOrder(spaceMem, kw.Line); err != nil {
			return err
		}
		l, err := p.parseLimits()
		if err != nil {
			return err
		}
		imp.Kind = wasm.KindMemory
		imp.Memory = l
	case "global":
		if err := p.checkImportOrder(spaceGlobal, kw.Line); err != nil {
			return err
		}
		gt, err := p.parseGlobalType()
		if err != nil {
			return err
		}
		imp.Kind = wasm.KindGlobal
		imp.Global = gt
	case "tag":
		if err := p.checkImportOrder(spaceTag, kw.Line); err != nil {
			return err
		}
		ti, _, err := p.parseTypeUse()
		if err != nil {
			return err
		}
		imp.Kind = wasm.KindTag
		imp.TypeIndex = ti
	default:
		return p.errorf(kw.Line, "unknown import kind %q", kw.Value)
	}

	if err := p.expect(token.RParen); err != nil {
		return err
	}
	p.mod.Imports = append(p.mod.Imports, imp)
	return p.expect(token.RParen)
}

// parseInlineExports consumes (export "name")* abbreviations, registering an
// export of the given kind at the given index per occurrence.
func (p *Parser) parseInlineExports(kind wasm.ExternKind, index uint32) error {
	for p.peekGroup("export") {
		p.next()
		p.next()
		name, err := p.expectString()
		if err != nil {
			return err
		}
		if err := p.expect(token.RParen); err != nil {
			return err
		}
		p.mod.Exports = append(p.mod.Exports, wasm.Export{Name: name, Kind: kind, Index: index})
	}
	return nil
}

// parseInlineImport consumes an (import "mod" "name") abbreviation if
// present, returning the names and whether one was seen.
func (p *Parser) parseInlineImport() (module, name string, ok bool, err error) {
	if !p.peekGroup("import") {
		return "", "", false, nil
	}
	p.next()
	p.next()
	module, err = p.expectString()
	if err != nil {
		return "", "", false, err
	}
	name, err = p.expectString()
	if err != nil {
		return "", "", false, err
	}
	if err = p.expect(token.RParen); err != nil {
		return "", "", false, err
	}
	return module, name, true, nil
}

func (p *Parser) parseTable() error {
	line := p.line()
	if p.peek().Type == token.Ident {
		p.next()
	}
	index := uint32(p.mod.NumImportedTables() + len(p.mod.Tables))
	if err := p.parseInlineExports(wasm.KindTable, index); err != nil {
		return err
	}
	if module, name, imported, err := p.parseInlineImport(); err != nil {
		return err
	} else if imported {
		if err := p.checkImportOrder(spaceTable, line); err != nil {
			return err
		}
		tt, err := p.parseTableType()
		if err != nil {
			return err
		}
		p.mod.Imports = append(p.mod.Imports, wasm.Import{
			Module: module, Name: name, Kind: wasm.KindTable, Table: tt,
		})
		return p.expect(token.RParen)
	}
	tt, err := p.parseTableType()
	if err != nil {
		return err
	}
	p.markDefined(spaceTable)
	p.mod.Tables = append(p.mod.Tables, tt)
	return p.expect(token.RParen)
}

func (p *Parser) parseMemory() error {
	line := p.line()
	if p.peek().Type == token.Ident {
		p.next()
	}
	index := uint32(p.mod.NumImportedMemories() + len(p.mod.Memories))
	if err := p.parseInlineExports(wasm.KindMemory, index); err != nil {
		return err
	}
	if module, name, imported, err := p.parseInlineImport(); err != nil {
		return err
	} else if imported {
		if err := p.checkImportOrder(spaceMem, line); err != nil {
			return err
		}
		l, err := p.parseLimits()
		if err != nil {
			return err
		}
		p.mod.Imports = append(p.mod.Imports, wasm.Import{
			Module: module, Name: name, Kind: wasm.KindMemory, Memory: l,
		})
		return p.expect(token.RParen)
	}
	l, err := p.parseLimits()
	if err != nil {
		return err
	}
	p.markDefined(spaceMem)
	p.mod.Memories = append(p.mod.Memories, l)
	return p.expect(token.RParen)
}

func (p *Parser) parseGlobal() error {
	line := p.line()
	if p.peek().Type == token.Ident {
		p.next()
	}
	index := uint32(p.mod.NumImportedGlobals() + len(p.mod.Globals))
	if err := p.parseInlineExports(wasm.KindGlobal, index); err != nil {
		return err
	}
	if module, name, imported, err := p.parseInlineImport(); err != nil {
		return err
	} else if imported {
		if err := p.checkImportOrder(spaceGlobal, line); err != nil {
			return err
		}
		gt, err := p.parseGlobalType()
		if err != nil {
			return err
		}
		p.mod.Imports = append(p.mod.Imports, wasm.Import{
			Module: module, Name: name, Kind: wasm.KindGlobal, Global: gt,
		})
		return p.expect(token.RParen)
	}
	gt, err := p.parseGlobalType()
	if err != nil {
		return err
	}
	init, err := p.parseInitExpr()
	if err != nil {
		return err
	}
	p.markDefined(spaceGlobal)
	p.mod.Globals = append(p.mod.Globals, wasm.Global{Type: gt, Init: init})
	return p.expect(token.RParen)
}

func (p *Parser) parseTag() error {
	line := p.line()
	if p.peek().Type == token.Ident {
		p.next()
	}
	index := uint32(p.mod.NumImportedTags() + len(p.mod.Tags))
	if err := p.parseInlineExports(wasm.KindTag, index); err != nil {
		return err
	}
	if module, name, imported, err := p.parseInlineImport(); err != nil {
		return err
	} else if imported {
		if err := p.checkImportOrder(spaceTag, line); err != nil {
			return err
		}
		ti, _, err := p.parseTypeUse()
		if err != nil {
			return err
		}
		p.mod.Imports = append(p.mod.Imports, wasm.Import{
			Module: module, Name: name, Kind: wasm.KindTag, TypeIndex: ti,
		})
		return p.expect(token.RParen)
	}
	ti, _, err := p.parseTypeUse()
	if err != nil {
		return err
	}
	p.markDefined(spaceTag)
	p.mod.Tags = append(p.mod.Tags, wasm.TagType{TypeIndex: ti})
	return p.expect(token.RParen)
}

// parseExportField handles (export "name" (kind idx)).
func (p *Parser) parseExportField() error {
	name, err := p.expectString()
	if err != nil {
		return err
	}
	if err := p.expect(token.LParen); err != nil {
		return err
	}
	kw := p.peek()
	if kw.Type != token.Keyword {
		return p.errorf(kw.Line, "expected export kind, got %q", kw.Value)
	}
	p.next()

	var kind wasm.ExternKind
	var sp space
	switch kw.Value {
	case "func":
		kind, sp = wasm.KindFunc, spaceFunc
	case "table":
		kind, sp = wasm.KindTable, spaceTable
	case "memory":
		kind, sp = wasm.KindMemory, spaceMem
	case "global":
		kind, sp = wasm.KindGlobal, spaceGlobal
	case "tag":
		kind, sp = wasm.KindTag, spaceTag
	default:
		return p.errorf(kw.Line, "unknown export kind %q", kw.Value)
	}
	idx, err := p.parseIdx(sp)
	if err != nil {
		return err
	}
	if err := p.expect(token.RParen); err != nil {
		return err
	}
	p.mod.Exports = append(p.mod.Exports, wasm.Export{Name: name, Kind: kind, Index: idx})
	return p.expect(token.RParen)
}

func (p *Parser) parseStart() error {
	line := p.line()
	idx, err := p.parseIdx(spaceFunc)
	if err != nil {
		return err
	}
	if p.mod.Start != nil {
		return p.errorf(line, "duplicate start field")
	}
	p.mod.Start = &idx
	return p.expect(token.RParen)
}

// parseElem handles active segments: (elem tableidx? (offset expr)|(instr) funcidx*).
func (p *Parser) parseElem() error {
	var tableIdx uint32
	if p.peek().Type == token.Number {
		idx, err := p.parseIdx(spaceTable)
		if err != nil {
			return err
		}
		tableIdx = idx
	}
	offset, err := p.parseOffsetExpr()
	if err != nil {
		return err
	}
	// optional elemtype keyword before the function list
	if t := p.peek(); t.Type == token.Keyword && (t.Value == "func" || t.Value == "funcref") {
		p.next()
	}
	var funcs []uint32
	for p.peek().Type == token.Number || p.peek().Type == token.Ident {
		idx, err := p.parseIdx(spaceFunc)
		if err != nil {
			return err
		}
		funcs = append(funcs, idx)
	}
	p.mod.Elements = append(p.mod.Elements, wasm.Element{
		TableIndex: tableIdx, Offset: offset, Funcs: funcs,
	})
	return p.expect(token.RParen)
}

// parseData handles active segments: (data memidx? (offset expr)|(instr) "bytes"*).
func (p *Parser) parseData() error {
	var memIdx uint32
	if p.peek().Type == token.Number {
		idx, err := p.parseIdx(spaceMem)
		if err != nil {
			return err
		}
		memIdx = idx
	}
	offset, err := p.parseOffsetExpr()
	if err != nil {
		return err
	}
	var bytes []byte
	for p.peek().Type == token.String {
		s, err := p.expectString()
		if err != nil {
			return err
		}
		bytes = append(bytes, s...)
	}
	p.mod.Data = append(p.mod.Data, wasm.DataSegment{
		MemIndex: memIdx, Offset: offset, Bytes: bytes,
	})
	return p.expect(token.RParen)
}

// parseOffsetExpr reads (offset expr) or the single-instruction abbreviation.
func (p *Parser) parseOffsetExpr() ([]byte, error) {
	if p.peekGroup("offset") {
		p.next()
		p.next()
		expr, err := p.parseConstExprBody()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return p.parseFoldedConstInstr()
}

// parseInitExpr reads a global initializer: one folded constant instruction.
func (p *Parser) parseInitExpr() ([]byte, error) {
	return p.parseFoldedConstInstr()
}
