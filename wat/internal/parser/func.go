package parser

import (
	"github.com/inyutin/WAVM/wasm"
	"github.com/inyutin/WAVM/wat/internal/token"
)

// funcContext carries per-function assembly state.
type funcContext struct {
	code   []byte
	locals map[string]uint32 // named params and locals
	labels []string          // innermost label last; "" for unlabeled blocks
}

func (c *funcContext) emit(b ...byte) { c.code = append(c.code, b...) }

func (c *funcContext) emitU32(v uint32) {
	c.code = wasm.AppendUleb128(c.code, uint64(v))
}

// parseFunc handles (func $id? (export)* (import)? typeuse locals body).
func (p *Parser) parseFunc() error {
	line := p.line()
	if p.peek().Type == token.Ident {
		p.next()
	}
	index := uint32(p.mod.NumImportedFuncs() + len(p.mod.Funcs))
	if err := p.parseInlineExports(wasm.KindFunc, index); err != nil {
		return err
	}

	if module, name, imported, err := p.parseInlineImport(); err != nil {
		return err
	} else if imported {
		if err := p.checkImportOrder(spaceFunc, line); err != nil {
			return err
		}
		ti, _, err := p.parseTypeUse()
		if err != nil {
			return err
		}
		p.mod.Imports = append(p.mod.Imports, wasm.Import{
			Module: module, Name: name, Kind: wasm.KindFunc, TypeIndex: ti,
		})
		return p.expect(token.RParen)
	}

	ti, paramNames, err := p.parseTypeUse()
	if err != nil {
		return err
	}
	p.markDefined(spaceFunc)

	ctx := &funcContext{locals: paramNames}
	if ctx.locals == nil {
		ctx.locals = make(map[string]uint32)
	}
	nextLocal := uint32(len(p.mod.Types[ti].Params))

	var locals []wasm.LocalEntry
	appendLocal := func(vt wasm.ValType) {
		if n := len(locals); n > 0 && locals[n-1].Type == vt {
			locals[n-1].Count++
		} else {
			locals = append(locals, wasm.LocalEntry{Count: 1, Type: vt})
		}
		nextLocal++
	}
	for p.peekGroup("local") {
		p.next()
		p.next()
		if p.peek().Type == token.Ident {
			name := p.next().Value
			vt, err := p.parseValType()
			if err != nil {
				return err
			}
			ctx.locals[name] = nextLocal
			appendLocal(vt)
		} else {
			for p.peek().Type == token.Keyword {
				vt, err := p.parseValType()
				if err != nil {
					return err
				}
				appendLocal(vt)
			}
		}
		if err := p.expect(token.RParen); err != nil {
			return err
		}
	}

	if err := p.parseInstrSeq(ctx, nil); err != nil {
		return err
	}
	ctx.emit(wasm.OpEnd)

	p.mod.Funcs = append(p.mod.Funcs, ti)
	p.mod.Code = append(p.mod.Code, wasm.FuncBody{Locals: locals, Code: ctx.code})
	return p.expect(token.RParen)
}

// parseInstrSeq assembles instructions until a closing paren or one of the
// stop keywords. Neither terminator is consumed.
func (p *Parser) parseInstrSeq(ctx *funcContext, stop map[string]bool) error {
	for {
		tok := p.peek()
		switch tok.Type {
		case token.RParen:
			return nil
		case token.LParen:
			if err := p.parseFoldedInstr(ctx); err != nil {
				return err
			}
		case token.Keyword:
			if stop != nil && stop[tok.Value] {
				return nil
			}
			if err := p.parsePlainInstr(ctx); err != nil {
				return err
			}
		default:
			return p.errorf(tok.Line, "expected instruction, got %q", tok.Value)
		}
	}
}

var stopEndElse = map[string]bool{"end": true, "else": true}
var stopEnd = map[string]bool{"end": true}

// parsePlainInstr assembles one flat-form instruction, including nested
// block/loop/if bodies up to their matching end.
func (p *Parser) parsePlainInstr(ctx *funcContext) error {
	tok := p.next()
	switch tok.Value {
	case "block", "loop":
		op := wasm.OpBlock
		if tok.Value == "loop" {
			op = wasm.OpLoop
		}
		label := p.takeLabel()
		ctx.emit(op)
		if err := p.parseBlockType(ctx); err != nil {
			return err
		}
		ctx.labels = append(ctx.labels, label)
		if err := p.parseInstrSeq(ctx, stopEnd); err != nil {
			return err
		}
		if err := p.expectKeyword("end"); err != nil {
			return err
		}
		p.takeLabel() // optional trailing label
		ctx.labels = ctx.labels[:len(ctx.labels)-1]
		ctx.emit(wasm.OpEnd)
		return nil

	case "if":
		label := p.takeLabel()
		ctx.emit(wasm.OpIf)
		if err := p.parseBlockType(ctx); err != nil {
			return err
		}
		ctx.labels = append(ctx.labels, label)
		if err := p.parseInstrSeq(ctx, stopEndElse); err != nil {
			return err
		}
		if p.peek().Type == token.Keyword && p.peek().Value == "else" {
			p.next()
			p.takeLabel()
			ctx.emit(wasm.OpElse)
			if err := p.parseInstrSeq(ctx, stopEnd); err != nil {
				return err
			}
		}
		if err := p.expectKeyword("end"); err != nil {
			return err
		}
		p.takeLabel()
		ctx.labels = ctx.labels[:len(ctx.labels)-1]
		ctx.emit(wasm.OpEnd)
		return nil
	}
	return p.assembleOp(ctx, tok)
}

// parseFoldedInstr assembles one parenthesized instruction, operands before
// operator.
func (p *Parser) parseFoldedInstr(ctx *funcContext) error {
	if err := p.expect(token.LParen); err != nil {
		return err
	}
	tok := p.peek()
	if tok.Type != token.Keyword {
		return p.errorf(tok.Line, "expected instruction, got %q", tok.Value)
	}
	p.next()

	switch tok.Value {
	case "block", "loop":
		op := wasm.OpBlock
		if tok.Value == "loop" {
			op = wasm.OpLoop
		}
		label := p.takeLabel()
		ctx.emit(op)
		if err := p.parseBlockType(ctx); err != nil {
			return err
		}
		ctx.labels = append(ctx.labels, label)
		if err := p.parseInstrSeq(ctx, nil); err != nil {
			return err
		}
		ctx.labels = ctx.labels[:len(ctx.labels)-1]
		ctx.emit(wasm.OpEnd)
		return p.expect(token.RParen)

	case "if":
		label := p.takeLabel()
		// condition: folded instructions until (then ...)
		var bt []byte
		{
			// block type precedes the condition
			save := ctx.code
			ctx.code = nil
			if err := p.parseBlockType(ctx); err != nil {
				ctx.code = save
				return err
			}
			bt = ctx.code
			ctx.code = save
		}
		for !p.peekGroup("then") {
			if p.peek().Type != token.LParen {
				return p.errorf(p.line(), "expected (then ...) in folded if")
			}
			if err := p.parseFoldedInstr(ctx); err != nil {
				return err
			}
		}
		ctx.emit(wasm.OpIf)
		ctx.emit(bt...)
		ctx.labels = append(ctx.labels, label)
		p.next()
		p.next() // consume "(then"
		if err := p.parseInstrSeq(ctx, nil); err != nil {
			return err
		}
		if err := p.expect(token.RParen); err != nil {
			return err
		}
		if p.peekGroup("else") {
			p.next()
			p.next()
			ctx.emit(wasm.OpElse)
			if err := p.parseInstrSeq(ctx, nil); err != nil {
				return err
			}
			if err := p.expect(token.RParen); err != nil {
				return err
			}
		}
		ctx.labels = ctx.labels[:len(ctx.labels)-1]
		ctx.emit(wasm.OpEnd)
		return p.expect(token.RParen)
	}

	// Plain operator folded: immediates belong to the operator, operands are
	// the remaining folded groups. Assemble the operator into a side buffer,
	// emit operands, then splice the operator back.
	save := ctx.code
	ctx.code = nil
	if err := p.assembleOp(ctx, tok); err != nil {
		ctx.code = save
		return err
	}
	opBytes := ctx.code
	ctx.code = save

	for p.peek().Type == token.LParen {
		if err := p.parseFoldedInstr(ctx); err != nil {
			return err
		}
	}
	ctx.emit(opBytes...)
	return p.expect(token.RParen)
}

// takeLabel consumes an optional label identifier.
func (p *Parser) takeLabel() string {
	if p.peek().Type == token.Ident {
		return p.next().Value
	}
	return ""
}

// parseBlockType emits the block type: empty, a single result byte, or a
// type index for multi-value shapes.
func (p *Parser) parseBlockType(ctx *funcContext) error {
	var ft wasm.FuncType
	for p.peekGroup("param") {
		p.next()
		p.next()
		for p.peek().Type == token.Keyword {
			vt, err := p.parseValType()
			if err != nil {
				return err
			}
			ft.Params = append(ft.Params, vt)
		}
		if err := p.expect(token.RParen); err != nil {
			return err
		}
	}
	for p.peekGroup("result") {
		p.next()
		p.next()
		for p.peek().Type == token.Keyword {
			vt, err := p.parseValType()
			if err != nil {
				return err
			}
			ft.Results = append(ft.Results, vt)
		}
		if err := p.expect(token.RParen); err != nil {
			return err
		}
	}

	switch {
	case len(ft.Params) == 0 && len(ft.Results) == 0:
		ctx.emit(wasm.BlockTypeEmpty)
	case len(ft.Params) == 0 && len(ft.Results) == 1:
		ctx.emit(byte(ft.Results[0]))
	default:
		idx := p.mod.AddType(ft)
		ctx.code = wasm.AppendSleb128(ctx.code, int64(idx))
	}
	return nil
}

// resolveLabel turns a label reference into a relative depth.
func (p *Parser) resolveLabel(ctx *funcContext) (uint32, error) {
	tok := p.peek()
	switch tok.Type {
	case token.Number:
		p.next()
		v, err := parseUint32(tok.Value)
		if err != nil {
			return 0, p.errorf(tok.Line, "bad label %q", tok.Value)
		}
		return v, nil
	case token.Ident:
		p.next()
		for depth := 0; depth < len(ctx.labels); depth++ {
			if ctx.labels[len(ctx.labels)-1-depth] == tok.Value {
				return uint32(depth), nil
			}
		}
		return 0, p.errorf(tok.Line, "unknown label %q", tok.Value)
	}
	return 0, p.errorf(tok.Line, "expected label, got %q", tok.Value)
}

// resolveLocal turns a local reference into an index.
func (p *Parser) resolveLocal(ctx *funcContext) (uint32, error) {
	tok := p.peek()
	switch tok.Type {
	case token.Number:
		p.next()
		v, err := parseUint32(tok.Value)
		if err != nil {
			return 0, p.errorf(tok.Line, "bad local index %q", tok.Value)
		}
		return v, nil
	case token.Ident:
		p.next()
		idx, ok := ctx.locals[tok.Value]
		if !ok {
			return 0, p.errorf(tok.Line, "unknown local %q", tok.Value)
		}
		return idx, nil
	}
	return 0, p.errorf(tok.Line, "expected local, got %q", tok.Value)
}
