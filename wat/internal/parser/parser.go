// Package parser builds a wasm.Module from a WebAssembly text token stream.
//
// Parsing is two-pass: a prescan assigns indices to every $name in each
// index space so forward references resolve, then the main pass builds the
// module description. On a syntax error the parser records a positioned
// diagnostic, skips to the end of the enclosing module field, and keeps
// going, so one run reports every malformed field.
package parser

import (
	"errors"
	"fmt"

	"github.com/inyutin/WAVM/wasm"
	"github.com/inyutin/WAVM/wat/internal/token"
)

// Diagnostic is one parse error with its source line.
type Diagnostic struct {
	Line    int
	Message string
}

const maxDiagnostics = 100

// errSync signals that a diagnostic was recorded and the parser should skip
// to the end of the current field.
var errSync = errors.New("parse error")

type space int

const (
	spaceFunc space = iota
	spaceTable
	spaceMem
	spaceGlobal
	spaceTag
	spaceType
	numSpaces
)

var spaceNames = [numSpaces]string{"func", "table", "memory", "global", "tag", "type"}

// Parser holds parse state for a single module.
type Parser struct {
	toks []token.Token
	pos  int
	mod  *wasm.Module

	diags []Diagnostic

	names   [numSpaces]map[string]uint32
	defined [numSpaces]bool

	fieldStart int
}

// New creates a parser over the token stream.
func New(toks []token.Token) *Parser {
	p := &Parser{toks: toks, mod: &wasm.Module{}}
	for i := range p.names {
		p.names[i] = make(map[string]uint32)
	}
	return p
}

// Parse consumes the stream and returns the module description. A non-empty
// diagnostic list means the module is unusable.
func (p *Parser) Parse() (*wasm.Module, []Diagnostic) {
	if err := p.parseModule(); err != nil && !errors.Is(err, errSync) {
		// parseModule only returns errSync; anything else is a defect
		p.diags = append(p.diags, Diagnostic{Line: p.line(), Message: err.Error()})
	}
	if len(p.diags) > 0 {
		return nil, p.diags
	}
	return p.mod, nil
}

func (p *Parser) parseModule() error {
	if err := p.expect(token.LParen); err != nil {
		return err
	}
	if err := p.expectKeyword("module"); err != nil {
		return err
	}
	if p.peek().Type == token.Ident {
		p.next() // module name, unused
	}

	p.prescan()

	// Explicit type fields define the head of the type section; inline
	// signature uses elsewhere dedupe against it. Handle them first.
	body := p.pos
	p.forEachField(func(keyword string) error {
		if keyword != "type" {
			return nil
		}
		return p.parseTypeField()
	})
	p.pos = body
	p.forEachField(func(keyword string) error {
		if keyword == "type" {
			return nil
		}
		return p.parseField(keyword)
	})

	if err := p.expect(token.RParen); err != nil {
		return err
	}
	if !p.atEnd() {
		return p.errorf(p.line(), "unexpected %q after module", p.peek().Value)
	}
	return nil
}

// forEachField walks the module body invoking fn per field, recovering from
// errSync by skipping the malformed field. Leaves pos at the module's
// closing paren (or stream end).
func (p *Parser) forEachField(fn func(keyword string) error) {
	for {
		tok := p.peek()
		if tok.Type == token.RParen || p.atEnd() {
			return
		}
		if tok.Type != token.LParen {
			p.record(tok.Line, fmt.Sprintf("expected module field, got %q", tok.Value))
			p.next()
			continue
		}
		p.fieldStart = p.pos
		p.next()
		kw := p.peek()
		if kw.Type != token.Keyword {
			p.record(kw.Line, fmt.Sprintf("expected field keyword, got %q", kw.Value))
			p.syncField()
			continue
		}
		p.next()
		if err := fn(kw.Value); err != nil {
			p.syncField()
			continue
		}
		// fn returning nil without consuming means "not mine": skip it
		if p.pos <= p.fieldStart+2 {
			p.syncField()
		}
	}
}

// syncField rewinds to the start of the current field and skips past it.
func (p *Parser) syncField() {
	p.pos = p.fieldStart
	p.skipGroup()
}

// skipGroup advances past one balanced parenthesized group.
func (p *Parser) skipGroup() {
	if p.peek().Type != token.LParen {
		p.next()
		return
	}
	depth := 0
	for !p.atEnd() {
		switch p.next().Type {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

func (p *Parser) parseField(keyword string) error {
	switch keyword {
	case "import":
		return p.parseImport()
	case "func":
		return p.parseFunc()
	case "table":
		return p.parseTable()
	case "memory":
		return p.parseMemory()
	case "global":
		return p.parseGlobal()
	case "tag":
		return p.parseTag()
	case "export":
		return p.parseExportField()
	case "start":
		return p.parseStart()
	case "elem":
		return p.parseElem()
	case "data":
		return p.parseData()
	default:
		return p.errorf(p.line(), "unknown module field %q", keyword)
	}
}

// prescan assigns an index to every named declaration so later fields can
// reference earlier and later names alike. Indices follow appearance order
// per space; the main pass enforces that imports precede definitions, which
// keeps appearance order equal to final index order.
func (p *Parser) prescan() {
	save := p.pos
	defer func() { p.pos = save }()

	var counters [numSpaces]uint32
	for {
		tok := p.peek()
		if tok.Type == token.RParen || p.atEnd() {
			return
		}
		if tok.Type != token.LParen {
			p.next()
			continue
		}
		start := p.pos
		p.next()
		kw := p.peek()
		if kw.Type != token.Keyword {
			p.pos = start
			p.skipGroup()
			continue
		}
		p.next()

		switch kw.Value {
		case "func", "table", "memory", "global", "tag", "type":
			sp := spaceOf(kw.Value)
			if p.peek().Type == token.Ident {
				p.names[sp][p.peek().Value] = counters[sp]
			}
			counters[sp]++
		case "import":
			// (import "mod" "name" (kind $id ...))
			if p.peek().Type == token.String {
				p.next()
			}
			if p.peek().Type == token.String {
				p.next()
			}
			if p.peek().Type == token.LParen {
				p.next()
				if k := p.peek(); k.Type == token.Keyword {
					if sp, ok := spaceOfOK(k.Value); ok {
						p.next()
						if p.peek().Type == token.Ident {
							p.names[sp][p.peek().Value] = counters[sp]
						}
						counters[sp]++
					}
				}
			}
		}
		p.pos = start
		p.skipGroup()
	}
}

func spaceOf(keyword string) space {
	sp, _ := spaceOfOK(keyword)
	return sp
}

func spaceOfOK(keyword string) (space, bool) {
	switch keyword {
	case "func":
		return spaceFunc, true
	case "table":
		return spaceTable, true
	case "memory":
		return spaceMem, true
	case "global":
		return spaceGlobal, true
	case "tag":
		return spaceTag, true
	case "type":
		return spaceType, true
	}
	return 0, false
}

// token navigation

var eofToken = token.Token{Value: "<eof>", Type: token.Type(-1)}

func (p *Parser) peek() token.Token {
	if p.pos >= len(p.toks) {
		return eofToken
	}
	return p.toks[p.pos]
}

func (p *Parser) next() token.Token {
	tok := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return tok
}

func (p *Parser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *Parser) line() int {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].Line
	}
	if len(p.toks) > 0 {
		return p.toks[len(p.toks)-1].Line
	}
	return 1
}

func (p *Parser) expect(t token.Type) error {
	tok := p.peek()
	if tok.Type != t {
		want := "token"
		switch t {
		case token.LParen:
			want = `"("`
		case token.RParen:
			want = `")"`
		case token.String:
			want = "string"
		}
		return p.errorf(tok.Line, "expected %s, got %q", want, tok.Value)
	}
	p.next()
	return nil
}

func (p *Parser) expectKeyword(kw string) error {
	tok := p.peek()
	if tok.Type != token.Keyword || tok.Value != kw {
		return p.errorf(tok.Line, "expected %q, got %q", kw, tok.Value)
	}
	p.next()
	return nil
}

func (p *Parser) expectString() (string, error) {
	tok := p.peek()
	if tok.Type != token.String {
		return "", p.errorf(tok.Line, "expected string, got %q", tok.Value)
	}
	p.next()
	s, err := DecodeStringLiteral(tok.Value)
	if err != nil {
		return "", p.errorf(tok.Line, "bad string literal: %v", err)
	}
	return s, nil
}

// parseIdx reads a numeric index or resolves a $name in the given space.
func (p *Parser) parseIdx(sp space) (uint32, error) {
	tok := p.peek()
	switch tok.Type {
	case token.Number:
		p.next()
		v, err := parseUint32(tok.Value)
		if err != nil {
			return 0, p.errorf(tok.Line, "bad %s index %q", spaceNames[sp], tok.Value)
		}
		return v, nil
	case token.Ident:
		p.next()
		idx, ok := p.names[sp][tok.Value]
		if !ok {
			return 0, p.errorf(tok.Line, "unknown %s %q", spaceNames[sp], tok.Value)
		}
		return idx, nil
	}
	return 0, p.errorf(tok.Line, "expected %s index, got %q", spaceNames[sp], tok.Value)
}

// record appends a diagnostic without unwinding.
func (p *Parser) record(line int, msg string) {
	if len(p.diags) < maxDiagnostics {
		p.diags = append(p.diags, Diagnostic{Line: line, Message: msg})
	}
}

// errorf records a diagnostic and returns errSync for unwinding.
func (p *Parser) errorf(line int, format string, args ...any) error {
	p.record(line, fmt.Sprintf(format, args...))
	return errSync
}

// markDefined flags that a definition was seen in the space; imports in the
// same space must all come first so binary and text index order agree.
func (p *Parser) markDefined(sp space) {
	p.defined[sp] = true
}

func (p *Parser) checkImportOrder(sp space, line int) error {
	if p.defined[sp] {
		return p.errorf(line, "%s import after %s definition", spaceNames[sp], spaceNames[sp])
	}
	return nil
}
