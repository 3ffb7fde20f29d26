// Package wat compiles WebAssembly text format source into the in-memory
// module description used by the rest of the runtime.
package wat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/inyutin/WAVM/wasm"
	"github.com/inyutin/WAVM/wat/internal/parser"
	"github.com/inyutin/WAVM/wat/internal/token"
)

// Error is one positioned diagnostic from the tokenizer or parser.
type Error struct {
	Line    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Line, e.Message)
}

// ErrorList collects every diagnostic from one compilation. It is never
// empty when returned.
type ErrorList []*Error

func (l ErrorList) Error() string {
	if len(l) == 1 {
		return l[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(l))
	for _, e := range l {
		b.WriteString("\n\t")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Compile parses source and returns the module description. On failure the
// returned error is an ErrorList; use errors.As to recover the individual
// diagnostics.
func Compile(source string) (*wasm.Module, error) {
	toks, err := token.Tokenize(source)
	if err != nil {
		var lex *token.Error
		if errors.As(err, &lex) {
			return nil, ErrorList{{Line: lex.Line, Message: lex.Msg}}
		}
		return nil, ErrorList{{Line: 1, Message: err.Error()}}
	}

	mod, diags := parser.New(toks).Parse()
	if len(diags) > 0 {
		list := make(ErrorList, len(diags))
		for i, d := range diags {
			list[i] = &Error{Line: d.Line, Message: d.Message}
		}
		return nil, list
	}
	return mod, nil
}
