package token

import "testing"

func TestTokenizeBasics(t *testing.T) {
	toks, err := Tokenize(`(module ;; comment
		(func $f (; block (; nested ;) comment ;) (param i32)
			i32.const -42
		)
	)`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}

	want := []Token{
		{"(", LParen, 1}, {"module", Keyword, 1},
		{"(", LParen, 2}, {"func", Keyword, 2}, {"$f", Ident, 2},
		{"(", LParen, 2}, {"param", Keyword, 2}, {"i32", Keyword, 2}, {")", RParen, 2},
		{"i32.const", Keyword, 3}, {"-42", Number, 3},
		{")", RParen, 4},
		{")", RParen, 5},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i] != w {
			t.Errorf("token %d: got %+v, want %+v", i, toks[i], w)
		}
	}
}

func TestTokenizeStringsAndNumbers(t *testing.T) {
	toks, err := Tokenize(`"hello\00world" 0x1F nan:0x7 inf -inf +3.25`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	wantTypes := []Type{String, Number, Number, Number, Number, Number}
	if len(toks) != len(wantTypes) {
		t.Fatalf("got %d tokens: %v", len(toks), toks)
	}
	for i, wt := range wantTypes {
		if toks[i].Type != wt {
			t.Errorf("token %d (%q): type %d, want %d", i, toks[i].Value, toks[i].Type, wt)
		}
	}
	if toks[0].Value != `hello\00world` {
		t.Errorf("string token kept escapes: %q", toks[0].Value)
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unterminated string", `"abc`},
		{"unterminated comment", `(; forever`},
		{"empty ident", `$ x`},
		{"stray char", "\x01"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Tokenize(tc.src); err == nil {
				t.Error("expected error")
			}
		})
	}
}
