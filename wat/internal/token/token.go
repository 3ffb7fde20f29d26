// Package token turns WebAssembly text source into a flat token stream.
package token

import "fmt"

// Type classifies a token.
type Type int

const (
	LParen Type = iota
	RParen
	Ident   // $-prefixed symbolic name
	Keyword // bare word: field names, instructions, value types
	String  // quoted string, value holds the raw contents between quotes
	Number  // integer or float literal
)

// Token is one lexical element with its source line for diagnostics.
type Token struct {
	Value string
	Type  Type
	Line  int
}

// Error is a lexical error at a source line.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%d: %s", e.Line, e.Msg) }

// Tokenize splits src into tokens, stripping ;; line comments and nested
// (; ;) block comments. String escapes are preserved verbatim; the parser
// decodes them.
func Tokenize(src string) ([]Token, error) {
	var toks []Token
	line := 1
	i := 0
	n := len(src)

	for i < n {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == ';' && i+1 < n && src[i+1] == ';':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '(' && i+1 < n && src[i+1] == ';':
			depth := 1
			i += 2
			for i < n && depth > 0 {
				switch {
				case src[i] == '\n':
					line++
					i++
				case src[i] == '(' && i+1 < n && src[i+1] == ';':
					depth++
					i += 2
				case src[i] == ';' && i+1 < n && src[i+1] == ')':
					depth--
					i += 2
				default:
					i++
				}
			}
			if depth > 0 {
				return nil, &Error{Line: line, Msg: "unterminated block comment"}
			}
		case c == '(':
			toks = append(toks, Token{Value: "(", Type: LParen, Line: line})
			i++
		case c == ')':
			toks = append(toks, Token{Value: ")", Type: RParen, Line: line})
			i++
		case c == '"':
			start := i + 1
			j := start
			for j < n {
				if src[j] == '\\' {
					j += 2
					continue
				}
				if src[j] == '"' {
					break
				}
				if src[j] == '\n' {
					return nil, &Error{Line: line, Msg: "unterminated string literal"}
				}
				j++
			}
			if j >= n {
				return nil, &Error{Line: line, Msg: "unterminated string literal"}
			}
			toks = append(toks, Token{Value: src[start:j], Type: String, Line: line})
			i = j + 1
		case c == '$':
			j := i + 1
			for j < n && isIDChar(src[j]) {
				j++
			}
			if j == i+1 {
				return nil, &Error{Line: line, Msg: "empty identifier"}
			}
			toks = append(toks, Token{Value: src[i:j], Type: Ident, Line: line})
			i = j
		case isIDChar(c):
			j := i
			for j < n && isIDChar(src[j]) {
				j++
			}
			word := src[i:j]
			toks = append(toks, Token{Value: word, Type: classify(word), Line: line})
			i = j
		default:
			return nil, &Error{Line: line, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	return toks, nil
}

func classify(word string) Type {
	c := word[0]
	if c >= '0' && c <= '9' {
		return Number
	}
	if (c == '+' || c == '-') && len(word) > 1 {
		d := word[1]
		if (d >= '0' && d <= '9') || word[1:] == "inf" || hasPrefix(word[1:], "nan") {
			return Number
		}
	}
	if word == "inf" || hasPrefix(word, "nan") {
		return Number
	}
	return Keyword
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func isIDChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '/',
		':', '<', '=', '>', '?', '@', '\\', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
