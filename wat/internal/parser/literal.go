package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/inyutin/WAVM/wat/internal/token"
)

// parseUint32 parses a decimal or 0x-prefixed index/limit literal,
// underscores allowed.
func parseUint32(s string) (uint32, error) {
	s = strings.ReplaceAll(s, "_", "")
	var v uint64
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 32)
	} else {
		v, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// parseIntImm reads an integer immediate of the given width, accepting both
// signed and unsigned spellings and wrapping to the two's-complement value.
func (p *Parser) parseIntImm(line int, bits int) (int64, error) {
	tok := p.peek()
	if tok.Type != token.Number {
		return 0, p.errorf(tok.Line, "expected integer, got %q", tok.Value)
	}
	p.next()
	s := strings.ReplaceAll(tok.Value, "_", "")

	neg := false
	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}

	mag, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, p.errorf(tok.Line, "bad integer literal %q", tok.Value)
	}

	var v int64
	if neg {
		if mag > 1<<63 {
			return 0, p.errorf(tok.Line, "integer literal %q out of range", tok.Value)
		}
		v = -int64(mag)
	} else {
		v = int64(mag) // 2^63..2^64-1 wraps, matching u64 spellings
	}

	if bits == 32 {
		if neg && v < math.MinInt32 {
			return 0, p.errorf(tok.Line, "integer literal %q out of range", tok.Value)
		}
		if !neg && mag > math.MaxUint32 {
			return 0, p.errorf(tok.Line, "integer literal %q out of range", tok.Value)
		}
		v = int64(int32(uint32(mag)))
		if neg {
			v = -int64(mag)
		}
	}
	return v, nil
}

// parseFloatImm reads a float immediate: decimal floats, inf, nan, and
// nan:0x payloads.
func (p *Parser) parseFloatImm(line int, bits int) (float64, error) {
	tok := p.peek()
	if tok.Type != token.Number {
		return 0, p.errorf(tok.Line, "expected float, got %q", tok.Value)
	}
	p.next()
	s := strings.ReplaceAll(tok.Value, "_", "")

	neg := false
	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	}

	var f float64
	switch {
	case s == "inf":
		f = math.Inf(1)
	case s == "nan":
		f = math.NaN()
	case strings.HasPrefix(s, "nan:0x"):
		payload, err := strconv.ParseUint(strings.ReplaceAll(s[6:], "_", ""), 16, 64)
		if err != nil {
			return 0, p.errorf(tok.Line, "bad nan payload %q", tok.Value)
		}
		if bits == 32 {
			f = float64(math.Float32frombits(0x7F800000 | uint32(payload&0x7FFFFF)))
		} else {
			f = math.Float64frombits(0x7FF0000000000000 | payload&0xFFFFFFFFFFFFF)
		}
	default:
		var err error
		f, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, p.errorf(tok.Line, "bad float literal %q", tok.Value)
		}
	}
	if neg {
		f = -f
	}
	return f, nil
}

// DecodeStringLiteral expands the escapes in a raw string literal body.
func DecodeStringLiteral(raw string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(raw) {
			return "", fmt.Errorf("trailing backslash")
		}
		switch raw[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		case 'u':
			if i+1 >= len(raw) || raw[i+1] != '{' {
				return "", fmt.Errorf(`\u escape missing '{'`)
			}
			end := strings.IndexByte(raw[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf(`\u escape missing '}'`)
			}
			cp, err := strconv.ParseUint(strings.ReplaceAll(raw[i+2:i+2+end], "_", ""), 16, 32)
			if err != nil || cp > 0x10FFFF {
				return "", fmt.Errorf(`bad \u escape`)
			}
			b.WriteRune(rune(cp))
			i += 2 + end
		default:
			// two hex digits: a raw byte
			if i+1 < len(raw) && isHex(raw[i]) && isHex(raw[i+1]) {
				v, _ := strconv.ParseUint(raw[i:i+2], 16, 8)
				b.WriteByte(byte(v))
				i++
			} else {
				return "", fmt.Errorf("unknown escape \\%c", raw[i])
			}
		}
	}
	return b.String(), nil
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
