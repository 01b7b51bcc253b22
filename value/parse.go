// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package value

import (
	"errors"
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// ParseError describes why a byte string is not a valid legacy value.
// Offset is the position in the input where parsing gave up.
type ParseError struct {
	Offset int
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("legacymsg/value: invalid input at offset %d: %s", e.Offset, e.Reason)
}

// Parse reads a single legacy value from in.
//
// This is deliberately not encoding/json. The signing format needs behavior
// the standard decoder does not offer: duplicate object keys are fatal (not
// last-write-wins), invalid utf8 is fatal (not replaced), unescaped control
// characters and lone surrogate escapes are fatal, and numbers evaluating to
// -0 or an infinity are fatal. Trailing non-whitespace after the value is an
// error as well.
func Parse(in []byte) (Value, error) {
	p := &parser{in: in}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if p.pos != len(p.in) {
		return nil, p.errf("trailing characters after value")
	}
	return v, nil
}

// ParseObject is like Parse but requires the top-level value to be an object.
func ParseObject(in []byte) (*Object, error) {
	v, err := Parse(in)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, ParseError{Offset: 0, Reason: fmt.Sprintf("expected an object, got %s", v.Kind())}
	}
	return obj, nil
}

type parser struct {
	in  []byte
	pos int
}

func (p *parser) errf(format string, args ...interface{}) error {
	return ParseError{Offset: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func isWS(b byte) bool {
	return b == 0x09 || b == 0x0a || b == 0x0d || b == 0x20
}

func (p *parser) skipWS() {
	for p.pos < len(p.in) && isWS(p.in[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() (byte, error) {
	if p.pos >= len(p.in) {
		return 0, p.errf("unexpected end of input")
	}
	return p.in[p.pos], nil
}

// eat consumes lit if it is next in the input.
func (p *parser) eat(lit string) bool {
	if len(p.in)-p.pos < len(lit) {
		return false
	}
	if string(p.in[p.pos:p.pos+len(lit)]) != lit {
		return false
	}
	p.pos += len(lit)
	return true
}

func (p *parser) value() (Value, error) {
	p.skipWS()
	b, err := p.peek()
	if err != nil {
		return nil, err
	}
	switch {
	case b == 'n':
		if !p.eat("null") {
			return nil, p.errf("invalid literal")
		}
		return Null{}, nil
	case b == 't':
		if !p.eat("true") {
			return nil, p.errf("invalid literal")
		}
		return Bool(true), nil
	case b == 'f':
		if !p.eat("false") {
			return nil, p.errf("invalid literal")
		}
		return Bool(false), nil
	case b == '"':
		s, err := p.string()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case b == '[':
		return p.array()
	case b == '{':
		return p.object()
	case b == '-' || (b >= '0' && b <= '9'):
		return p.number()
	default:
		return nil, p.errf("unexpected character %q", b)
	}
}

func (p *parser) array() (Value, error) {
	p.pos++ // [
	arr := Array{}
	first := true
	for {
		p.skipWS()
		b, err := p.peek()
		if err != nil {
			return nil, err
		}
		if b == ']' {
			p.pos++
			return arr, nil
		}
		if !first {
			if b != ',' {
				return nil, p.errf("expected ',' or ']' in array")
			}
			p.pos++
		}
		first = false
		elem, err := p.value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, elem)
	}
}

func (p *parser) object() (Value, error) {
	p.pos++ // {
	obj := NewObject()
	first := true
	for {
		p.skipWS()
		b, err := p.peek()
		if err != nil {
			return nil, err
		}
		if b == '}' {
			p.pos++
			return obj, nil
		}
		if !first {
			if b != ',' {
				return nil, p.errf("expected ',' or '}' in object")
			}
			p.pos++
			p.skipWS()
		}
		first = false

		if b, err = p.peek(); err != nil {
			return nil, err
		}
		if b != '"' {
			return nil, p.errf("expected object key")
		}
		key, err := p.string()
		if err != nil {
			return nil, err
		}

		p.skipWS()
		if b, err = p.peek(); err != nil {
			return nil, err
		}
		if b != ':' {
			return nil, p.errf("expected ':' after object key")
		}
		p.pos++

		val, err := p.value()
		if err != nil {
			return nil, err
		}
		if !obj.Set(key, val) {
			return nil, p.errf("duplicate object key %q", key)
		}
	}
}

// number follows the JSON grammar but additionally rejects values that have
// no place in the legacy data model: leading zeros, -0 and anything that
// overflows to an infinity.
func (p *parser) number() (Value, error) {
	start := p.pos

	if p.in[p.pos] == '-' {
		p.pos++
	}

	b, err := p.peek()
	if err != nil {
		return nil, err
	}
	switch {
	case b == '0':
		p.pos++ // a leading zero must not be followed by more digits
	case b >= '1' && b <= '9':
		p.digits()
	default:
		return nil, p.errf("expected digit")
	}

	if p.pos < len(p.in) && p.in[p.pos] == '.' {
		p.pos++
		if err := p.atLeastOneDigit(); err != nil {
			return nil, err
		}
	}

	if p.pos < len(p.in) && (p.in[p.pos] == 'e' || p.in[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.in) && (p.in[p.pos] == '+' || p.in[p.pos] == '-') {
			p.pos++
		}
		if err := p.atLeastOneDigit(); err != nil {
			return nil, err
		}
	}

	f, err := strconv.ParseFloat(string(p.in[start:p.pos]), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return nil, p.errf("invalid number: %s", err)
	}
	// overflows came back as an infinity, underflows as a signed zero
	if !Float(f).Valid() {
		return nil, p.errf("number is not a valid legacy value (infinite or negative zero)")
	}
	return Float(f), nil
}

func (p *parser) digits() {
	for p.pos < len(p.in) && p.in[p.pos] >= '0' && p.in[p.pos] <= '9' {
		p.pos++
	}
}

func (p *parser) atLeastOneDigit() error {
	b, err := p.peek()
	if err != nil {
		return err
	}
	if b < '0' || b > '9' {
		return p.errf("expected digit")
	}
	p.digits()
	return nil
}

func (p *parser) string() (string, error) {
	p.pos++ // opening quote
	var out []byte
	for {
		b, err := p.peek()
		if err != nil {
			return "", err
		}
		switch {
		case b == '"':
			p.pos++
			return string(out), nil

		case b == '\\':
			p.pos++
			esc, err := p.peek()
			if err != nil {
				return "", err
			}
			p.pos++
			switch esc {
			case '"', '\\', '/':
				out = append(out, esc)
			case 'b':
				out = append(out, 0x08)
			case 'f':
				out = append(out, 0x0c)
			case 'n':
				out = append(out, 0x0a)
			case 'r':
				out = append(out, 0x0d)
			case 't':
				out = append(out, 0x09)
			case 'u':
				r, err := p.unicodeEscape()
				if err != nil {
					return "", err
				}
				var enc [utf8.UTFMax]byte
				n := utf8.EncodeRune(enc[:], r)
				out = append(out, enc[:n]...)
			default:
				return "", p.errf("invalid escape character %q", esc)
			}

		case b < 0x20:
			return "", p.errf("unescaped control character 0x%02x in string", b)

		case b < utf8.RuneSelf:
			out = append(out, b)
			p.pos++

		default:
			r, size := utf8.DecodeRune(p.in[p.pos:])
			if r == utf8.RuneError && size == 1 {
				return "", p.errf("invalid utf8 in string")
			}
			out = append(out, p.in[p.pos:p.pos+size]...)
			p.pos += size
		}
	}
}

// unicodeEscape reads the four hex digits after `\u`. A leading surrogate
// must be followed by a second escape holding the trailing surrogate.
func (p *parser) unicodeEscape() (rune, error) {
	u, err := p.hex4()
	if err != nil {
		return 0, err
	}
	if !utf16.IsSurrogate(rune(u)) {
		return rune(u), nil
	}
	if !p.eat(`\u`) {
		return 0, p.errf("lone surrogate escape in string")
	}
	u2, err := p.hex4()
	if err != nil {
		return 0, err
	}
	r := utf16.DecodeRune(rune(u), rune(u2))
	if r == unicodeReplacement {
		return 0, p.errf("invalid surrogate pair in string")
	}
	return r, nil
}

const unicodeReplacement = '�'

func (p *parser) hex4() (uint16, error) {
	if len(p.in)-p.pos < 4 {
		return 0, p.errf("unfinished unicode escape")
	}
	var u uint16
	for i := 0; i < 4; i++ {
		b := p.in[p.pos]
		switch {
		case b >= '0' && b <= '9':
			u = u<<4 | uint16(b-'0')
		case b >= 'a' && b <= 'f':
			u = u<<4 | uint16(b-'a'+10)
		case b >= 'A' && b <= 'F':
			u = u<<4 | uint16(b-'A'+10)
		default:
			return 0, p.errf("invalid hex digit %q in unicode escape", b)
		}
		p.pos++
	}
	return u, nil
}
