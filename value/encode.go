// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package value

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidFloat is returned by the encoders for numbers that have no legacy
// representation (NaN, the infinities, negative zero).
type ErrInvalidFloat struct {
	F float64
}

func (e ErrInvalidFloat) Error() string {
	return fmt.Sprintf("legacymsg/value: %v is not encodable", e.F)
}

// Encode writes v in the signing format, the exact bytes that get hashed and
// signed: two-space indentation, a space after the colon, object entries in
// insertion order, raw utf8 for everything outside the escape set and no
// trailing newline. This mimics V8's JSON.stringify(v, null, 2), matching it
// byte for byte is the whole point of this package.
func Encode(v Value) ([]byte, error) {
	w := encoder{}
	if err := w.value(v); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// EncodeCompact writes v without any whitespace. This is the form messages
// travel in on the wire and the form content is stored in; it is not the
// form that gets signed.
func EncodeCompact(v Value) ([]byte, error) {
	w := encoder{compact: true}
	if err := w.value(v); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

type encoder struct {
	buf     bytes.Buffer
	compact bool
	depth   int
}

func (w *encoder) value(v Value) error {
	switch t := v.(type) {
	case Null:
		w.buf.WriteString("null")
	case Bool:
		if t {
			w.buf.WriteString("true")
		} else {
			w.buf.WriteString("false")
		}
	case Float:
		if !t.Valid() {
			return ErrInvalidFloat{F: float64(t)}
		}
		appendFloat(&w.buf, float64(t))
	case String:
		quoteString(&w.buf, string(t))
	case Array:
		return w.array(t)
	case *Object:
		return w.object(t)
	default:
		return fmt.Errorf("legacymsg/value: cannot encode %T", v)
	}
	return nil
}

func (w *encoder) array(arr Array) error {
	if len(arr) == 0 {
		// no whitespace between the brackets, even in the signing format
		w.buf.WriteString("[]")
		return nil
	}
	w.buf.WriteByte('[')
	w.depth++
	for i, elem := range arr {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.entryIndent()
		if err := w.value(elem); err != nil {
			return err
		}
	}
	w.depth--
	w.closeIndent()
	w.buf.WriteByte(']')
	return nil
}

func (w *encoder) object(obj *Object) error {
	if obj.Len() == 0 {
		w.buf.WriteString("{}")
		return nil
	}
	w.buf.WriteByte('{')
	w.depth++
	for i, key := range obj.Keys() {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.entryIndent()
		quoteString(&w.buf, key)
		if w.compact {
			w.buf.WriteByte(':')
		} else {
			w.buf.WriteString(": ")
		}
		val, _ := obj.Get(key)
		if err := w.value(val); err != nil {
			return err
		}
	}
	w.depth--
	w.closeIndent()
	w.buf.WriteByte('}')
	return nil
}

func (w *encoder) entryIndent() {
	if w.compact {
		return
	}
	w.buf.WriteByte('\n')
	for i := 0; i < w.depth; i++ {
		w.buf.WriteString("  ")
	}
}

func (w *encoder) closeIndent() {
	if w.compact {
		return
	}
	w.buf.WriteByte('\n')
	for i := 0; i < w.depth; i++ {
		w.buf.WriteString("  ")
	}
}

const hexDigits = "0123456789abcdef"

// quoteString writes s as a JSON string the way V8 does:
// https://262.ecma-international.org/6.0/#sec-quotejsonstring
// Only the double quote, the backslash and the control characters are
// escaped. Everything else, including non-ASCII, passes through as raw utf8.
func quoteString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	start := 0
	for i := 0; i < len(s); {
		if b := s[i]; b < utf8.RuneSelf {
			if b >= 0x20 && b != '"' && b != '\\' {
				i++
				continue
			}

			buf.WriteString(s[start:i])
			buf.WriteByte('\\')
			switch b {
			case '\\', '"':
				buf.WriteByte(b)
			case '\n':
				buf.WriteByte('n')
			case '\r':
				buf.WriteByte('r')
			case '\t':
				buf.WriteByte('t')
			case '\b':
				buf.WriteByte('b')
			case '\f':
				buf.WriteByte('f')
			default:
				buf.WriteString(`u00`)
				buf.WriteByte(hexDigits[b>>4])
				buf.WriteByte(hexDigits[b&0xf])
			}

			i++
			start = i
			continue
		}

		c, size := utf8.DecodeRuneInString(s[i:])
		if c == utf8.RuneError && size == 1 {
			// V8 strings cannot hold invalid utf8, it gets replaced on the
			// way in. Do the same so the output is always valid utf8.
			buf.WriteString(s[start:i])
			buf.WriteRune(unicodeReplacement)
			i += size
			start = i
			continue
		}

		i += size
	}
	buf.WriteString(s[start:])
	buf.WriteByte('"')
}
