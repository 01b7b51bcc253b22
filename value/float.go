// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package value

import (
	"bytes"
	"strconv"
	"strings"
)

// appendFloat renders f the way ECMAScript's Number::toString(10) does
// (ECMA-262 7.1.12.1). This is the single most interop-critical piece of the
// codec: other stacks stringify numbers through V8 before hashing, so every
// digit, the decimal point placement and the exponent threshold have to come
// out identical here.
//
// strconv supplies the shortest round-tripping digits; the notation rules
// (fixed form for decimal exponents in [-6, 21), exponent form outside, `e+`/
// `e-` with no zero padding) are layered on top.
//
// The caller must only pass valid legacy floats, see Float.Valid.
func appendFloat(buf *bytes.Buffer, f float64) {
	if f == 0 {
		buf.WriteByte('0')
		return
	}
	if f < 0 {
		buf.WriteByte('-')
		f = -f
	}

	// 'e' with precision -1 gives the shortest digit string, normalized to
	// d[.ddd]e±dd
	mant := strconv.FormatFloat(f, 'e', -1, 64)
	e := strings.IndexByte(mant, 'e')
	exp, _ := strconv.Atoi(mant[e+1:])
	digits := mant[:e]
	if len(digits) > 1 {
		digits = digits[:1] + digits[2:] // cut the point
	}

	k := len(digits)  // number of significant digits
	n := exp + 1      // position of the decimal point relative to digits

	switch {
	case k <= n && n <= 21:
		// integral, pad with zeros: 123e2 -> "12300"
		buf.WriteString(digits)
		for i := 0; i < n-k; i++ {
			buf.WriteByte('0')
		}

	case 0 < n && n <= 21:
		// point inside the digits: 1.25
		buf.WriteString(digits[:n])
		buf.WriteByte('.')
		buf.WriteString(digits[n:])

	case -6 < n && n <= 0:
		// leading zeros: 0.00125
		buf.WriteString("0.")
		for i := 0; i < -n; i++ {
			buf.WriteByte('0')
		}
		buf.WriteString(digits)

	default:
		// exponent notation: 1.25e+22, 1e-7
		buf.WriteByte(digits[0])
		if k > 1 {
			buf.WriteByte('.')
			buf.WriteString(digits[1:])
		}
		buf.WriteByte('e')
		if n-1 >= 0 {
			buf.WriteByte('+')
			buf.WriteString(strconv.Itoa(n - 1))
		} else {
			buf.WriteByte('-')
			buf.WriteString(strconv.Itoa(1 - n))
		}
	}
}
