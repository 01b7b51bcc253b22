// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package legacymsg

import (
	"crypto/sha256"
	"errors"
	"fmt"

	refs "github.com/ssbc/go-ssb-refs"
	"golang.org/x/crypto/nacl/auth"
	"golang.org/x/text/encoding/unicode"
)

// MaxMessageLength is the network-wide size limit for a single message,
// counted in utf16 code units of the signing encoding (not in bytes).
const MaxMessageLength = 8192

var utf16enc = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()

// WeirdEncoding maps the signing encoding to the byte string that actually
// gets hashed. The reference stack hashes new Buffer(str, "binary"), which
// the hidden v8 string representation turns into the low byte of each utf16
// code unit. ASCII passes through untouched, everything else gets mangled,
// and interop means mangling it the same way.
func WeirdEncoding(in []byte) ([]byte, error) {
	u16b := make([]byte, len(in)*2)

	nDst, nSrc, err := utf16enc.Transform(u16b, in, true)
	if err != nil {
		return nil, fmt.Errorf("legacymsg: weird encoding transform failed: %w", err)
	}
	if nSrc != len(in) {
		return nil, errors.New("legacymsg: weird encoding processed a different number of bytes than were given")
	}
	u16b = u16b[:nDst]

	// keep the low byte of each code unit
	if len(u16b)%2 != 0 {
		return nil, errors.New("legacymsg: expected an even number of bytes in utf16")
	}
	for i := 0; i < len(u16b)/2; i++ {
		u16b[i] = u16b[i*2]
	}
	return u16b[:len(u16b)/2], nil
}

// hashMessage derives the message key from the signing encoding of the full
// message, signature included.
func hashMessage(enc []byte) (refs.MessageRef, int, error) {
	warped, err := WeirdEncoding(enc)
	if err != nil {
		return refs.MessageRef{}, 0, err
	}

	h := sha256.Sum256(warped)
	mr, err := refs.NewMessageRefFromBytes(h[:], refs.RefAlgoMessageSSB1)
	if err != nil {
		return refs.MessageRef{}, 0, fmt.Errorf("legacymsg: could not build message ref: %w", err)
	}
	return mr, len(warped), nil
}

// maybeHMAC replaces the signed bytes with their keyed MAC when the feed uses
// a signing capability (testnets, private networks).
func maybeHMAC(signed []byte, hmacSecret *[32]byte) []byte {
	if hmacSecret == nil {
		return signed
	}
	mac := auth.Sum(signed, hmacSecret)
	return mac[:]
}
