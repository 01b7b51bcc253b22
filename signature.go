// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package legacymsg

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	refs "github.com/ssbc/go-ssb-refs"
)

const signatureSuffix = ".sig.ed25519"

// Signature is the decoded detached signature of a message.
type Signature []byte

// NewSignatureFromString decodes the field form of a signature, std base64
// followed by the algorithm suffix.
func NewSignatureFromString(input string) (Signature, error) {
	if !strings.HasSuffix(input, signatureSuffix) {
		i := strings.LastIndexByte(input, '.')
		if i < 0 {
			i = 0
		}
		return nil, ErrUnsupportedAlgo{Got: input[i:]}
	}
	b64 := strings.TrimSuffix(input, signatureSuffix)

	// length check before decoding so absurdly large strings don't fill up
	// RAM, the exact length is checked after decoding because of padding
	gotLen := base64.StdEncoding.DecodedLen(len(b64))
	if gotLen < ed25519.SignatureSize {
		return nil, fmt.Errorf("legacymsg/signature: expected more signature data but can only get %d bytes", gotLen)
	}
	if gotLen > ed25519.SignatureSize+2 {
		return nil, fmt.Errorf("legacymsg/signature: expected less signature data but got a string that could decode to up to %d bytes", gotLen)
	}

	decoded := make([]byte, gotLen)
	n, err := base64.StdEncoding.Decode(decoded, []byte(b64))
	if err != nil {
		return nil, fmt.Errorf("legacymsg/signature: invalid base64 data: %w", err)
	}
	decoded = decoded[:n]

	if len(decoded) != ed25519.SignatureSize {
		return nil, fmt.Errorf("legacymsg/signature: decoded data is %d bytes long, want %d", len(decoded), ed25519.SignatureSize)
	}

	return decoded, nil
}

// String returns the field form of the signature, base64 plus suffix.
func (s Signature) String() string {
	return base64.StdEncoding.EncodeToString(s) + signatureSuffix
}

// Verify checks the signature over the signed bytes against the author's
// public key. It returns ErrSignatureInvalid for a well-formed signature that
// does not match, and distinct errors for keys this format cannot verify
// (wrong feed algorithm, bytes that are not a curve point).
func (s Signature) Verify(signed []byte, author refs.FeedRef) error {
	if algo := author.Algo(); algo != refs.RefAlgoFeedSSB1 {
		return ErrUnsupportedAlgo{Got: string(algo)}
	}

	pub := author.PubKey()
	if len(pub) != ed25519.PublicKeySize {
		return ErrMalformedRef{Field: "author", Cause: fmt.Errorf("public key is %d bytes long, want %d", len(pub), ed25519.PublicKeySize)}
	}
	// decompress to catch author fields that carry 32 bytes of garbage
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return ErrMalformedRef{Field: "author", Cause: fmt.Errorf("public key is not a curve point: %w", err)}
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), signed, s) {
		return ErrSignatureInvalid
	}
	return nil
}
