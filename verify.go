// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

// Package legacymsg parses, validates and re-serializes legacy SSB feed
// messages. You most likely want Validate or Verify.
//
// The input is one message envelope as raw JSON from an untrusted peer. The
// validator re-encodes it into the canonical signing format (see the value
// package), checks the ed25519 signature over those exact bytes and derives
// the content-addressed message key from them. Nothing here touches the
// network or a feed store; chain checking works against a caller-supplied
// Previous.
//
// See https://spec.scuttlebutt.nz/feed/messages.html for the format.
package legacymsg

import (
	"fmt"
	"sort"
	"strings"

	refs "github.com/ssbc/go-ssb-refs"

	"github.com/ssbc/go-legacymsg/value"
)

// Previous identifies the latest known message of a feed for chain checking.
type Previous struct {
	Key      refs.MessageRef
	Sequence int64
}

// envelopeKeys are the required top-level fields of a message.
var envelopeKeys = []string{"previous", "author", "sequence", "timestamp", "hash", "content", "signature"}

// Verify checks a single raw message: strict parse, schema and type checks,
// signature verification over the canonical bytes and message key
// derivation. It does not check chain continuity, use Validate for that.
//
// If hmacSecret is non nil it is used as the key for NaCl crypto_auth() and
// the signature is expected over the MAC of the message instead.
func Verify(raw []byte, hmacSecret *[32]byte) (Message, error) {
	return verify(raw, hmacSecret)
}

// Validate is Verify plus the chain check. The caller states what it knows
// about the feed: prev carries the key and sequence of the latest message, a
// nil prev means the feed is empty and raw must be its first message
// (previous null, sequence 1).
func Validate(raw []byte, prev *Previous, hmacSecret *[32]byte) (Message, error) {
	msg, err := verify(raw, hmacSecret)
	if err != nil {
		return Message{}, err
	}

	if prev == nil {
		if msg.previous != nil || msg.sequence != 1 {
			return Message{}, ErrChainBroken{
				Previous:     msg.previous,
				Sequence:     msg.sequence,
				WantSequence: 1,
			}
		}
		return msg, nil
	}

	wantPrev := prev.Key
	if msg.previous == nil || !msg.previous.Equal(wantPrev) || msg.sequence != prev.Sequence+1 {
		return Message{}, ErrChainBroken{
			Previous:     msg.previous,
			Sequence:     msg.sequence,
			WantPrevious: &wantPrev,
			WantSequence: prev.Sequence + 1,
		}
	}
	return msg, nil
}

func verify(raw []byte, hmacSecret *[32]byte) (Message, error) {
	parsed, err := value.Parse(raw)
	if err != nil {
		return Message{}, err
	}
	obj, ok := parsed.(*value.Object)
	if !ok {
		return Message{}, ErrInvalidSchema{}
	}

	if err := checkSchema(obj); err != nil {
		return Message{}, err
	}

	var msg Message

	// previous: null or a %...sha256 message ref
	prevVal, _ := obj.Get("previous")
	switch pv := prevVal.(type) {
	case value.Null:
	case value.String:
		if err := wantSuffix(string(pv), ".sha256"); err != nil {
			return Message{}, err
		}
		ref, err := refs.ParseMessageRef(string(pv))
		if err != nil {
			return Message{}, ErrMalformedRef{Field: "previous", Cause: err}
		}
		msg.previous = &ref
	default:
		return Message{}, ErrWrongType{Field: "previous", Want: "string or null", Got: prevVal.Kind()}
	}

	// author: an @...ed25519 feed ref
	authorVal, _ := obj.Get("author")
	authorStr, ok := authorVal.(value.String)
	if !ok {
		return Message{}, ErrWrongType{Field: "author", Want: "string", Got: authorVal.Kind()}
	}
	if err := wantSuffix(string(authorStr), ".ed25519"); err != nil {
		return Message{}, err
	}
	msg.author, err = refs.ParseFeedRef(string(authorStr))
	if err != nil {
		return Message{}, ErrMalformedRef{Field: "author", Cause: err}
	}

	// sequence: a positive integer
	seqVal, _ := obj.Get("sequence")
	seqFloat, ok := seqVal.(value.Float)
	if !ok {
		return Message{}, ErrWrongType{Field: "sequence", Want: "number", Got: seqVal.Kind()}
	}
	seq := int64(seqFloat)
	if value.Float(seq) != seqFloat || seq < 1 {
		return Message{}, ErrWrongType{Field: "sequence", Want: "positive integer", Got: seqVal.Kind()}
	}
	msg.sequence = seq

	// timestamp: any number, claimed and unchecked
	tsVal, _ := obj.Get("timestamp")
	ts, ok := tsVal.(value.Float)
	if !ok {
		return Message{}, ErrWrongType{Field: "timestamp", Want: "number", Got: tsVal.Kind()}
	}
	msg.timestamp = float64(ts)

	// hash: the literal "sha256"
	hashVal, _ := obj.Get("hash")
	hashStr, ok := hashVal.(value.String)
	if !ok {
		return Message{}, ErrWrongType{Field: "hash", Want: "string", Got: hashVal.Kind()}
	}
	if hashStr != "sha256" {
		return Message{}, ErrUnsupportedHash{Got: string(hashStr)}
	}

	// content: a string (opaque/encrypted) or an object, nothing else.
	// arrays, numbers, booleans and null are fine JSON but get dropped by
	// the stricter validators on the network, so they are invalid here too.
	contentVal, _ := obj.Get("content")
	switch contentVal.(type) {
	case value.String, *value.Object:
		msg.content = contentVal
	default:
		return Message{}, ErrInvalidContent{Got: contentVal.Kind()}
	}

	// signature
	sigVal, _ := obj.Get("signature")
	sigStr, ok := sigVal.(value.String)
	if !ok {
		return Message{}, ErrWrongType{Field: "signature", Want: "string", Got: sigVal.Kind()}
	}
	msg.signature, err = NewSignatureFromString(string(sigStr))
	if err != nil {
		if _, unsupported := err.(ErrUnsupportedAlgo); unsupported {
			return Message{}, err
		}
		return Message{}, ErrMalformedRef{Field: "signature", Cause: err}
	}

	// regenerate the canonical bytes, once without the signature for
	// verification and once complete for the message key
	woSig, err := value.Encode(obj.Without("signature"))
	if err != nil {
		return Message{}, fmt.Errorf("legacymsg: could not encode message for verification: %w", err)
	}
	msg.raw, err = value.Encode(obj)
	if err != nil {
		return Message{}, fmt.Errorf("legacymsg: could not encode message: %w", err)
	}

	if err := msg.signature.Verify(maybeHMAC(woSig, hmacSecret), msg.author); err != nil {
		return Message{}, fmt.Errorf("legacymsg: verify of %s:%d failed: %w", msg.author.String(), msg.sequence, err)
	}

	key, units, err := hashMessage(msg.raw)
	if err != nil {
		return Message{}, err
	}
	if units > MaxMessageLength {
		return Message{}, ErrTooLong{Units: units}
	}
	msg.key = key

	return msg, nil
}

// checkSchema confirms the envelope carries exactly the seven message fields,
// in any order. Real feeds contain both historic key orders (timestamp before
// sequence and after); order changes the bytes and therefore the key, but
// not the validity.
func checkSchema(obj *value.Object) error {
	var mismatch ErrInvalidSchema

	for _, want := range envelopeKeys {
		if _, has := obj.Get(want); !has {
			mismatch.Missing = append(mismatch.Missing, want)
		}
	}
	for _, got := range obj.Keys() {
		if !isEnvelopeKey(got) {
			mismatch.Extra = append(mismatch.Extra, got)
		}
	}

	if len(mismatch.Missing) > 0 || len(mismatch.Extra) > 0 {
		sort.Strings(mismatch.Extra)
		return mismatch
	}
	return nil
}

// wantSuffix distinguishes an unknown algorithm suffix from a ref that is
// broken in some other way, the two have different error kinds.
func wantSuffix(ref, suffix string) error {
	if strings.HasSuffix(ref, suffix) {
		return nil
	}
	i := strings.LastIndexByte(ref, '.')
	if i < 0 {
		i = 0
	}
	return ErrUnsupportedAlgo{Got: ref[i:]}
}

func isEnvelopeKey(k string) bool {
	for _, want := range envelopeKeys {
		if k == want {
			return true
		}
	}
	return false
}
