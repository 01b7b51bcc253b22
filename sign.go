// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package legacymsg

import (
	"crypto/ed25519"
	"fmt"

	refs "github.com/ssbc/go-ssb-refs"

	"github.com/ssbc/go-legacymsg/value"
)

// LegacyMessage is the unsigned form of a message, as filled in by a
// publisher. Sign turns it into a Message.
type LegacyMessage struct {
	Previous  *refs.MessageRef
	Author    refs.FeedRef
	Sequence  int64
	Timestamp float64
	Content   value.Value
}

// Sign encodes the envelope in the signing format (in the canonical key
// order), signs it with priv, re-encodes with the signature appended and
// derives the message key. The returned Message passes Verify with the same
// hmacSecret.
func (msg LegacyMessage) Sign(priv ed25519.PrivateKey, hmacSecret *[32]byte) (Message, error) {
	if algo := msg.Author.Algo(); algo != refs.RefAlgoFeedSSB1 {
		return Message{}, ErrUnsupportedAlgo{Got: string(algo)}
	}
	if msg.Sequence < 1 {
		return Message{}, ErrWrongType{Field: "sequence", Want: "positive integer", Got: value.KindFloat}
	}

	envelope := value.NewObject()
	if msg.Previous == nil {
		envelope.Set("previous", value.Null{})
	} else {
		envelope.Set("previous", value.String(msg.Previous.String()))
	}
	envelope.Set("author", value.String(msg.Author.String()))
	envelope.Set("sequence", value.Float(msg.Sequence))
	envelope.Set("timestamp", value.Float(msg.Timestamp))
	envelope.Set("hash", value.String("sha256"))

	switch msg.Content.(type) {
	case value.String, *value.Object:
		envelope.Set("content", msg.Content)
	default:
		return Message{}, ErrInvalidContent{Got: kindOf(msg.Content)}
	}

	unsigned, err := value.Encode(envelope)
	if err != nil {
		return Message{}, fmt.Errorf("legacymsg: could not encode message for signing: %w", err)
	}

	sig := Signature(ed25519.Sign(priv, maybeHMAC(unsigned, hmacSecret)))
	envelope.Set("signature", value.String(sig.String()))

	raw, err := value.Encode(envelope)
	if err != nil {
		return Message{}, fmt.Errorf("legacymsg: could not re-encode signed message: %w", err)
	}

	key, units, err := hashMessage(raw)
	if err != nil {
		return Message{}, err
	}
	if units > MaxMessageLength {
		return Message{}, ErrTooLong{Units: units}
	}

	return Message{
		key:       key,
		previous:  msg.Previous,
		author:    msg.Author,
		sequence:  msg.Sequence,
		timestamp: msg.Timestamp,
		content:   msg.Content,
		signature: sig,
		raw:       raw,
	}, nil
}

func kindOf(v value.Value) value.Kind {
	if v == nil {
		return value.KindNull
	}
	return v.Kind()
}
