// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package legacymsg

import (
	"fmt"
	"strings"
	"time"

	refs "github.com/ssbc/go-ssb-refs"
	"go.mindeco.de/encodedTime"

	"github.com/ssbc/go-legacymsg/value"
)

// Message is a fully validated legacy message. The only ways to get one are
// the success paths of Verify, Validate and LegacyMessage.Sign, so holding a
// Message means the signature checked out against the canonical bytes.
//
// A Message is immutable. Mutating one would detach it from its own key and
// signature, so all fields are reachable through accessors only.
type Message struct {
	key       refs.MessageRef
	previous  *refs.MessageRef
	author    refs.FeedRef
	sequence  int64
	timestamp float64
	content   value.Value
	signature Signature
	raw       []byte
}

// Key returns the content-addressed identifier of the message,
// %base64(sha256).sha256 over the weird encoding of the canonical bytes.
func (m Message) Key() refs.MessageRef { return m.key }

// Author returns the feed that signed the message.
func (m Message) Author() refs.FeedRef { return m.author }

// Previous returns the key of the preceding message in the feed, or nil for
// the first message.
func (m Message) Previous() *refs.MessageRef {
	if m.previous == nil {
		return nil
	}
	ref := *m.previous
	return &ref
}

// Seq returns the position of the message in its feed, starting at 1.
func (m Message) Seq() int64 { return m.sequence }

// Timestamp returns the claimed creation time in milliseconds since the
// epoch, exactly as the author stated it.
func (m Message) Timestamp() float64 { return m.timestamp }

// Claimed returns the claimed creation time as a time.Time. There is no
// clock check anywhere, feeds are free to lie about this.
func (m Message) Claimed() time.Time {
	return time.Time(encodedTime.NewMillisecs(int64(m.timestamp)))
}

// Content returns the content value, either a value.String or a
// *value.Object. Treat it as read-only.
func (m Message) Content() value.Value { return m.content }

// ContentBytes returns the content re-encoded compactly, the form it is
// usually stored and exchanged in.
func (m Message) ContentBytes() ([]byte, error) {
	return value.EncodeCompact(m.content)
}

// IsPrivate reports whether the content is an opaque box payload (encrypted
// to unknown recipients) rather than plain content.
func (m Message) IsPrivate() bool {
	s, ok := m.content.(value.String)
	if !ok {
		return false
	}
	return strings.HasSuffix(string(s), ".box") || strings.HasSuffix(string(s), ".box2")
}

// Signature returns the detached signature.
func (m Message) Signature() Signature {
	return append(Signature(nil), m.signature...)
}

// Raw returns a copy of the canonical signing encoding, signature included.
// This is the byte form to persist or retransmit: re-encoding it anywhere
// else risks breaking hash and signature for every downstream peer.
func (m Message) Raw() []byte {
	return append([]byte(nil), m.raw...)
}

func (m Message) String() string {
	return fmt.Sprintf("msg(%s:%d) %s", m.author.String(), m.sequence, m.key.String())
}
