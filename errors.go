// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package legacymsg

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	refs "github.com/ssbc/go-ssb-refs"

	"github.com/ssbc/go-legacymsg/value"
)

// ErrSignatureInvalid is returned when a well-formed signature does not check
// out against the author key and the signed bytes.
var ErrSignatureInvalid = fmt.Errorf("legacymsg: invalid signature")

// ErrInvalidSchema is returned when the top-level object does not carry
// exactly the seven legacy message fields.
type ErrInvalidSchema struct {
	Missing []string
	Extra   []string
}

func (e ErrInvalidSchema) Error() string {
	var faults *multierror.Error
	for _, k := range e.Missing {
		faults = multierror.Append(faults, fmt.Errorf("missing key %q", k))
	}
	for _, k := range e.Extra {
		faults = multierror.Append(faults, fmt.Errorf("unexpected key %q", k))
	}
	if faults == nil {
		return "legacymsg: not a message object"
	}
	faults.ErrorFormat = func(errs []error) string {
		parts := make([]string, len(errs))
		for i, err := range errs {
			parts[i] = err.Error()
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("legacymsg: invalid message schema: %s", faults.Error())
}

// ErrWrongType is returned when a message field holds the wrong kind of value.
type ErrWrongType struct {
	Field string
	Want  string
	Got   value.Kind
}

func (e ErrWrongType) Error() string {
	return fmt.Sprintf("legacymsg: field %q should be %s but got %s", e.Field, e.Want, e.Got)
}

// ErrInvalidContent is returned for content that is neither a string nor an
// object. Such messages are valid generic JSON but one widely deployed
// validator refuses them, so everybody has to.
type ErrInvalidContent struct {
	Got value.Kind
}

func (e ErrInvalidContent) Error() string {
	return fmt.Sprintf("legacymsg: content must be a string or an object, got %s", e.Got)
}

// ErrUnsupportedHash is returned when the hash field is not "sha256".
type ErrUnsupportedHash struct {
	Got string
}

func (e ErrUnsupportedHash) Error() string {
	return fmt.Sprintf("legacymsg: unsupported hash algorithm %q", e.Got)
}

// ErrUnsupportedAlgo is returned for author or signature suffixes outside the
// legacy format (only ed25519 feeds and .sig.ed25519 signatures).
type ErrUnsupportedAlgo struct {
	Got string
}

func (e ErrUnsupportedAlgo) Error() string {
	return fmt.Sprintf("legacymsg: unsupported algorithm %q", e.Got)
}

// ErrMalformedRef is returned when an identifier or signature field is a
// string but its content does not decode (bad base64, wrong length, bad
// sigil).
type ErrMalformedRef struct {
	Field string
	Cause error
}

func (e ErrMalformedRef) Error() string {
	return fmt.Sprintf("legacymsg: field %q does not decode: %s", e.Field, e.Cause)
}

func (e ErrMalformedRef) Unwrap() error { return e.Cause }

// ErrChainBroken is returned when previous/sequence do not line up with the
// prior message of the feed.
type ErrChainBroken struct {
	Previous     *refs.MessageRef
	Sequence     int64
	WantPrevious *refs.MessageRef
	WantSequence int64
}

func (e ErrChainBroken) Error() string {
	return fmt.Sprintf("legacymsg: broken feed chain: got (previous:%s sequence:%d) want (previous:%s sequence:%d)",
		fmtRef(e.Previous), e.Sequence, fmtRef(e.WantPrevious), e.WantSequence)
}

func fmtRef(r *refs.MessageRef) string {
	if r == nil {
		return "null"
	}
	return r.String()
}

// ErrTooLong is returned for messages whose signing encoding exceeds the
// network-wide length limit.
type ErrTooLong struct {
	Units int
}

func (e ErrTooLong) Error() string {
	return fmt.Sprintf("legacymsg: message is %d code units long, limit is %d", e.Units, MaxMessageLength)
}
