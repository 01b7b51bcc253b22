// SPDX-FileCopyrightText: 2023 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package legacymsg

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	refs "github.com/ssbc/go-ssb-refs"

	"github.com/ssbc/go-legacymsg/value"
)

// testAuthor derives a deterministic keypair for fixtures.
func testAuthor(t *testing.T, seed byte) (refs.FeedRef, ed25519.PrivateKey) {
	t.Helper()
	var seedBytes [ed25519.SeedSize]byte
	for i := range seedBytes {
		seedBytes[i] = seed
	}
	priv := ed25519.NewKeyFromSeed(seedBytes[:])
	author, err := refs.NewFeedRefFromBytes(priv.Public().(ed25519.PublicKey), refs.RefAlgoFeedSSB1)
	require.NoError(t, err)
	return author, priv
}

func testContent(text string) *value.Object {
	content := value.NewObject()
	content.Set("type", value.String("post"))
	content.Set("text", value.String(text))
	return content
}

// the two messages in testdata are real network traffic with known keys,
// they cover raw utf8 content,  escapes and nested arrays with nulls
func TestVerifyNetworkMessages(t *testing.T) {
	a, r := assert.New(t), require.New(t)

	cases := []struct {
		file string
		key  string
		seq  int64
	}{
		{"testdata/verify-bug-1.json", `%bgehbNSgccG25pjpMu9+I5s1LLdL6MAMkgsSGkbvoL8=.sha256`, 1134},
		{"testdata/verify-bug-2.json", `%2wLn/3F00bsMSbrbtDmMQR3AFyBTVLszC3bkJ3p+MnY=.sha256`, 7836},
	}

	for _, tc := range cases {
		raw, err := os.ReadFile(tc.file)
		r.NoError(err)

		msg, err := Verify(raw, nil)
		r.NoError(err, "%s failed", tc.file)
		a.Equal(tc.key, msg.Key().String())
		a.Equal(tc.seq, msg.Seq())
		a.False(msg.IsPrivate())
	}
}

func TestSignThenVerify(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, priv := testAuthor(t, 1)

	msg, err := LegacyMessage{
		Author:    author,
		Sequence:  1,
		Timestamp: 1674140400000,
		Content:   testContent("hej"),
	}.Sign(priv, nil)
	r.NoError(err)

	got, err := Verify(msg.Raw(), nil)
	r.NoError(err)
	a.True(got.Key().Equal(msg.Key()))
	a.True(got.Author().Equal(author))
	a.Equal(int64(1), got.Seq())
	a.Nil(got.Previous())
	a.Equal(float64(1674140400000), got.Timestamp())

	cb, err := got.ContentBytes()
	r.NoError(err)
	a.Equal(`{"type":"post","text":"hej"}`, string(cb))
}

func TestSignThenVerifyWithHMAC(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, priv := testAuthor(t, 2)

	var secret [32]byte
	secret[0] = 23

	msg, err := LegacyMessage{
		Author:    author,
		Sequence:  1,
		Timestamp: 0.5,
		Content:   value.String("bm90aGluZyB0byBzZWUgaGVyZQ==.box"),
	}.Sign(priv, &secret)
	r.NoError(err)

	got, err := Verify(msg.Raw(), &secret)
	r.NoError(err)
	a.True(got.IsPrivate())

	// without the signing capability the signature must not check out
	_, err = Verify(msg.Raw(), nil)
	r.Error(err)
	a.ErrorIs(err, ErrSignatureInvalid)
}

func TestVerifyNonIntegerTimestamp(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, priv := testAuthor(t, 3)

	msg, err := LegacyMessage{
		Author:    author,
		Sequence:  1,
		Timestamp: 1449808143436.0047, // as found in the wild
		Content:   testContent("fractional milliseconds"),
	}.Sign(priv, nil)
	r.NoError(err)
	a.Contains(string(msg.Raw()), "1449808143436.0047")

	got, err := Verify(msg.Raw(), nil)
	r.NoError(err)
	a.Equal(1449808143436.0047, got.Timestamp())
}

func TestVerifySensitiveToBitFlips(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, priv := testAuthor(t, 4)

	msg, err := LegacyMessage{
		Author:    author,
		Sequence:  1,
		Timestamp: 1674140400000,
		Content:   testContent("do not touch"),
	}.Sign(priv, nil)
	r.NoError(err)

	raw := msg.Raw()
	i := bytes.Index(raw, []byte("touch"))
	r.True(i > 0)
	raw[i] = 'T'

	_, err = Verify(raw, nil)
	r.Error(err)
	a.ErrorIs(err, ErrSignatureInvalid)
}

func TestValidateChain(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, priv := testAuthor(t, 5)

	first, err := LegacyMessage{
		Author:    author,
		Sequence:  1,
		Timestamp: 1000,
		Content:   testContent("one"),
	}.Sign(priv, nil)
	r.NoError(err)

	firstKey := first.Key()
	second, err := LegacyMessage{
		Previous:  &firstKey,
		Author:    author,
		Sequence:  2,
		Timestamp: 2000,
		Content:   testContent("two"),
	}.Sign(priv, nil)
	r.NoError(err)

	// the happy path
	_, err = Validate(first.Raw(), nil, nil)
	r.NoError(err)
	_, err = Validate(second.Raw(), &Previous{Key: first.Key(), Sequence: 1}, nil)
	r.NoError(err)

	// sequence off by one, either way
	_, err = Validate(second.Raw(), &Previous{Key: first.Key(), Sequence: 2}, nil)
	a.IsType(ErrChainBroken{}, err)
	_, err = Validate(second.Raw(), &Previous{Key: first.Key(), Sequence: 0}, nil)
	a.IsType(ErrChainBroken{}, err)

	// wrong previous key
	_, err = Validate(second.Raw(), &Previous{Key: second.Key(), Sequence: 1}, nil)
	a.IsType(ErrChainBroken{}, err)

	// a second message is not a feed start
	_, err = Validate(second.Raw(), nil, nil)
	a.IsType(ErrChainBroken{}, err)

	// and a feed start is not a successor
	_, err = Validate(first.Raw(), &Previous{Key: second.Key(), Sequence: 2}, nil)
	a.IsType(ErrChainBroken{}, err)
}

func TestValidateFirstMessageRule(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, priv := testAuthor(t, 6)

	skipped, err := LegacyMessage{
		Author:    author,
		Sequence:  2, // previous is null but sequence claims otherwise
		Timestamp: 1000,
		Content:   testContent("not first"),
	}.Sign(priv, nil)
	r.NoError(err)

	_, err = Validate(skipped.Raw(), nil, nil)
	a.IsType(ErrChainBroken{}, err)
}

// rawEnvelope builds a raw message around the given content, with a
// syntactically fine signature that is not expected to verify
func rawEnvelope(t *testing.T, author refs.FeedRef, content string) []byte {
	t.Helper()
	fakeSig := base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize))
	return []byte(fmt.Sprintf(
		`{"previous":null,"author":%q,"sequence":1,"timestamp":1000,"hash":"sha256","content":%s,"signature":"%s.sig.ed25519"}`,
		author.String(), content, fakeSig))
}

func TestVerifyContentStrictness(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, priv := testAuthor(t, 7)

	// these are fine JSON but not acceptable content
	for _, tc := range []string{`42`, `true`, `null`, `[1,2,3]`, `13.37`} {
		_, err := Verify(rawEnvelope(t, author, tc), nil)
		r.Error(err, "content %s got through", tc)
		var contentErr ErrInvalidContent
		a.ErrorAs(err, &contentErr, "wrong error for content %s", tc)
	}

	// strings and objects pass the content check (and the whole pipeline,
	// when properly signed)
	for _, tc := range []value.Value{
		value.String("encrypted-blob"),
		testContent("hi"),
	} {
		msg, err := LegacyMessage{
			Author:    author,
			Sequence:  1,
			Timestamp: 1000,
			Content:   tc,
		}.Sign(priv, nil)
		r.NoError(err)
		_, err = Verify(msg.Raw(), nil)
		a.NoError(err)
	}
}

func TestVerifySchemaMismatch(t *testing.T) {
	a, r := assert.New(t), require.New(t)

	// missing fields
	_, err := Verify([]byte(`{"previous":null,"sequence":1}`), nil)
	r.Error(err)
	var schemaErr ErrInvalidSchema
	r.ErrorAs(err, &schemaErr)
	a.Equal([]string{"author", "timestamp", "hash", "content", "signature"}, schemaErr.Missing)
	a.Empty(schemaErr.Extra)

	// extra fields
	author, priv := testAuthor(t, 8)
	msg, err := LegacyMessage{
		Author:    author,
		Sequence:  1,
		Timestamp: 1000,
		Content:   testContent("ok"),
	}.Sign(priv, nil)
	r.NoError(err)

	tampered := bytes.Replace(msg.Raw(), []byte(`"hash":`), []byte(`"bonus": 1,`+"\n  "+`"hash":`), 1)
	_, err = Verify(tampered, nil)
	r.Error(err)
	r.ErrorAs(err, &schemaErr)
	a.Equal([]string{"bonus"}, schemaErr.Extra)

	// not an object at all
	_, err = Verify([]byte(`["not", "a", "message"]`), nil)
	a.Error(err)
}

func TestVerifyFieldTypes(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, _ := testAuthor(t, 9)

	base := `{"previous":%s,"author":%s,"sequence":%s,"timestamp":%s,"hash":%s,"content":{"type":"post"},"signature":"x.sig.ed25519"}`
	authorStr := fmt.Sprintf("%q", author.String())

	cases := []struct {
		name                                      string
		previous, author, sequence, timestamp, hash string
		wantField                                 string
	}{
		{"previous not a ref string", `42`, authorStr, `1`, `1000`, `"sha256"`, "previous"},
		{"author not a string", `null`, `17`, `1`, `1000`, `"sha256"`, "author"},
		{"sequence not a number", `null`, authorStr, `"1"`, `1000`, `"sha256"`, "sequence"},
		{"sequence fractional", `null`, authorStr, `1.5`, `1000`, `"sha256"`, "sequence"},
		{"sequence zero", `null`, authorStr, `0`, `1000`, `"sha256"`, "sequence"},
		{"timestamp not a number", `null`, authorStr, `1`, `"soon"`, `"sha256"`, "timestamp"},
		{"hash not a string", `null`, authorStr, `1`, `1000`, `17`, "hash"},
	}

	for _, tc := range cases {
		raw := fmt.Sprintf(base, tc.previous, tc.author, tc.sequence, tc.timestamp, tc.hash)
		_, err := Verify([]byte(raw), nil)
		r.Error(err, tc.name)
		var typeErr ErrWrongType
		if a.ErrorAs(err, &typeErr, tc.name) {
			a.Equal(tc.wantField, typeErr.Field, tc.name)
		}
	}
}

func TestVerifyAlgorithms(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, _ := testAuthor(t, 10)
	authorStr := fmt.Sprintf("%q", author.String())

	// unknown hash algorithm
	raw := fmt.Sprintf(`{"previous":null,"author":%s,"sequence":1,"timestamp":1000,"hash":"md5","content":{"type":"post"},"signature":"x.sig.ed25519"}`, authorStr)
	_, err := Verify([]byte(raw), nil)
	r.Error(err)
	var hashErr ErrUnsupportedHash
	r.ErrorAs(err, &hashErr)
	a.Equal("md5", hashErr.Got)

	// unknown author algorithm
	raw = `{"previous":null,"author":"@AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=.bbfeed-v1","sequence":1,"timestamp":1000,"hash":"sha256","content":{"type":"post"},"signature":"x.sig.ed25519"}`
	_, err = Verify([]byte(raw), nil)
	r.Error(err)
	var algoErr ErrUnsupportedAlgo
	a.ErrorAs(err, &algoErr)

	// unknown signature algorithm
	raw = fmt.Sprintf(`{"previous":null,"author":%s,"sequence":1,"timestamp":1000,"hash":"sha256","content":{"type":"post"},"signature":"xyz.sig.rsa"}`, authorStr)
	_, err = Verify([]byte(raw), nil)
	r.Error(err)
	a.ErrorAs(err, &algoErr)
	a.Equal(".rsa", algoErr.Got)
}

func TestVerifyDuplicateKeys(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, priv := testAuthor(t, 11)

	msg, err := LegacyMessage{
		Author:    author,
		Sequence:  1,
		Timestamp: 1000,
		Content:   testContent("once"),
	}.Sign(priv, nil)
	r.NoError(err)

	// repeat the hash entry, the second occurrence must not win
	dup := bytes.Replace(msg.Raw(), []byte(`"hash": "sha256"`), []byte(`"hash": "sha256",`+"\n  "+`"hash": "sha256"`), 1)
	_, err = Verify(dup, nil)
	r.Error(err)
	var parseErr value.ParseError
	a.ErrorAs(err, &parseErr)
}

// the historic flipped field order (timestamp before sequence) is part of the
// hashed bytes and still verifies, only the resulting key differs
func TestVerifyPermutedFieldOrder(t *testing.T) {
	a, r := assert.New(t), require.New(t)
	author, priv := testAuthor(t, 12)

	envelope := value.NewObject()
	envelope.Set("previous", value.Null{})
	envelope.Set("author", value.String(author.String()))
	envelope.Set("timestamp", value.Float(1000))
	envelope.Set("sequence", value.Float(1))
	envelope.Set("hash", value.String("sha256"))
	envelope.Set("content", testContent("old world order"))

	unsigned, err := value.Encode(envelope)
	r.NoError(err)
	sig := Signature(ed25519.Sign(priv, unsigned))
	envelope.Set("signature", value.String(sig.String()))
	raw, err := value.Encode(envelope)
	r.NoError(err)

	msg, err := Verify(raw, nil)
	r.NoError(err)
	a.Equal(int64(1), msg.Seq())
	a.Equal(raw, msg.Raw())
}

func TestSignRejectsOversizedMessages(t *testing.T) {
	a := assert.New(t)
	author, priv := testAuthor(t, 13)

	huge := make([]byte, MaxMessageLength)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err := LegacyMessage{
		Author:    author,
		Sequence:  1,
		Timestamp: 1000,
		Content:   value.String(huge),
	}.Sign(priv, nil)
	a.Error(err)
	var tooLong ErrTooLong
	a.ErrorAs(err, &tooLong)
}

func TestVerifyGarbage(t *testing.T) {
	a := assert.New(t)

	for _, tc := range [][]byte{
		nil,
		{},
		[]byte("not json"),
		[]byte(`"just a string"`),
		[]byte(`{"previous":`),
		{0xff, 0xd8, 0xff}, // jpeg magic
	} {
		_, err := Verify(tc, nil)
		a.Error(err, "verified %q", tc)
	}
}
