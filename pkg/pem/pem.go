// Package pem encodes and decodes PEM-wrapped binary blobs.
//
// Unlike encoding/pem, this package tolerates arbitrary text before, after
// and between blocks, and reports a typed error for truncated or corrupt
// payloads. The certificate trust workflow relies on that distinction to
// tell a damaged pin apart from a missing one.
package pem

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// lineWidth is the column at which encoded payloads wrap.
const lineWidth = 64

// ErrMalformedPEM indicates a missing delimiter or an undecodable payload.
var ErrMalformedPEM = errors.New("malformed PEM")

func prefixFor(label string) string {
	return fmt.Sprintf("-----BEGIN %s-----", label)
}

func postfixFor(label string) string {
	return fmt.Sprintf("-----END %s-----", label)
}

// Decode extracts the payload of the first block delimited by
// "BEGIN <label>" / "END <label>" and base64-decodes it.
func Decode(text, label string) ([]byte, error) {
	prefix := prefixFor(label)
	postfix := postfixFor(label)

	start := strings.Index(text, prefix)
	if start == -1 {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrMalformedPEM, label)
	}
	rest := text[start+len(prefix):]
	end := strings.Index(rest, postfix)
	if end == -1 {
		return nil, fmt.Errorf("%w: missing %q postfix", ErrMalformedPEM, label)
	}
	return decodeBody(rest[:end])
}

// DecodeAll extracts every block with the given label, in order of
// appearance. A text containing no blocks yields an empty slice and no
// error; only a dangling prefix without its postfix is an error.
func DecodeAll(text, label string) ([][]byte, error) {
	prefix := prefixFor(label)
	postfix := postfixFor(label)

	var blocks [][]byte
	for {
		start := strings.Index(text, prefix)
		if start == -1 {
			return blocks, nil
		}
		rest := text[start+len(prefix):]
		end := strings.Index(rest, postfix)
		if end == -1 {
			return nil, fmt.Errorf("%w: missing %q postfix", ErrMalformedPEM, label)
		}
		payload, err := decodeBody(rest[:end])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, payload)
		text = rest[end+len(postfix):]
	}
}

// Encode wraps data in base64 between the delimiters for label,
// breaking the payload at 64 columns.
func Encode(data []byte, label string) string {
	encoded := base64.StdEncoding.EncodeToString(data)

	var b strings.Builder
	b.WriteString(prefixFor(label))
	b.WriteByte('\n')
	for len(encoded) > 0 {
		n := lineWidth
		if n > len(encoded) {
			n = len(encoded)
		}
		b.WriteString(encoded[:n])
		b.WriteByte('\n')
		encoded = encoded[n:]
	}
	b.WriteString(postfixFor(label))
	b.WriteByte('\n')
	return b.String()
}

// Sniff reports whether text contains a block opener for label.
func Sniff(text, label string) bool {
	return strings.Contains(text, prefixFor(label))
}

// decodeBody base64-decodes a block payload, ignoring line breaks and
// surrounding whitespace.
func decodeBody(body string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, body)

	payload, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedPEM, err)
	}
	return payload, nil
}
