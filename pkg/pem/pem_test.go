package pem

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x00},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB, 0xCD, 0xEF}, 100), // forces multiple 64-col lines
	}

	for _, data := range cases {
		encoded := Encode(data, "CERTIFICATE")
		decoded, err := Decode(encoded, "CERTIFICATE")
		if err != nil {
			t.Fatalf("Decode(Encode(%d bytes)) failed: %v", len(data), err)
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("round trip mismatch for %d bytes", len(data))
		}
	}
}

func TestEncodeLineWidth(t *testing.T) {
	encoded := Encode(bytes.Repeat([]byte{0x42}, 200), "X")
	for _, line := range strings.Split(encoded, "\n") {
		if len(line) > lineWidth {
			t.Errorf("line exceeds %d columns: %q", lineWidth, line)
		}
	}
	if !strings.HasPrefix(encoded, "-----BEGIN X-----\n") {
		t.Errorf("missing prefix: %q", encoded[:40])
	}
	if !strings.HasSuffix(encoded, "-----END X-----\n") {
		t.Errorf("missing postfix")
	}
}

func TestDecodeMissingDelimiters(t *testing.T) {
	if _, err := Decode("no pem here", "CERTIFICATE"); !errors.Is(err, ErrMalformedPEM) {
		t.Errorf("missing prefix: got %v, want ErrMalformedPEM", err)
	}

	dangling := "-----BEGIN CERTIFICATE-----\nAAAA\n"
	if _, err := Decode(dangling, "CERTIFICATE"); !errors.Is(err, ErrMalformedPEM) {
		t.Errorf("missing postfix: got %v, want ErrMalformedPEM", err)
	}
}

func TestDecodeBadBase64(t *testing.T) {
	text := "-----BEGIN CERTIFICATE-----\n!!!not base64!!!\n-----END CERTIFICATE-----\n"
	if _, err := Decode(text, "CERTIFICATE"); !errors.Is(err, ErrMalformedPEM) {
		t.Errorf("bad base64: got %v, want ErrMalformedPEM", err)
	}
}

func TestDecodeIgnoresSurroundingText(t *testing.T) {
	text := "some header text\n" + Encode([]byte("payload"), "THING") + "trailing notes\n"
	decoded, err := Decode(text, "THING")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(decoded) != "payload" {
		t.Errorf("got %q, want %q", decoded, "payload")
	}
}

func TestDecodeAll(t *testing.T) {
	text := "created by tool\n" +
		Encode([]byte("first"), "SIG") +
		"interleaved commentary\n" +
		Encode([]byte("second"), "SIG")

	blocks, err := DecodeAll(text, "SIG")
	if err != nil {
		t.Fatalf("DecodeAll failed: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if string(blocks[0]) != "first" || string(blocks[1]) != "second" {
		t.Errorf("blocks = %q, %q", blocks[0], blocks[1])
	}
}

func TestDecodeAllEmpty(t *testing.T) {
	blocks, err := DecodeAll("nothing to see", "SIG")
	if err != nil {
		t.Fatalf("DecodeAll on empty input failed: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("got %d blocks, want 0", len(blocks))
	}
}

func TestDecodeAllDanglingPrefix(t *testing.T) {
	text := Encode([]byte("ok"), "SIG") + "-----BEGIN SIG-----\nAAAA\n"
	if _, err := DecodeAll(text, "SIG"); !errors.Is(err, ErrMalformedPEM) {
		t.Errorf("dangling prefix: got %v, want ErrMalformedPEM", err)
	}
}

func TestSniff(t *testing.T) {
	text := Encode([]byte("x"), "CERTIFICATE")
	if !Sniff(text, "CERTIFICATE") {
		t.Error("Sniff missed an existing block")
	}
	if Sniff(text, "PRIVATE KEY") {
		t.Error("Sniff matched an absent label")
	}
}
