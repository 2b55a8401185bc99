package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func newTestCodec(t *testing.T) *Codec {
	c, err := New(testKey())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNewRejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 24, 31, 33, 64} {
		if _, err := New(make([]byte, n)); !errors.Is(err, ErrKeySize) {
			t.Errorf("Expected ErrKeySize for %d byte key, got %v", n, err)
		}
	}
}

func TestParseHexKey(t *testing.T) {
	key, err := ParseHexKey(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("ParseHexKey failed: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("Expected %d bytes, got %d", KeySize, len(key))
	}

	if _, err := ParseHexKey(strings.Repeat("ab", 16)); !errors.Is(err, ErrKeySize) {
		t.Errorf("Expected ErrKeySize for short key, got %v", err)
	}
	if _, err := ParseHexKey("not-hex"); err == nil {
		t.Error("Expected error for non-hex key")
	}
}

func TestRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	inputs := []string{
		"",
		"hello",
		"exactly sixteen!",
		"# Title\n\nSome *markdown* with ünïcödé and emoji 📝\n",
		strings.Repeat("long line of text ", 1000),
	}
	for _, p := range inputs {
		sealed, err := c.Seal(p)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		got, err := c.Open(sealed)
		if err != nil {
			t.Fatalf("Open failed for %q: %v", p, err)
		}
		if got != p {
			t.Errorf("Round trip mismatch: got %q, want %q", got, p)
		}
	}
}

func TestSealUsesFreshIV(t *testing.T) {
	c := newTestCodec(t)
	a, _ := c.Seal("same plaintext")
	b, _ := c.Seal("same plaintext")
	if a == b {
		t.Error("Expected different envelopes for identical plaintext")
	}
	ivA, _, _ := strings.Cut(a, ":")
	ivB, _, _ := strings.Cut(b, ":")
	if ivA == ivB {
		t.Error("Expected different IVs")
	}
	if len(ivA) != 32 {
		t.Errorf("Expected 32 hex chars of IV, got %d", len(ivA))
	}
}

func TestSealNeverReturnsPlaintext(t *testing.T) {
	c := newTestCodec(t)
	sealed, _ := c.Seal("hello")
	if strings.Contains(sealed, "hello") {
		t.Error("Envelope contains plaintext")
	}
	if !IsEnvelope(sealed) {
		t.Error("Expected sealed output to be an envelope")
	}
}

func TestOpenLegacyReturnsPlaintextUnchanged(t *testing.T) {
	c := newTestCodec(t)
	inputs := []string{
		"hello",
		"# Legacy note\n\nwritten before encryption",
		"key: value",
		"abc:def",
		"00112233445566778899aabbccddeeff:zz",
		"",
	}
	for _, in := range inputs {
		got, err := c.OpenLegacy(in)
		if err != nil {
			t.Errorf("OpenLegacy(%q) returned error: %v", in, err)
			continue
		}
		if got != in {
			t.Errorf("OpenLegacy(%q) = %q, want input unchanged", in, got)
		}
	}
}

func TestOpenLegacyDecryptsEnvelopes(t *testing.T) {
	c := newTestCodec(t)
	sealed, _ := c.Seal("secret note")
	got, err := c.OpenLegacy(sealed)
	if err != nil {
		t.Fatalf("OpenLegacy failed: %v", err)
	}
	if got != "secret note" {
		t.Errorf("Expected decrypted content, got %q", got)
	}
}

func TestOpenRejectsMalformedInput(t *testing.T) {
	c := newTestCodec(t)
	_, err := c.Open("plain text")
	if !errors.Is(err, errs.ErrDecrypt) {
		t.Errorf("Expected Decrypt error, got %v", err)
	}
	if !errors.Is(err, ErrNotEnvelope) {
		t.Errorf("Expected ErrNotEnvelope in chain, got %v", err)
	}
}

func TestOpenWithWrongKeyIsDecryptError(t *testing.T) {
	c := newTestCodec(t)
	other, _ := New(bytes.Repeat([]byte{0x17}, KeySize))

	// Ten attempts make an accidental valid padding vanishingly unlikely.
	failures := 0
	for i := 0; i < 10; i++ {
		sealed, _ := c.Seal("top secret content that spans blocks")
		if _, err := other.OpenLegacy(sealed); err != nil {
			if !errors.Is(err, errs.ErrDecrypt) {
				t.Fatalf("Expected Decrypt error, got %v", err)
			}
			failures++
		}
	}
	if failures == 0 {
		t.Error("Expected decrypting with the wrong key to fail")
	}
}
