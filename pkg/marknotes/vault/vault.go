// Package vault seals document bodies with AES-256-CBC.
//
// The envelope is hex(iv) + ":" + hex(ciphertext) with a fresh 16-byte IV
// per call and PKCS#7 padding. There is no authentication tag.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mikepea/marknotes/pkg/marknotes/errs"
)

// KeySize is the required key length in bytes.
const KeySize = 32

var (
	ErrKeySize     = errors.New("vault: key must be exactly 32 bytes")
	ErrNotEnvelope = errors.New("vault: input is not an iv:ciphertext envelope")
	ErrPadding     = errors.New("vault: invalid padding")
)

// Codec seals and opens document bodies with a fixed key.
type Codec struct {
	block cipher.Block
}

// New returns a Codec for key, which must be KeySize bytes long.
func New(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Codec{block: block}, nil
}

// ParseHexKey decodes a hex encoded key and checks its length.
func ParseHexKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("vault: decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	return key, nil
}

// Seal encrypts plaintext into a new envelope.
func (c *Codec) Seal(plaintext string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("vault: generate iv: %w", err)
	}
	padded := pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Open decrypts an envelope produced by Seal. Any malformed input is a
// Decrypt error; structural failures additionally wrap ErrNotEnvelope.
func (c *Codec) Open(envelope string) (string, error) {
	iv, ct, err := split(envelope)
	if err != nil {
		return "", errs.Decrypt("vault.open", err)
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, ct)
	plain, err := unpad(out)
	if err != nil {
		return "", errs.Decrypt("vault.open", err)
	}
	return string(plain), nil
}

// OpenLegacy opens stored content written before encryption was enabled.
// Content that is not an envelope is returned unchanged. Content that is an
// envelope but does not decrypt is reported as a Decrypt error.
func (c *Codec) OpenLegacy(stored string) (string, error) {
	plain, err := c.Open(stored)
	if err != nil {
		if errors.Is(err, ErrNotEnvelope) {
			return stored, nil
		}
		return "", err
	}
	return plain, nil
}

// IsEnvelope reports whether s has the structure of a sealed envelope.
func IsEnvelope(s string) bool {
	_, _, err := split(s)
	return err == nil
}

func split(envelope string) (iv, ct []byte, err error) {
	ivHex, ctHex, ok := strings.Cut(envelope, ":")
	if !ok || len(ivHex) != aes.BlockSize*2 || ctHex == "" {
		return nil, nil, ErrNotEnvelope
	}
	iv, err = hex.DecodeString(ivHex)
	if err != nil {
		return nil, nil, ErrNotEnvelope
	}
	ct, err = hex.DecodeString(ctHex)
	if err != nil || len(ct)%aes.BlockSize != 0 {
		return nil, nil, ErrNotEnvelope
	}
	return iv, ct, nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrPadding
		}
	}
	return b[:len(b)-n], nil
}
