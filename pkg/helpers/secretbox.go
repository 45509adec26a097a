package helpers

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrSecretBoxOpen = errors.New("secretbox: message authentication failed")

// SecretBox seals short strings with NaCl secretbox. The sealed form is
// base64(nonce || box).
type SecretBox struct {
	key [32]byte
}

// NewSecretBox takes a base64 (standard encoding) 32-byte key.
func NewSecretBox(b64Key string) (*SecretBox, error) {
	raw, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secretbox: key must be 32 bytes, got %d", len(raw))
	}
	b := &SecretBox{}
	copy(b.key[:], raw)
	return b, nil
}

func (b *SecretBox) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (b *SecretBox) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("secretbox: decode: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrSecretBoxOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrSecretBoxOpen
	}
	return string(plain), nil
}
