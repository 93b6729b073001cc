// File: internal/infra/security/sealer.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// SealedPrefix marks an encrypted export so readers can tell it apart from plain JSON.
const SealedPrefix = "mgseal1:"

// Sealer encrypts archived payloads with AES-GCM and a random nonce per
// payload. Output is SealedPrefix + base64(nonce || ciphertext).
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer needs a 16, 24 or 32 byte key (AES-128/192/256).
func NewSealer(key string) (*Sealer, error) {
	k := []byte(key)
	n := len(k)
	if n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal binds the ciphertext to aad (e.g. the session ID).
func (s *Sealer) Seal(plain, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}
	ct := s.gcm.Seal(nonce, nonce, plain, aad)
	out := make([]byte, len(SealedPrefix)+base64.StdEncoding.EncodedLen(len(ct)))
	copy(out, SealedPrefix)
	base64.StdEncoding.Encode(out[len(SealedPrefix):], ct)
	return out, nil
}

func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < len(SealedPrefix) || string(sealed[:len(SealedPrefix)]) != SealedPrefix {
		return nil, fmt.Errorf("payload is not sealed")
	}
	data, err := base64.StdEncoding.DecodeString(string(sealed[len(SealedPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	ns := s.gcm.NonceSize()
	if len(data) < ns {
		return nil, fmt.Errorf("ciphertext too short")
	}
	pt, err := s.gcm.Open(nil, data[:ns], data[ns:], aad)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return pt, nil
}
