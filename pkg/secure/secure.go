// Package secure provides the payload encryption boundary used by the
// durable state store. The core never inspects whether a payload is
// ciphertext; it hands bytes to an Encryptor and stores what comes back.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrCiphertextTooShort is returned when a payload is too short to contain
// the nonce prefix.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryptor encrypts and decrypts opaque payloads.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Noop passes payloads through unchanged. Used when no key is configured.
type Noop struct{}

// NewNoop returns a pass-through Encryptor.
func NewNoop() Noop { return Noop{} }

// Encrypt returns the plaintext unchanged.
func (Noop) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }

// Decrypt returns the ciphertext unchanged.
func (Noop) Decrypt(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

// AESGCM encrypts payloads with AES-GCM. The random nonce is prepended to
// the ciphertext.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AESGCM encryptor from a 16, 24, or 32 byte key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

// Encrypt seals the plaintext with a fresh random nonce.
func (a *AESGCM) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return a.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func (a *AESGCM) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < a.aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:a.aead.NonceSize()], ciphertext[a.aead.NonceSize():]
	plaintext, err := a.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return plaintext, nil
}
