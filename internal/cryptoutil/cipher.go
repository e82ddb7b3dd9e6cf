package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrDecryptionFailed is returned when decryption fails authentication
// (wrong key, wrong associated data, or a corrupted ciphertext).
var ErrDecryptionFailed = errors.New("decryption failed")

const ivLen = 12 // AES-GCM standard nonce size

// Cipher encrypts and decrypts variable-length payloads with AES-256-GCM
// under a single master key. Associated data, when supplied, binds a
// ciphertext to a context (Loom uses the tenant id) so it cannot be
// decrypted under a different one.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 64-character hex-encoded 256-bit key.
func NewCipher(masterKeyHex string) (*Cipher, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must decode to 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("build aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("build gcm: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV, returning the ciphertext
// and IV separately (callers persist both columns).
func (c *Cipher) Encrypt(plaintext, associatedData []byte) (ciphertext, iv []byte, err error) {
	iv = make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	ciphertext = c.aead.Seal(nil, iv, plaintext, associatedData)
	return ciphertext, iv, nil
}

// Decrypt opens a ciphertext/iv pair, returning ErrDecryptionFailed on
// authentication-tag mismatch (wrong key, wrong associated data, tampering).
func (c *Cipher) Decrypt(ciphertext, iv, associatedData []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, iv, ciphertext, associatedData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
