// Package cryptoutil implements the gateway's cryptographic primitives:
// password hashing, API-key lookup hashing, and authenticated encryption
// of variable-length payloads.
package cryptoutil

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrInvalidHashFormat is returned by VerifyPassword when the stored hash is not
// in the expected "salt:derived" format.
var ErrInvalidHashFormat = errors.New("invalid password hash format")

const (
	saltLen     = 16
	derivedLen  = 64
	scryptN     = 1 << 15
	scryptR     = 8
	scryptP     = 1
)

// HashPassword derives a scrypt key from password and returns it encoded as
// "salt:derived", both hex. A fresh 16-byte salt is generated per call.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	derived, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, derivedLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(derived), nil
}

// VerifyPassword reports whether password matches the stored hash, using a
// constant-time comparison of the derived keys. Returns ErrInvalidHashFormat
// if stored is not "salt:derived".
func VerifyPassword(stored, password string) (bool, error) {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return false, ErrInvalidHashFormat
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false, ErrInvalidHashFormat
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return false, ErrInvalidHashFormat
	}

	got, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, len(want))
	if err != nil {
		return false, fmt.Errorf("derive key: %w", err)
	}

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
