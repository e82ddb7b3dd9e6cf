package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// apiKeyPrefix is prepended to every minted data-plane credential.
const apiKeyPrefix = "loom_sk_"

// apiKeyRandomBytes yields 32+ URL-safe characters once hex-encoded.
const apiKeyRandomBytes = 24

// displayPrefixLen is the number of characters of the raw key shown back to
// the caller for display purposes after the key is minted.
const displayPrefixLen = 12

// NewAPIKey mints a fresh raw API key of the form "loom_sk_<random>" along
// with its 12-character display prefix. The raw value is returned only
// once; callers must store KeyHash(raw), never the raw key itself.
func NewAPIKey() (raw string, displayPrefix string, err error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	raw = apiKeyPrefix + hex.EncodeToString(buf)
	if len(raw) < displayPrefixLen {
		return "", "", fmt.Errorf("generated key shorter than display prefix")
	}
	return raw, raw[:displayPrefixLen], nil
}

// KeyHash returns the 64-character hex SHA-256 digest of raw, used as the
// lookup column for API-key authentication. Deterministic: the same raw
// key always hashes to the same value.
func KeyHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
