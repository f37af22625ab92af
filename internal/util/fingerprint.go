package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns a SHA-256 hex digest of arbitrary bytes.
func Fingerprint(data []byte) string {
	s := sha256.Sum256(data)
	return hex.EncodeToString(s[:])
}

// ShortFingerprint returns the first n hex characters of Fingerprint(data).
// n is clamped to the digest length.
func ShortFingerprint(data []byte, n int) string {
	fp := Fingerprint(data)
	if n <= 0 || n > len(fp) {
		return fp
	}
	return fp[:n]
}

// FingerprintJSON marshals v with encoding/json and hashes the bytes.
// encoding/json sorts map keys, so a decoded manifest hashes the same
// regardless of map iteration order.
func FingerprintJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Fingerprint(b), nil
}
