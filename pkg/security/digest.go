// Package security holds content fingerprints and constant-time secret
// comparison.
package security

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const fieldSeparator = "\x1f"

// Fingerprint returns a hex blake2b-256 digest over the parts. Parts are
// joined with a unit separator so ("ab","c") and ("a","bc") differ.
func Fingerprint(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, fieldSeparator)))
	return hex.EncodeToString(sum[:])
}

// SecretsEqual compares two secrets in constant time. Both sides are
// digested first so the comparison does not leak the expected length.
func SecretsEqual(provided, expected string) bool {
	a := blake2b.Sum256([]byte(provided))
	b := blake2b.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
