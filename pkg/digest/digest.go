// Package digest fingerprints chat content for integrity checks.
// Digests are lowercase hex SHA-256; they detect tampering in transit, they
// do not hide anything.
package digest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Size is the length in characters of every digest.
const Size = sha256.Size * 2

// Digest returns the hex-encoded SHA-256 of content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// DigestString is Digest over the UTF-8 bytes of s.
func DigestString(s string) string {
	return Digest([]byte(s))
}

// Verify reports whether digest is the digest of content.
func Verify(content []byte, digest string) bool {
	if len(digest) != Size {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Digest(content)), []byte(digest)) == 1
}

// VerifyString is Verify over the UTF-8 bytes of s.
func VerifyString(s, digest string) bool {
	return Verify([]byte(s), digest)
}

// Hasher is the capability the peer session layer depends on.
type Hasher interface {
	Digest(content []byte) string
	Verify(content []byte, digest string) bool
}

// SHA256 is the default Hasher.
type SHA256 struct{}

func (SHA256) Digest(content []byte) string              { return Digest(content) }
func (SHA256) Verify(content []byte, digest string) bool { return Verify(content, digest) }
