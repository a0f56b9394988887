// Package password gates protected URLs with bcrypt digests.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash derives a bcrypt digest from a plaintext password. Each call uses
// a fresh random salt, embedded in the digest.
func Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether candidate matches the stored digest. An empty
// digest means the record carries no protection, which grants access: "no
// password required" and "password entered correctly" are the same
// decision. Comparison of a real digest is bcrypt's constant-time check.
func Verify(digest, candidate string) bool {
	if digest == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(candidate)) == nil
}
