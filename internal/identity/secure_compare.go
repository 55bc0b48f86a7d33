package identity

import "crypto/subtle"

// secureCompare performs a constant-time comparison of two strings, used
// wherever a secret is compared against user input (token hashes,
// revocation keys) so response timing can't leak a byte-by-byte match.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
