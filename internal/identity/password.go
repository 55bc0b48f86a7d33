package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"github.com/caxulex/shiftcore/internal/config"
	"golang.org/x/crypto/argon2"
)

// commonPasswords is a small embedded block list; a real deployment would
// load a larger one, but the policy check only needs to catch the
// obvious cases the length/class rules miss.
var commonPasswords = map[string]struct{}{
	"password123!": {},
	"qwertyuiop1!": {},
	"iloveyou123!": {},
	"letmein1234!": {},
}

// PasswordHasher hashes and verifies passwords with Argon2id, re-hashing
// transparently when the configured cost parameters change.
type PasswordHasher struct {
	params config.HashParams
}

// NewPasswordHasher builds a hasher around the given cost parameters.
func NewPasswordHasher(params config.HashParams) *PasswordHasher {
	return &PasswordHasher{params: params}
}

// CheckPolicy enforces length ≥ 12, upper/lower/digit/symbol, and
// rejects passwords from the embedded common-password set.
func CheckPolicy(password string) error {
	if len(password) < 12 {
		return ErrWeakPassword
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return ErrWeakPassword
	}
	if _, common := commonPasswords[strings.ToLower(password)]; common {
		return ErrWeakPassword
	}
	return nil
}

// Hash enforces the password policy, then derives an Argon2id hash
// encoded PHC-style: $argon2id$v=19$m=...,t=...,p=...$salt$hash — so a
// future parameter change doesn't invalidate stored hashes.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if err := CheckPolicy(password); err != nil {
		return "", err
	}
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return encodePHC(h.params, salt, hash), nil
}

// Verify reports whether password matches encoded, and whether the hash
// should be transparently re-hashed because it used different cost
// parameters than the hasher's current configuration.
func (h *PasswordHasher) Verify(password, encoded string) (ok bool, needsRehash bool, err error) {
	params, salt, hash, err := decodePHC(encoded)
	if err != nil {
		return false, false, err
	}
	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(hash)))
	match := subtle.ConstantTimeCompare(candidate, hash) == 1
	rehash := params != h.params
	return match, match && rehash, nil
}

func encodePHC(p config.HashParams, salt, hash []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func decodePHC(encoded string) (config.HashParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return config.HashParams{}, nil, nil, fmt.Errorf("identity: malformed password hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return config.HashParams{}, nil, nil, fmt.Errorf("identity: malformed password hash version")
	}
	var p config.HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return config.HashParams{}, nil, nil, fmt.Errorf("identity: malformed password hash params")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return config.HashParams{}, nil, nil, fmt.Errorf("identity: malformed password hash salt")
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return config.HashParams{}, nil, nil, fmt.Errorf("identity: malformed password hash digest")
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(hash))
	return p, salt, hash, nil
}
