// Package identity hashes passwords and issues, verifies, rotates and
// revokes bearer tokens. All verification failures collapse to
// ErrUnauthenticated at the boundary; callers never learn which check
// failed.
package identity

import "errors"

var (
	ErrUnauthenticated = errors.New("identity: unauthenticated")
	ErrWeakPassword    = errors.New("identity: password does not meet policy")
	ErrBadCredentials  = errors.New("identity: bad credentials")
)
