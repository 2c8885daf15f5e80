// Package auth validates the shared secrets agents present at
// control-channel attach time.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SecretSet holds digests of the accepted shared secrets. Membership is
// checked over fixed-length digests so comparison time does not depend on
// secret lengths, and the whole set is always scanned.
type SecretSet struct {
	digests [][sha256.Size]byte
}

// NewSecretSet builds a set from the configured secrets, skipping empty
// entries.
func NewSecretSet(secrets []string) *SecretSet {
	s := &SecretSet{}
	for _, sec := range secrets {
		if sec == "" {
			continue
		}
		s.digests = append(s.digests, sha256.Sum256([]byte(sec)))
	}
	return s
}

// Empty reports whether the set holds no secrets.
func (s *SecretSet) Empty() bool {
	return len(s.digests) == 0
}

// Contains reports whether candidate is one of the accepted secrets.
func (s *SecretSet) Contains(candidate string) bool {
	digest := sha256.Sum256([]byte(candidate))
	ok := false
	for i := range s.digests {
		if subtle.ConstantTimeCompare(digest[:], s.digests[i][:]) == 1 {
			ok = true
		}
	}
	return ok
}
