package password

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// Hash derives an Argon2id key with a fresh random salt and returns the PHC string.
//
// Hash only enforces the anti-DoS bounds (non-empty, MaxLength). Policy checks
// (MinLength, weak patterns, embedded identifiers) belong to Validate.
func (c Config) Hash(password string) (string, error) {
	if err := c.checkBounds(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	h := phcHash{
		params: c.Params,
		salt:   salt,
		key:    derive(password, salt, c.Params, c.Params.KeyLength),
	}
	return h.String(), nil
}

// Verify checks whether password matches the given encoded hash.
// Returns (true, nil) for a match, (false, nil) for mismatch,
// and (false, ErrInvalidHash) for malformed or out-of-bounds hashes.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	// The stored string is attacker-reachable; never run a derivation it inflated.
	if !withinReasonableBounds(h.params, c.Params) {
		return false, ErrInvalidHash
	}

	got := derive(password, h.salt, h.params, h.params.KeyLength)
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

func derive(password string, salt []byte, p Argon2idParams, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLen)
}

func (c Config) checkBounds(password string) error {
	if password == "" {
		return ErrPasswordTooShort
	}
	if c.Policy.MaxLength > 0 && utf8.RuneCountInString(password) > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	return nil
}

// withinReasonableBounds accepts hashes made with older or smaller settings
// and rejects anything above twice the configured cost.
func withinReasonableBounds(got, limits Argon2idParams) bool {
	switch {
	case got.MemoryKiB > limits.MemoryKiB*2,
		got.Iterations > limits.Iterations*2,
		uint32(got.Parallelism) > uint32(limits.Parallelism)*2,
		got.SaltLength < 8 || got.SaltLength > 64,
		got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}
