package identity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"idreg/cmd/security/password"
)

// Hasher is the credential manager contract consumed by the workflows.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) bool
	DecoyHash() string
}

// Credentials is the Argon2id credential manager.
//
// Security contract:
//   - Hash output embeds a fresh random salt and the cost parameters (PHC string).
//   - Verify recomputes with the embedded salt and compares in constant time.
//   - Malformed or out-of-bounds stored hashes never verify; they still cost one
//     derivation (against the decoy) so a broken row is not distinguishable by timing.
//   - The secret is never logged, persisted or returned.
type Credentials struct {
	cfg   password.Config
	decoy string
}

var _ Hasher = (*Credentials)(nil)

// NewCredentials builds a credential manager from cfg and precomputes the decoy hash.
func NewCredentials(cfg password.Config) (*Credentials, error) {
	c := &Credentials{cfg: cfg}

	// Decoy secret is random and discarded; nothing can ever verify against it on purpose.
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("identity: decoy secret: %w", err)
	}
	decoy, err := cfg.Hash(base64.RawURLEncoding.EncodeToString(raw))
	if err != nil {
		return nil, fmt.Errorf("identity: decoy hash: %w", err)
	}
	c.decoy = decoy

	return c, nil
}

// CredentialsFromEnv loads password config from the environment and builds Credentials.
func CredentialsFromEnv() (*Credentials, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	return NewCredentials(cfg)
}

// Policy returns the password configuration the manager hashes with.
func (c *Credentials) Policy() password.Config { return c.cfg }

// Hash derives the storage form of secret.
func (c *Credentials) Hash(secret string) (string, error) {
	const op = "identity.HashCredential"

	enc, err := c.cfg.Hash(secret)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort),
			errors.Is(err, password.ErrPasswordTooLong):
			return "", OpError{Op: op, Kind: ErrValidationFailed, Msg: err.Error()}
		default:
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}
	return enc, nil
}

// Verify reports whether secret matches encoded.
func (c *Credentials) Verify(secret, encoded string) bool {
	ok, err := c.cfg.Verify(encoded, secret)
	if err != nil {
		// Equalize cost with the happy path; result is discarded.
		_, _ = c.cfg.Verify(c.decoy, secret)
		return false
	}
	return ok
}

// DecoyHash returns a hash with production parameters that matches no real secret.
func (c *Credentials) DecoyHash() string { return c.decoy }
