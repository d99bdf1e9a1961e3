package redact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the fingerprint HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "IDREG_LOG_HMAC_KEY"

	fingerprintLen = 16
)

// Fingerprinter hashes identifiers for logging.
type Fingerprinter struct {
	key []byte
}

// New returns a Fingerprinter. A nil/empty key selects plain SHA-256.
func New(key []byte) Fingerprinter {
	return Fingerprinter{key: key}
}

// FromEnv builds a Fingerprinter from IDREG_LOG_HMAC_KEY (trimmed).
func FromEnv() Fingerprinter {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return New(nil)
	}
	return New([]byte(raw))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Keyed reports whether fingerprints are HMAC-based.
func (f Fingerprinter) Keyed() bool { return len(f.key) > 0 }

// Fingerprint returns a short hex digest of the lower-cased, trimmed value.
// Empty input yields "".
func (f Fingerprinter) Fingerprint(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return ""
	}
	var sum []byte
	if f.Keyed() {
		sum = HashHMACSHA256(v, f.key)
	} else {
		s := sha256.Sum256([]byte(v))
		sum = s[:]
	}
	return hex.EncodeToString(sum)[:fingerprintLen]
}

// HashHMACSHA256 returns the HMAC-SHA256 of s using key.
func HashHMACSHA256(s string, key []byte) []byte {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return m.Sum(nil)
}
