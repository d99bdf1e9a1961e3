package app

import (
	"errors"

	"idreg/cmd/security/redact"
)

// ValidateSecurityConfig enforces the startup security policy.
// Fail fast: logging plain SHA-256 fingerprints when a keyed mode was required is not acceptable.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireLogHMAC {
		return nil
	}

	// HMAC-SHA256 key, measured in bytes since it is used raw.
	if _, err := redact.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, redact.ErrHMACKeyMissing):
			return errors.New("security policy: IDREG_REQUIRE_LOG_HMAC=true but IDREG_LOG_HMAC_KEY is missing")
		case errors.Is(err, redact.ErrHMACKeyTooShort):
			return errors.New("security policy: IDREG_REQUIRE_LOG_HMAC=true but IDREG_LOG_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !redact.FromEnv().Keyed() {
		return errors.New("security policy: IDREG_REQUIRE_LOG_HMAC=true but fingerprinter is not in HMAC mode")
	}
	return nil
}
