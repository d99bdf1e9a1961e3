package password

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
	// If true, require a lower-case letter, an upper-case letter, a digit and a symbol.
	RequireClasses bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns a strong baseline for interactive logins.
// Values can be overridden via env.
func DefaultConfig() Config {
	// CPU-aware parallelism, clamped to [1..4] to keep container resource usage predictable.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,      // 64 MiB
			Iterations:  3,              // reasonable default for interactive logins
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: false,
			RequireClasses: true,
		},
	}
}

// envConfig mirrors the env surface. Pointers distinguish "unset" from zero.
type envConfig struct {
	MinLength      *int    `env:"IDREG_PASSWORD_MIN_LEN"`
	MaxLength      *int    `env:"IDREG_PASSWORD_MAX_LEN"`
	RejectVeryWeak *bool   `env:"IDREG_PASSWORD_REJECT_VERY_WEAK"`
	RequireClasses *bool   `env:"IDREG_PASSWORD_REQUIRE_CLASSES"`
	MemoryKiB      *uint32 `env:"IDREG_ARGON2_MEMORY_KIB"`
	Iterations     *uint32 `env:"IDREG_ARGON2_ITERATIONS"`
	Parallelism    *uint32 `env:"IDREG_ARGON2_PARALLELISM"`
	SaltLength     *uint32 `env:"IDREG_ARGON2_SALT_LEN"`
	KeyLength      *uint32 `env:"IDREG_ARGON2_KEY_LEN"`
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
// - IDREG_PASSWORD_MIN_LEN
// - IDREG_PASSWORD_MAX_LEN
// - IDREG_PASSWORD_REJECT_VERY_WEAK (true/false)
// - IDREG_PASSWORD_REQUIRE_CLASSES (true/false)
// - IDREG_ARGON2_MEMORY_KIB
// - IDREG_ARGON2_ITERATIONS
// - IDREG_ARGON2_PARALLELISM
// - IDREG_ARGON2_SALT_LEN
// - IDREG_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("password config: %w", err)
	}

	if raw.MinLength != nil {
		if err := intInRange("IDREG_PASSWORD_MIN_LEN", *raw.MinLength, 1, 1024); err != nil {
			return Config{}, err
		}
		cfg.Policy.MinLength = *raw.MinLength
	}
	if raw.MaxLength != nil {
		if err := intInRange("IDREG_PASSWORD_MAX_LEN", *raw.MaxLength, 1, 4096); err != nil {
			return Config{}, err
		}
		cfg.Policy.MaxLength = *raw.MaxLength
	}
	if raw.RejectVeryWeak != nil {
		cfg.Policy.RejectVeryWeak = *raw.RejectVeryWeak
	}
	if raw.RequireClasses != nil {
		cfg.Policy.RequireClasses = *raw.RequireClasses
	}
	if raw.MemoryKiB != nil {
		if err := u32InRange("IDREG_ARGON2_MEMORY_KIB", *raw.MemoryKiB, 8*1024, 1024*1024); err != nil { // 8 MiB .. 1 GiB
			return Config{}, err
		}
		cfg.Params.MemoryKiB = *raw.MemoryKiB
	}
	if raw.Iterations != nil {
		if err := u32InRange("IDREG_ARGON2_ITERATIONS", *raw.Iterations, 1, 20); err != nil {
			return Config{}, err
		}
		cfg.Params.Iterations = *raw.Iterations
	}
	if raw.Parallelism != nil {
		if err := u32InRange("IDREG_ARGON2_PARALLELISM", *raw.Parallelism, 1, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.Parallelism = uint8(*raw.Parallelism) // #nosec G115 -- bounded to [1..64] above.
	}
	if raw.SaltLength != nil {
		if err := u32InRange("IDREG_ARGON2_SALT_LEN", *raw.SaltLength, 8, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.SaltLength = *raw.SaltLength
	}
	if raw.KeyLength != nil {
		if err := u32InRange("IDREG_ARGON2_KEY_LEN", *raw.KeyLength, 16, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.KeyLength = *raw.KeyLength
	}

	// Final sanity.
	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func intInRange(key string, v, minVal, maxVal int) error {
	if v < minVal || v > maxVal {
		return fmt.Errorf("%s: out of range [%d..%d]", key, minVal, maxVal)
	}
	return nil
}

func u32InRange(key string, v, minVal, maxVal uint32) error {
	if v < minVal || v > maxVal {
		return fmt.Errorf("%s: out of range [%d..%d]", key, minVal, maxVal)
	}
	return nil
}
