package app

import (
	"fmt"
	"strings"
	"time"
)

// Store kinds accepted by IDREG_STORE.
const (
	StoreAuto     = "auto"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"IDREG_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"IDREG_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"IDREG_LOG_FORMAT" envDefault:"json"`
	// LogColor is auto|always|never and only affects the pretty format.
	LogColor string `env:"IDREG_LOG_COLOR" envDefault:"auto"`

	ReadHeaderTimeout time.Duration `env:"IDREG_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"IDREG_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"IDREG_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"IDREG_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"IDREG_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// Store selects the identity backend. "auto" picks postgres when a
	// database URL is set and memory otherwise.
	Store        string        `env:"IDREG_STORE" envDefault:"auto"`
	DatabaseURL  string        `env:"IDREG_DATABASE_URL"`
	SQLitePath   string        `env:"IDREG_SQLITE_PATH" envDefault:"idreg.db"`
	DBMaxConns   int32         `env:"IDREG_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns   int32         `env:"IDREG_DB_MIN_CONNS" envDefault:"0"`
	DBSchema     string        `env:"IDREG_DB_SCHEMA" envDefault:"idreg"`
	StoreTimeout time.Duration `env:"IDREG_STORE_TIMEOUT" envDefault:"3s"`
	AutoMigrate  bool          `env:"IDREG_AUTO_MIGRATE" envDefault:"true"`

	// If true, /readyz returns 503 unless a durable store is configured and reachable.
	ReadinessRequireDB bool `env:"IDREG_READINESS_REQUIRE_DB" envDefault:"false"`

	MetricsEnabled bool `env:"IDREG_METRICS_ENABLED" envDefault:"true"`

	// If true, IDREG_LOG_HMAC_KEY MUST be set (>= 32 bytes) so log fingerprints are keyed.
	RequireLogHMAC bool `env:"IDREG_REQUIRE_LOG_HMAC" envDefault:"false"`
}

// LoadConfig loads Config from an optional .env file and the environment.
func LoadConfig() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := parseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StoreKind resolves "auto" to a concrete backend.
func (c Config) StoreKind() string {
	if c.storeIsAuto() {
		if strings.TrimSpace(c.DatabaseURL) != "" {
			return StorePostgres
		}
		return StoreMemory
	}
	return strings.ToLower(strings.TrimSpace(c.Store))
}

func (c Config) storeIsAuto() bool {
	kind := strings.ToLower(strings.TrimSpace(c.Store))
	return kind == "" || kind == StoreAuto
}

func (c Config) validate() error {
	switch c.StoreKind() {
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("config: IDREG_STORE=postgres requires IDREG_DATABASE_URL")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("config: IDREG_STORE=sqlite requires IDREG_SQLITE_PATH")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown IDREG_STORE %q (want auto|postgres|sqlite|memory)", c.Store)
	}

	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: unknown IDREG_LOG_FORMAT %q (want json|pretty)", c.LogFormat)
	}

	if c.DBMaxConns < 0 || c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("config: invalid pool bounds min=%d max=%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("config: IDREG_STORE_TIMEOUT must not be negative")
	}
	return nil
}
