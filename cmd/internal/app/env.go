package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DotEnvPathKey overrides the .env location; "-" disables loading.
const DotEnvPathKey = "IDREG_DOTENV"

// loadDotEnv loads KEY=VALUE pairs from a .env file without overriding variables
// already present in the process environment. A missing default file is not an error.
func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv(DotEnvPathKey))
	switch path {
	case "-":
		return nil
	case "":
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	default:
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
}

// parseEnv loads configuration from environment variables.
func parseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
