package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// EnvFileVar names the variable that overrides the dotenv file path.
const EnvFileVar = "ENV_FILE"

// Load parses environment variables into the provided struct.
// The struct should use `env` tags to define mappings.
//
// A dotenv file (".env" or $ENV_FILE) is read first when it exists. Values
// already present in the real environment always win.
//
// Example:
//
//	type Config struct {
//	    Port     int    `env:"HTTP_PORT" envDefault:"8080"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	path := os.Getenv(EnvFileVar)
	if path == "" {
		path = ".env"
	}
	if err := loadDotenv(path); err != nil {
		return err
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// loadDotenv applies path to the process environment. A missing file is not
// an error.
func loadDotenv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}
