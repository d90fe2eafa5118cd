// Package config reads daemon and CLI settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"github.com/joho/godotenv"
)

type Config struct {
	DataDir  string
	Format   engine.Format
	Port     string
	HTTPPort string
	UseTLS   bool
	LogLevel slog.Level
	Entities []schema.Entity
}

// Load seeds the environment from a .env file when one exists and reads
// the LEDGER_* variables.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	format, err := engine.ParseFormat(os.Getenv("LEDGER_FORMAT"))
	if err != nil {
		return nil, err
	}

	level, err := parseLevel(os.Getenv("LEDGER_LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	entities := schema.Defaults()
	if path := os.Getenv("LEDGER_ENTITIES_FILE"); path != "" {
		entities, err = schema.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity catalog %s: %w", path, err)
		}
	}

	return &Config{
		DataDir:  getenv("LEDGER_DATA_DIR", "./data"),
		Format:   format,
		Port:     getenv("LEDGER_PORT", "7001"),
		HTTPPort: getenv("LEDGER_HTTP_PORT", "7002"),
		UseTLS:   os.Getenv("LEDGER_DISABLE_TLS") != "true",
		LogLevel: level,
		Entities: entities,
	}, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid LEDGER_LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}
