package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port             string        `env:"PORT" envDefault:"8080"`
	Storage          string        `env:"STORAGE" envDefault:"sqlite"`
	DatabasePath     string        `env:"DATABASE_PATH" envDefault:"./ecohop.db"`
	CatalogFile      string        `env:"CATALOG_FILE"`
	JWTSecret        string        `env:"JWT_SECRET,required,notEmpty"`
	AdminEmail       string        `env:"ADMIN_EMAIL" envDefault:"admin@ecohop.local"`
	AdminPassword    string        `env:"ADMIN_PASSWORD"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	MaxWriteAttempts int           `env:"MAX_WRITE_ATTEMPTS" envDefault:"3"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown STORAGE %q (want sqlite or memory)", c.Storage)
	}
	if c.MaxWriteAttempts < 1 {
		return fmt.Errorf("MAX_WRITE_ATTEMPTS must be at least 1, got %d", c.MaxWriteAttempts)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	if level == "debug" {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openStore(cfg Config) (RecordStore, error) {
	if cfg.Storage == "memory" {
		return NewMemoryStore(), nil
	}
	return initDB(cfg.DatabasePath)
}
