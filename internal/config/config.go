// Package config содержит логику чтения конфигурации сервиса обмена вещами.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса обмена вещами.
type Config struct {
	RunAddress              string        `env:"RUN_ADDRESS"`
	DatabaseURI             string        `env:"DATABASE_URI"`
	RedisAddress            string        `env:"REDIS_ADDRESS"`
	IdentityProviderAddress string        `env:"IDENTITY_PROVIDER_ADDRESS"`
	JWTSecret               string        `env:"JWT_SECRET"`
	SessionTTL              time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SharingReward           int64         `env:"SHARING_REWARD" envDefault:"10"`
	BorrowingReward         int64         `env:"BORROWING_REWARD" envDefault:"5"`
	AllowedOrigins          []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fromEnv := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for session tokens")
	flag.StringVar(&cfg.IdentityProviderAddress, "i", "", "identity provider address")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret for platform JWT tokens")

	flag.Parse()

	override(&cfg.RunAddress, fromEnv.RunAddress)
	override(&cfg.DatabaseURI, fromEnv.DatabaseURI)
	override(&cfg.RedisAddress, fromEnv.RedisAddress)
	override(&cfg.IdentityProviderAddress, fromEnv.IdentityProviderAddress)
	override(&cfg.JWTSecret, fromEnv.JWTSecret)

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.SharingReward <= 0 || cfg.BorrowingReward <= 0 {
		return nil, fmt.Errorf("reward amounts must be positive, got %d and %d", cfg.SharingReward, cfg.BorrowingReward)
	}

	return cfg, nil
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}
