// Package config loads the SmartWallet configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/opensource-finance/smartwallet/internal/domain"
)

// Environment variables read by the loader.
const (
	EnvPrefix  = "SMARTWALLET_"
	EnvConfig  = "SMARTWALLET_CONFIG"
	EnvDotFile = "SMARTWALLET_ENV_FILE"
)

// Load builds a Config by layering defaults, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. profile defaults (domain.DefaultConfig or domain.DistributedConfig)
//  2. .env file, exported into the process environment
//  3. YAML file if SMARTWALLET_CONFIG is set
//  4. env (prefix SMARTWALLET_, "__" separates nested keys)
//
// SMARTWALLET_SERVER__PORT=8080 sets server.port. A cancelled ctx aborts
// the load before anything is read.
func Load(ctx context.Context) (*domain.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	dotenv := os.Getenv(EnvDotFile)
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, dotenv, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	var base *domain.Config
	switch domain.Profile(k.String("profile")) {
	case "", domain.ProfileLocal:
		base = domain.DefaultConfig()
	case domain.ProfileDistributed:
		base = domain.DistributedConfig()
	default:
		return nil, fmt.Errorf("%w: unknown profile %q", ErrInvalidConfig, k.String("profile"))
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 1 and 65535", ErrInvalidConfig)
	}

	switch cfg.Repository.Driver {
	case "sqlite":
		if cfg.Repository.SQLitePath == "" {
			return fmt.Errorf("%w: repository.sqlite_path must not be empty", ErrInvalidConfig)
		}
	case "postgres":
		if cfg.Repository.PostgresHost == "" || cfg.Repository.PostgresDB == "" {
			return fmt.Errorf("%w: repository.postgres_host and postgres_db are required", ErrInvalidConfig)
		}
	case "file":
		if cfg.Repository.DataDir == "" {
			return fmt.Errorf("%w: repository.data_dir must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported repository driver %q", ErrInvalidConfig, cfg.Repository.Driver)
	}

	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unsupported cache type %q", ErrInvalidConfig, cfg.Cache.Type)
	}

	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("%w: unsupported event bus type %q", ErrInvalidConfig, cfg.EventBus.Type)
	}

	if cfg.Recommend.MemoTTL < 0 || cfg.Recommend.CatalogTTL < 0 {
		return fmt.Errorf("%w: recommend TTLs must not be negative", ErrInvalidConfig)
	}

	if cfg.Worker.Concurrency < 0 || cfg.Worker.QueueSize < 0 {
		return fmt.Errorf("%w: worker.concurrency and worker.queue_size must not be negative", ErrInvalidConfig)
	}
	return nil
}
