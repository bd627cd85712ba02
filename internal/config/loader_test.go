package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/smartwallet/internal/config"
	"github.com/opensource-finance/smartwallet/internal/domain"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		clearConfigEnvVars()
		_ = os.Setenv(config.EnvDotFile, filepath.Join(dir, "missing.env"))
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should use the local profile", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Profile, convey.ShouldEqual, domain.ProfileLocal)
				convey.So(cfg.Server.Port, convey.ShouldEqual, 3000)
				convey.So(cfg.Repository.Driver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.Cache.Type, convey.ShouldEqual, "memory")
				convey.So(cfg.EventBus.Type, convey.ShouldEqual, "channel")
				convey.So(cfg.Recommend.MemoTTL, convey.ShouldEqual, 2*time.Second)
			})
		})

		convey.Convey("When the distributed profile is selected", func() {
			_ = os.Setenv("SMARTWALLET_PROFILE", "distributed")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should start from distributed defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Profile, convey.ShouldEqual, domain.ProfileDistributed)
				convey.So(cfg.Repository.Driver, convey.ShouldEqual, "postgres")
				convey.So(cfg.Cache.Type, convey.ShouldEqual, "redis")
				convey.So(cfg.EventBus.Type, convey.ShouldEqual, "nats")
			})
		})

		convey.Convey("When loading config with nested environment variables", func() {
			_ = os.Setenv("SMARTWALLET_SERVER__PORT", "8080")
			_ = os.Setenv("SMARTWALLET_RECOMMEND__MEMO_TTL", "5s")
			_ = os.Setenv("SMARTWALLET_REPOSITORY__DRIVER", "file")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Server.Port, convey.ShouldEqual, 8080)
				convey.So(cfg.Recommend.MemoTTL, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.Repository.Driver, convey.ShouldEqual, "file")
				convey.So(cfg.Repository.DataDir, convey.ShouldEqual, "./data")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := filepath.Join(dir, "smartwallet.yaml")
			yamlContent := `
server:
  port: 9090
  static_dir: ./public
logging:
  level: debug
`
			convey.So(os.WriteFile(path, []byte(yamlContent), 0o600), convey.ShouldBeNil)
			_ = os.Setenv(config.EnvConfig, path)
			_ = os.Setenv("SMARTWALLET_SERVER__PORT", "7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Server.Port, convey.ShouldEqual, 7070)
				convey.So(cfg.Server.StaticDir, convey.ShouldEqual, "./public")
				convey.So(cfg.Logging.Level, convey.ShouldEqual, "debug")
				convey.So(cfg.Server.Host, convey.ShouldEqual, "0.0.0.0")
			})
		})

		convey.Convey("When a .env file is present", func() {
			path := filepath.Join(dir, "test.env")
			convey.So(os.WriteFile(path, []byte("SMARTWALLET_LOGGING__FORMAT=text\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv(config.EnvDotFile, path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then its values should be applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Logging.Format, convey.ShouldEqual, "text")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := filepath.Join(dir, "broken.yaml")
			convey.So(os.WriteFile(path, []byte(`invalid: yaml: content: [`), 0o600), convey.ShouldBeNil)
			_ = os.Setenv(config.EnvConfig, path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with an unknown profile", func() {
			_ = os.Setenv("SMARTWALLET_PROFILE", "galactic")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the context is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			cfg, err := config.Load(cancelled)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with an unsupported driver", func() {
			_ = os.Setenv("SMARTWALLET_REPOSITORY__DRIVER", "mongo")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "unsupported repository driver")
			})
		})
	})
}

func TestValidate(t *testing.T) {
	convey.Convey("Given the default config", t, func() {
		cfg := domain.DefaultConfig()

		convey.Convey("It should be valid", func() {
			convey.So(config.Validate(cfg), convey.ShouldBeNil)
		})

		convey.Convey("A zero port should be rejected", func() {
			cfg.Server.Port = 0
			convey.So(errors.Is(config.Validate(cfg), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("An unknown cache type should be rejected", func() {
			cfg.Cache.Type = "memcached"
			convey.So(errors.Is(config.Validate(cfg), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A negative worker concurrency should be rejected", func() {
			cfg.Worker.Concurrency = -1
			convey.So(errors.Is(config.Validate(cfg), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A file repository needs a data dir", func() {
			cfg.Repository.Driver = "file"
			cfg.Repository.DataDir = ""
			convey.So(errors.Is(config.Validate(cfg), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

// clearConfigEnvVars removes every SMARTWALLET_ variable, including those
// exported by a loaded .env file.
func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, config.EnvPrefix) {
			_ = os.Unsetenv(key)
		}
	}
}
