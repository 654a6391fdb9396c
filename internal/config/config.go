// Package config loads ledgerd settings from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Token gateway modes.
const (
	GatewayMemory = "memory"
	GatewayRPC    = "rpc"
)

// Authorizer modes.
const (
	AuthTrusted = "trusted"
	AuthEd25519 = "ed25519"
)

// Config is the configuration shared by ledgerd and replay. Auth and Gateway
// apply where operations mutate state, which is scenario replay.
type Config struct {
	Store         string `env:"CROWDFUND_STORE" envDefault:"memory" validate:"oneof=memory postgres"`
	PostgresDSN   string `env:"CROWDFUND_POSTGRES_DSN" validate:"required_if=Store postgres"`
	ClickhouseDSN string `env:"CROWDFUND_CLICKHOUSE_DSN"`
	HTTPAddr      string `env:"CROWDFUND_HTTP_ADDR" envDefault:":8080" validate:"required"`
	Auth          string `env:"CROWDFUND_AUTH" envDefault:"trusted" validate:"oneof=trusted ed25519"`
	VaultSeed     string `env:"CROWDFUND_VAULT_SEED" envDefault:"crowdfund-ledger" validate:"required"`

	ShutdownTimeout time.Duration `env:"CROWDFUND_SHUTDOWN_TIMEOUT" envDefault:"30s" validate:"gt=0"`

	Log     Log
	Gateway Gateway
}

// Log configures internal/logger.
type Log struct {
	Level      string `env:"CROWDFUND_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn warning error"`
	Format     string `env:"CROWDFUND_LOG_FORMAT" envDefault:"json" validate:"oneof=json console"`
	File       string `env:"CROWDFUND_LOG_FILE"`
	MaxSizeMB  int    `env:"CROWDFUND_LOG_MAX_SIZE_MB" envDefault:"100" validate:"gte=0"`
	MaxBackups int    `env:"CROWDFUND_LOG_MAX_BACKUPS" envDefault:"3" validate:"gte=0"`
	MaxAgeDays int    `env:"CROWDFUND_LOG_MAX_AGE_DAYS" envDefault:"28" validate:"gte=0"`
	Compress   bool   `env:"CROWDFUND_LOG_COMPRESS" envDefault:"true"`
}

// Gateway selects and tunes the token gateway replayed operations move funds
// through.
type Gateway struct {
	Mode       string        `env:"CROWDFUND_GATEWAY" envDefault:"memory" validate:"oneof=memory rpc"`
	Endpoint   string        `env:"CROWDFUND_GATEWAY_ENDPOINT" validate:"required_if=Mode rpc"`
	Timeout    time.Duration `env:"CROWDFUND_GATEWAY_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	MaxRetries int           `env:"CROWDFUND_GATEWAY_MAX_RETRIES" envDefault:"3" validate:"gte=0"`
}

// Load reads the given .env files, then parses the process environment.
// Missing files are skipped; variables already set win over file values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return parse(env.Options{})
}

// FromMap parses cfg from vars instead of the process environment.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	// Report fields by their environment variable.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
}

// Validate checks option values and their combinations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fieldError(fe))
	}
	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s is required", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s must satisfy %s=%s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
}
