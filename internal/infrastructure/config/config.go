package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Audit     AuditConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s" validate:"gt=0"`
	AdminShutdown   bool          `envconfig:"ADMIN_SHUTDOWN_ENABLED" default:"false"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"1073741824" validate:"gte=0"`
	CORSOrigins     []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*" validate:"min=1,dive,required"`
}

// SandboxConfig holds the confined root and file I/O tuning.
type SandboxConfig struct {
	Root           string        `envconfig:"SANDBOX_ROOT" validate:"required"`
	LockTimeout    time.Duration `envconfig:"LOCK_TIMEOUT" default:"0s" validate:"gte=0"`
	IOWorkers      int           `envconfig:"IO_WORKERS" default:"32" validate:"gte=1,lte=4096"`
	CopyBufferSize int           `envconfig:"COPY_BUFFER_SIZE" default:"65536" validate:"gte=512,lte=67108864"`
}

// AuditConfig holds metadata recorder configuration.
type AuditConfig struct {
	DSN          string        `envconfig:"METADATA_DSN"`
	QueueSize    int           `envconfig:"AUDIT_QUEUE_SIZE" default:"1024" validate:"gte=1"`
	WriteTimeout time.Duration `envconfig:"AUDIT_WRITE_TIMEOUT" default:"5s" validate:"gt=0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" validate:"gte=1"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" validate:"gte=1"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	// Scope is "ip" for one bucket per client or "global" for one shared bucket
	Scope string `envconfig:"RATE_LIMIT_SCOPE" default:"ip" validate:"oneof=ip global"`
}

const (
	RateLimitPerIP  = "ip"
	RateLimitGlobal = "global"
)

// legacyLevelVar is accepted when LOG_LEVEL is not set.
const legacyLevelVar = "LOGGING_LEVEL"

// Load loads configuration from environment variables. It does not validate;
// callers apply flag overrides first and then call Validate.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if _, ok := os.LookupEnv("LOG_LEVEL"); !ok {
		if level, ok := os.LookupEnv(legacyLevelVar); ok && level != "" {
			cfg.Logging.Level = strings.ToLower(level)
		}
	}
	return &cfg, nil
}

// Default returns default configuration. Sandbox.Root has no default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  1 << 30,
			CORSOrigins:     []string{"*"},
		},
		Sandbox: SandboxConfig{
			IOWorkers:      32,
			CopyBufferSize: 64 * 1024,
		},
		Audit: AuditConfig{
			QueueSize:    1024,
			WriteTimeout: 5 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
			Scope:             RateLimitPerIP,
		},
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate checks the configuration. Errors name the environment variable.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("envconfig"); name != "" {
			return name
		}
		return fld.Name
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s=%v fails %s", fe.Field(), fe.Value(), describe(fe)))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// LoadEnvFiles loads KEY=VALUE files into the environment. Missing files are
// skipped and variables already set are never overridden.
func LoadEnvFiles(paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := gotenv.Load(p); err != nil {
			return loaded, fmt.Errorf("failed to load %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}
