// Package config loads service configuration from layered sources: built-in
// defaults, an optional YAML file, then environment variable overrides. The
// resulting value is passed explicitly to every component that needs it — no
// package-level configuration state.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30m" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the full service configuration.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	PostgresDSN string `yaml:"postgres_dsn"`
	LogLevel    string `yaml:"log_level"`

	Auth  AuthConfig  `yaml:"auth"`
	Redis RedisConfig `yaml:"redis"`
	Rate  RateConfig  `yaml:"rate"`

	// PublicPaths are regular expressions matched against the request path
	// before any authentication is attempted.
	PublicPaths []string `yaml:"public_paths"`

	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// AuthConfig configures token issuance and verification.
type AuthConfig struct {
	Secret   string   `yaml:"secret"`
	Issuer   string   `yaml:"issuer"`
	TokenTTL Duration `yaml:"token_ttl"`
}

// RedisConfig configures the optional performance-metric cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateConfig configures the per-IP rate limiter.
type RateConfig struct {
	Burst     int `yaml:"burst"`
	PerSecond int `yaml:"per_second"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr: ":8080",
		LogLevel: "info",
		Auth: AuthConfig{
			Issuer:   "forkline",
			TokenTTL: Duration(30 * time.Minute),
		},
		Rate: RateConfig{Burst: 20, PerSecond: 10},
		PublicPaths: []string{
			`^/healthz$`,
			`^/readyz$`,
			`^/metrics$`,
			`^/v1/info$`,
			`^/v1/auth/login$`,
			`^/v1/auth/register$`,
		},
		MaxBodyBytes: 1 << 20,
	}
}

// Load builds the configuration. Order: defaults, YAML file (explicit path,
// FORKLINE_CONFIG, ./config.yaml), environment overrides, validation.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if file := discoverFile(path); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", file, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func discoverFile(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("FORKLINE_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FORKLINE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("FORKLINE_PG_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("FORKLINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FORKLINE_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("FORKLINE_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Auth.TokenTTL = Duration(d)
		}
	}
	if v := os.Getenv("FORKLINE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FORKLINE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FORKLINE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("config: http_addr is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("config: auth secret is required (auth.secret or FORKLINE_AUTH_SECRET)")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config: auth.token_ttl must be positive")
	}
	for _, p := range c.PublicPaths {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("config: invalid public path pattern %q: %w", p, err)
		}
	}
	return nil
}

// CompilePublicPaths compiles the configured public path patterns. Validate
// must have accepted the configuration first.
func (c Config) CompilePublicPaths() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(c.PublicPaths))
	for _, p := range c.PublicPaths {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}
