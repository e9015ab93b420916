// Package config loads process configuration from an optional YAML file with
// environment variable overrides for secrets and the database DSN.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "15m" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for the API and migrate binaries.
type Config struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Logger      LoggerConfig    `yaml:"logger"`
	JWT         JWTConfig       `yaml:"jwt"`
	BcryptCost  int             `yaml:"bcrypt_cost"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	SeedAdmin   SeedAdminConfig `yaml:"seed_admin"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

// JWTConfig carries per-token-class secrets and lifetimes. Access and
// refresh tokens use distinct secrets.
type JWTConfig struct {
	Issuer        string   `yaml:"issuer"`
	AccessSecret  string   `yaml:"access_secret"`
	RefreshSecret string   `yaml:"refresh_secret"`
	AccessTTL     Duration `yaml:"access_ttl"`
	RefreshTTL    Duration `yaml:"refresh_ttl"`
}

type RateLimitConfig struct {
	Burst     int `yaml:"burst"`
	PerSecond int `yaml:"per_second"`
}

// SeedAdminConfig bootstraps the singleton global super admin.
type SeedAdminConfig struct {
	Email  string `yaml:"email"`
	Secret string `yaml:"secret"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() *Config {
	return &Config{
		Environment: "prod",
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodyBytes: 1 << 20,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(15 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Logger: LoggerConfig{Level: "info"},
		JWT: JWTConfig{
			Issuer:     "maktab",
			AccessTTL:  Duration(15 * time.Minute),
			RefreshTTL: Duration(7 * 24 * time.Hour),
		},
		BcryptCost: 10,
		RateLimit:  RateLimitConfig{Burst: 10, PerSecond: 5},
	}
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MAKTAB_PG_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("MAKTAB_ACCESS_SECRET"); v != "" {
		c.JWT.AccessSecret = v
	}
	if v := os.Getenv("MAKTAB_REFRESH_SECRET"); v != "" {
		c.JWT.RefreshSecret = v
	}
	if v := os.Getenv("MAKTAB_SEED_ADMIN_EMAIL"); v != "" {
		c.SeedAdmin.Email = v
	}
	if v := os.Getenv("MAKTAB_SEED_ADMIN_SECRET"); v != "" {
		c.SeedAdmin.Secret = v
	}
	if v := os.Getenv("MAKTAB_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MAKTAB_BCRYPT_COST"); v != "" {
		if cost, err := strconv.Atoi(v); err == nil {
			c.BcryptCost = cost
		}
	}
}

func (c *Config) validate() error {
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("config: jwt access and refresh secrets are required")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("config: jwt access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL.Std() <= 0 || c.JWT.RefreshTTL.Std() <= 0 {
		return errors.New("config: jwt ttls must be positive")
	}
	if c.BcryptCost < 0 || c.BcryptCost > 31 {
		return fmt.Errorf("config: bcrypt cost %d out of range", c.BcryptCost)
	}
	return nil
}
