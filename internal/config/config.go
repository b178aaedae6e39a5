// Package config loads application configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxy    string        `mapstructure:"trusted_proxy"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// DSN builds the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// JWTConfig holds token validation settings.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// RedisConfig holds Redis connection settings for job locks.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JobsConfig holds worker scheduling settings.
type JobsConfig struct {
	// RunAt is the local wall-clock time (HH:MM) the daily jobs start.
	RunAt string `mapstructure:"run_at"`
	// LockTTL bounds how long a fleet-wide job lock is held.
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// Timezone for the RunAt schedule, IANA name.
	Timezone string `mapstructure:"timezone"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is read first when present; real environment
// variables always win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !strings.Contains(err.Error(), "no such file") {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.trusted_proxy", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "stockledger")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("jwt.secret", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jobs.run_at", "00:10")
	v.SetDefault("jobs.lock_ttl", "10m")
	v.SetDefault("jobs.timezone", "UTC")
}

// bindKeys maps every config key to its environment variable so that
// AutomaticEnv picks them up without a config file present.
func bindKeys(v *viper.Viper) {
	for _, key := range []string{
		"app.env", "app.log_level",
		"http.host", "http.port", "http.read_timeout", "http.write_timeout",
		"http.shutdown_timeout", "http.trusted_proxy",
		"database.host", "database.port", "database.user", "database.password",
		"database.name", "database.ssl_mode", "database.max_conns",
		"database.min_conns", "database.max_conn_lifetime", "database.max_conn_idle_time",
		"jwt.secret",
		"redis.addr", "redis.password", "redis.db",
		"jobs.run_at", "jobs.lock_ttl", "jobs.timezone",
	} {
		_ = v.BindEnv(key)
	}
}

func (c *Config) validate() error {
	if c.App.Env != "development" && c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if _, err := time.Parse("15:04", c.Jobs.RunAt); err != nil {
		return fmt.Errorf("jobs.run_at must be HH:MM: %w", err)
	}
	if _, err := time.LoadLocation(c.Jobs.Timezone); err != nil {
		return fmt.Errorf("jobs.timezone: %w", err)
	}
	return nil
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
