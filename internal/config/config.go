package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Radius    RadiusConfig
	Backends  BackendsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Expiry    ExpiryConfig
	Scheduler SchedulerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL             string
	Driver          string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RadiusConfig points at the FreeRADIUS SQL store. An empty URL disables
// automated auth-tunnel management.
type RadiusConfig struct {
	DatabaseURL string
	Driver      string
	Timeout     time.Duration
}

type BackendsConfig struct {
	RequestTimeout     time.Duration
	ConnectionCacheTTL time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	AccessTTL         time.Duration
	MobileTokenTTL    time.Duration
	AdminUsername     string
	AdminPasswordHash string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type ExpiryConfig struct {
	Timezone string
}

// SchedulerConfig drives the background sweep that checks backends and
// finishes interrupted removals.
type SchedulerConfig struct {
	Enabled     bool
	Interval    time.Duration
	WorkerCount int
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("VMASTER")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("database.connmaxlifetime", "5m")
	viper.SetDefault("radius.driver", "postgres")
	viper.SetDefault("radius.timeout", "5s")
	viper.SetDefault("backends.requesttimeout", "10s")
	viper.SetDefault("backends.connectioncachettl", "30s")
	viper.SetDefault("auth.accessttl", "12h")
	viper.SetDefault("auth.mobiletokenttl", "720h")
	viper.SetDefault("auth.adminusername", "admin")
	viper.SetDefault("ratelimit.requestspersecond", 5)
	viper.SetDefault("ratelimit.burst", 10)
	viper.SetDefault("expiry.timezone", "Local")
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.interval", "5m")
	viper.SetDefault("scheduler.workercount", 4)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.maxsizemb", 100)
	viper.SetDefault("log.maxbackups", 5)
	viper.SetDefault("log.maxagedays", 30)

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("RADIUS_DATABASE_URL"); url != "" {
		cfg.Radius.DatabaseURL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		cfg.Auth.AdminPasswordHash = hash
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 bytes, got %d", len(c.Auth.JWTSecret))
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid expiry timezone %q: %w", c.Expiry.Timezone, err)
	}
	return nil
}

// Location resolves the timezone used for end-of-day expiry.
func (c *Config) Location() (*time.Location, error) {
	if c.Expiry.Timezone == "" || c.Expiry.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Expiry.Timezone)
}
