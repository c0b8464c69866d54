package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	AuthSecret        string        `mapstructure:"AUTH_SECRET"`
	CapabilityKey     string        `mapstructure:"CAPABILITY_SIGNING_KEY"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	GrantWindow       time.Duration `mapstructure:"GRANT_WINDOW"`
	CapabilityTTL     time.Duration `mapstructure:"CAPABILITY_TTL"`
	SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL"`
	HeartbeatInterval time.Duration `mapstructure:"HEARTBEAT_INTERVAL"`
	PushURL           string        `mapstructure:"PUSH_URL"`
	PushTimeout       time.Duration `mapstructure:"PUSH_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("GRANT_WINDOW", "20m")
	v.SetDefault("CAPABILITY_TTL", "15m")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("HEARTBEAT_INTERVAL", "30s")
	v.SetDefault("PUSH_TIMEOUT", "5s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("CAPABILITY_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("GRANT_WINDOW")
	v.BindEnv("CAPABILITY_TTL")
	v.BindEnv("SWEEP_INTERVAL")
	v.BindEnv("HEARTBEAT_INTERVAL")
	v.BindEnv("PUSH_URL")
	v.BindEnv("PUSH_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// mode the bearer-credential secret and the capability signing key must be
// set, and the two keys must differ so a leaked capability token can never be
// replayed as a login credential.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.AuthSecret == "" {
			return fmt.Errorf("AUTH_SECRET is required when ENV=%q", c.Env)
		}
		if c.CapabilityKey == "" {
			return fmt.Errorf("CAPABILITY_SIGNING_KEY is required when ENV=%q", c.Env)
		}
	}
	if c.AuthSecret != "" && c.AuthSecret == c.CapabilityKey {
		return fmt.Errorf("AUTH_SECRET and CAPABILITY_SIGNING_KEY must not be the same key")
	}
	if c.GrantWindow <= 0 {
		return fmt.Errorf("GRANT_WINDOW must be positive, got %s", c.GrantWindow)
	}
	if c.CapabilityTTL <= 0 {
		return fmt.Errorf("CAPABILITY_TTL must be positive, got %s", c.CapabilityTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	return nil
}
