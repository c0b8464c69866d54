package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Port:              "8000",
		Env:               "production",
		DatabaseURL:       "postgres://localhost/carelink",
		AuthSecret:        "auth-secret",
		CapabilityKey:     "capability-secret",
		GrantWindow:       20 * time.Minute,
		CapabilityTTL:     15 * time.Minute,
		SweepInterval:     time.Minute,
		HeartbeatInterval: 30 * time.Second,
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.AuthSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing AUTH_SECRET in production")
	}

	cfg = validConfig()
	cfg.CapabilityKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing CAPABILITY_SIGNING_KEY in production")
	}
}

func TestValidate_DevAllowsMissingSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "development"
	cfg.AuthSecret = ""
	cfg.CapabilityKey = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsSharedKey(t *testing.T) {
	cfg := validConfig()
	cfg.CapabilityKey = cfg.AuthSecret
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when auth and capability keys are identical")
	}
}

func TestValidate_RejectsNonPositiveIntervals(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"grant window", func(c *Config) { c.GrantWindow = 0 }},
		{"capability ttl", func(c *Config) { c.CapabilityTTL = -time.Second }},
		{"sweep interval", func(c *Config) { c.SweepInterval = 0 }},
		{"heartbeat interval", func(c *Config) { c.HeartbeatInterval = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for non-positive %s", tc.name)
			}
		})
	}
}
