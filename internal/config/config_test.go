package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MMS_JWT_SECRET", "secret")
	t.Setenv("MMS_STORE_BACKEND", "memory")
	t.Setenv("MMS_SESSION_POLL_INTERVAL", "5s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.Session.PollInterval != 5*time.Second {
		t.Fatalf("expected env poll interval, got %s", cfg.Session.PollInterval)
	}
	if cfg.Session.HangupDelay != 1500*time.Millisecond {
		t.Fatalf("expected default hangup delay, got %s", cfg.Session.HangupDelay)
	}
	if cfg.Jitsi.Domain != "8x8.vc" || cfg.Jitsi.Enabled() {
		t.Fatalf("unexpected jitsi config: %+v", cfg.Jitsi)
	}
}

func TestLoadReadsEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.Mkdir("config", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	yaml := "jwt_secret: file-secret\nstore_backend: jsonrpc\njsonrpc:\n  url: http://odoo:8069\nsession:\n  max_retries: 3\nws:\n  allowed_origins:\n    - https://odoo.example.com\n"
	if err := os.WriteFile(filepath.Join("config", "config.test.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MMS_CONFIG_ENV", "test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JSONRPC.URL != "http://odoo:8069" || cfg.Session.MaxRetries != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.WS.AllowedOrigins) != 1 || cfg.WS.AllowedOrigins[0] != "https://odoo.example.com" {
		t.Fatalf("unexpected allowed origins: %v", cfg.WS.AllowedOrigins)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	t.Setenv("MMS_JWT_SECRET", "secret")
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{JWTSecret: "s", StoreBackend: "memory"}
	cases := []struct {
		name string
		mut  func(*Config)
		ok   bool
	}{
		{"memory", func(*Config) {}, true},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, false},
		{"postgres without url", func(c *Config) { c.StoreBackend = "postgres" }, false},
		{"postgres", func(c *Config) { c.StoreBackend = "postgres"; c.DatabaseURL = "postgres://x" }, true},
		{"unknown backend", func(c *Config) { c.StoreBackend = "sqlite" }, false},
		{"jitsi without key", func(c *Config) { c.Jitsi.AppID = "vpaas-magic-cookie-1" }, false},
		{"negative retries", func(c *Config) { c.Session.MaxRetries = -1 }, false},
	}
	for _, tc := range cases {
		cfg := base
		tc.mut(&cfg)
		err := cfg.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: unexpected result %v", tc.name, err)
		}
	}
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+) on older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
}
