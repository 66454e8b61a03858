package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SOURCE_DATABASE_URL", "postgres://reader@source/answers")
	t.Setenv("TRACKING_DATABASE_URL", "sqlite:///tmp/ledger.db")
	t.Setenv("X_ACCESS_TOKEN", "token")
}

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load([]string{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Command != CommandRun {
		t.Errorf("Expected default command %q, got %q", CommandRun, cfg.Command)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Errorf("Expected poll interval 60s, got %v", cfg.PollInterval)
	}
	if cfg.PostDelay != 10*time.Second {
		t.Errorf("Expected post delay 10s, got %v", cfg.PostDelay)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RetryBaseDelay != 5*time.Second {
		t.Errorf("Expected retry base delay 5s, got %v", cfg.RetryBaseDelay)
	}
	if cfg.RetryMultiplier != 2 {
		t.Errorf("Expected retry multiplier 2, got %v", cfg.RetryMultiplier)
	}
	if cfg.MaxBackoffDelay != 5*time.Minute {
		t.Errorf("Expected max backoff 5m, got %v", cfg.MaxBackoffDelay)
	}
	if cfg.LookbackWindow != 24*time.Hour {
		t.Errorf("Expected lookback 24h, got %v", cfg.LookbackWindow)
	}
	if cfg.PageSize != 50 {
		t.Errorf("Expected page size 50, got %d", cfg.PageSize)
	}
	if cfg.MaxContentLength != 25000 {
		t.Errorf("Expected max content length 25000, got %d", cfg.MaxContentLength)
	}
	if cfg.SourceTable != "answers" {
		t.Errorf("Expected source table 'answers', got %q", cfg.SourceTable)
	}
	if cfg.DBSSLMode != "require" {
		t.Errorf("Expected ssl mode 'require', got %q", cfg.DBSSLMode)
	}
	if cfg.XAPIBaseURL != "https://api.twitter.com" {
		t.Errorf("Expected default API base URL, got %q", cfg.XAPIBaseURL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POLL_INTERVAL", "2m")
	t.Setenv("RETRY_MULTIPLIER", "1.5")
	t.Setenv("PORT", "")

	cfg, err := Load([]string{"--page-size", "10"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.PollInterval != 2*time.Minute {
		t.Errorf("Expected poll interval 2m, got %v", cfg.PollInterval)
	}
	if cfg.RetryMultiplier != 1.5 {
		t.Errorf("Expected multiplier 1.5, got %v", cfg.RetryMultiplier)
	}
	if cfg.PageSize != 10 {
		t.Errorf("Expected page size 10 from flag, got %d", cfg.PageSize)
	}
}

func TestLoad_Commands(t *testing.T) {
	t.Setenv("TRACKING_DATABASE_URL", "sqlite:///tmp/ledger.db")
	t.Setenv("SOURCE_DATABASE_URL", "")
	t.Setenv("X_ACCESS_TOKEN", "")

	for _, name := range []string{CommandMigrate, CommandInspect} {
		cfg, err := Load([]string{name})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if cfg.Command != name {
			t.Errorf("Expected command %q, got %q", name, cfg.Command)
		}
	}
}

func TestLoad_RunRequiresToken(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("X_ACCESS_TOKEN", "")

	_, err := Load([]string{CommandRun})
	if err == nil {
		t.Fatal("Expected error without access token")
	}
	if !strings.Contains(err.Error(), "X_ACCESS_TOKEN") {
		t.Errorf("Expected error to name X_ACCESS_TOKEN, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Cfg{
		Command:             CommandRun,
		SourceDatabaseURL:   "postgres://source",
		TrackingDatabaseURL: "postgres://tracking",
		XAccessToken:        "token",
		PollInterval:        time.Minute,
		RequestTimeout:      time.Second,
		LookbackWindow:      time.Hour,
		RetryMultiplier:     2,
		PageSize:            50,
		MaxContentLength:    280,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid configuration, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Cfg)
	}{
		{"missing tracking url", func(c *Cfg) { c.TrackingDatabaseURL = "" }},
		{"missing source url", func(c *Cfg) { c.SourceDatabaseURL = "" }},
		{"zero poll interval", func(c *Cfg) { c.PollInterval = 0 }},
		{"negative post delay", func(c *Cfg) { c.PostDelay = -time.Second }},
		{"negative retries", func(c *Cfg) { c.MaxRetries = -1 }},
		{"shrinking multiplier", func(c *Cfg) { c.RetryMultiplier = 0.5 }},
		{"zero page size", func(c *Cfg) { c.PageSize = 0 }},
		{"tiny content length", func(c *Cfg) { c.MaxContentLength = 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Expected missing file to be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ANSWER_RELAY_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ANSWER_RELAY_TEST_VALUE", "")
	os.Unsetenv("ANSWER_RELAY_TEST_VALUE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := os.Getenv("ANSWER_RELAY_TEST_VALUE"); got != "from-file" {
		t.Errorf("Expected value from file, got %q", got)
	}
}
