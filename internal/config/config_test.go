package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			"concurrency too low",
			func(c *Config) { c.General.MaxConcurrentMessages = 0 },
			"general.maxConcurrentMessages",
		},
		{
			"concurrency too high",
			func(c *Config) { c.General.MaxConcurrentMessages = 101 },
			"general.maxConcurrentMessages",
		},
		{
			"missing db path",
			func(c *Config) { c.Store.DBPath = "" },
			"store.dbPath",
		},
		{
			"zero responder timeout",
			func(c *Config) { c.Responder.TimeoutSeconds = 0 },
			"responder.timeoutSeconds",
		},
		{
			"zero history limit",
			func(c *Config) { c.Responder.HistoryLimit = 0 },
			"responder.historyLimit",
		},
		{
			"unknown provider in failover chain",
			func(c *Config) { c.Responder.FailoverChain = []string{"anthropic", "mistral"} },
			"unknown provider: mistral",
		},
		{
			"unknown default provider",
			func(c *Config) { c.Responder.DefaultProvider = "grok" },
			"unknown provider: grok",
		},
		{
			"threshold above one",
			func(c *Config) { c.Knowledge.MatchThreshold = 1.5 },
			"knowledge.matchThreshold",
		},
		{
			"escalated cutoff below idle cutoff",
			func(c *Config) {
				c.Sweeper.IdleAfterMinutes = 120
				c.Sweeper.EscalatedAfterMinutes = 60
			},
			"sweeper.escalatedAfterMinutes",
		},
		{
			"bad metrics port",
			func(c *Config) { c.Metrics.Port = 70000 },
			"metrics.port",
		},
		{
			"events enabled without url",
			func(c *Config) {
				c.Events.Enabled = true
				c.Events.URL = ""
			},
			"events.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Store.DBPath = ""
	cfg.Responder.TimeoutSeconds = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"store.dbPath", "responder.timeoutSeconds"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.General.LogLevel = "debug"
	cfg.Store.DBPath = filepath.Join(dir, "guestdesk.db")
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "123:abc"
	cfg.Knowledge.MatchThreshold = 0.6

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.General.LogLevel != "debug" {
		t.Errorf("logLevel = %q", loaded.General.LogLevel)
	}
	if loaded.Channels.Telegram.Token != "123:abc" {
		t.Errorf("telegram token = %q", loaded.Channels.Telegram.Token)
	}
	if loaded.Knowledge.MatchThreshold != 0.6 {
		t.Errorf("matchThreshold = %v", loaded.Knowledge.MatchThreshold)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.Store.DBPath = ""
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation failure on load")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("GD_TEST_TOKEN", "secret-token")
	os.Unsetenv("GD_TEST_MISSING")

	tests := []struct {
		in, want string
	}{
		{"${GD_TEST_TOKEN}", "secret-token"},
		{"prefix-${GD_TEST_TOKEN}-suffix", "prefix-secret-token-suffix"},
		{"${GD_TEST_MISSING:-fallback}", "fallback"},
		{"${GD_TEST_TOKEN:-fallback}", "secret-token"},
		{"${GD_TEST_MISSING}", "${GD_TEST_MISSING}"},
		{"no vars here", "no vars here"},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandEnvVars_EmptyTreatedAsUnset(t *testing.T) {
	t.Setenv("GD_TEST_EMPTY", "")
	if got := ExpandEnvVars("${GD_TEST_EMPTY:-fallback}"); got != "fallback" {
		t.Errorf("got %q, want fallback for empty env var", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x/y"); got != filepath.Join(home, "x", "y") {
		t.Errorf("ExpandPath(~/x/y) = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path must pass through, got %q", got)
	}
}
