package config

import "testing"

func TestGetByPath(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "123:abc"

	got, err := GetByPath(cfg, "channels.telegram.token")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "123:abc" {
		t.Errorf("got %v", got)
	}

	if _, err := GetByPath(cfg, "channels.matrix.token"); err == nil {
		t.Error("expected error for unknown path")
	}
}

func TestSetByPath(t *testing.T) {
	cfg := Defaults()

	if err := SetByPath(cfg, "knowledge.matchThreshold", "0.7"); err != nil {
		t.Fatalf("set float: %v", err)
	}
	if cfg.Knowledge.MatchThreshold != 0.7 {
		t.Errorf("matchThreshold = %v", cfg.Knowledge.MatchThreshold)
	}

	if err := SetByPath(cfg, "channels.telegram.enabled", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("telegram.enabled not set")
	}

	if err := SetByPath(cfg, "sweeper.intervalSeconds", "600"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Sweeper.IntervalSeconds != 600 {
		t.Errorf("intervalSeconds = %d", cfg.Sweeper.IntervalSeconds)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "1234567890:very-secret-token"
	prov := cfg.Providers["anthropic"]
	prov.APIKey = "sk-ant-api03-abcdef"
	cfg.Providers["anthropic"] = prov

	clean := Sanitize(cfg)

	if clean.Channels.Telegram.Token == cfg.Channels.Telegram.Token {
		t.Error("telegram token not masked")
	}
	if clean.Providers["anthropic"].APIKey == "sk-ant-api03-abcdef" {
		t.Error("provider key not masked")
	}
	// original untouched
	if cfg.Channels.Telegram.Token != "1234567890:very-secret-token" {
		t.Error("sanitize mutated the original config")
	}
}

func TestMaskString(t *testing.T) {
	if got := maskString("short"); got != "***" {
		t.Errorf("short value: %q", got)
	}
	if got := maskString("1234567890abcd"); got != "1234****abcd" {
		t.Errorf("long value: %q", got)
	}
}

func TestListPaths(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, want := range []string{"general.logLevel", "store.dbPath", "sweeper.intervalSeconds"} {
		if _, ok := paths[want]; !ok {
			t.Errorf("missing path %s", want)
		}
	}
}
