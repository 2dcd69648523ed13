package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for GuestDesk.
type Config struct {
	General   GeneralConfig              `json:"general"`
	Store     StoreConfig                `json:"store"`
	Channels  ChannelsConfig             `json:"channels"`
	Responder ResponderConfig            `json:"responder"`
	Providers map[string]ProviderConfig  `json:"providers"`
	Knowledge KnowledgeConfig            `json:"knowledge"`
	Sweeper   SweeperConfig              `json:"sweeper"`
	Events    EventsConfig               `json:"events"`
	Metrics   MetricsConfig              `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`
	LogFile               string `json:"logFile,omitempty"` // optional log file path
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
	Greeting              string `json:"greeting,omitempty"` // sent on first contact, empty disables
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled"`
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port"`
	AppSecret     string `json:"appSecret,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
	WebhookPath   string `json:"webhookPath,omitempty"`
}

// ResponderConfig configures the generative fallback used when the knowledge
// base has no answer.
type ResponderConfig struct {
	DefaultProvider string   `json:"defaultProvider"`
	FailoverChain   []string `json:"failoverChain,omitempty"` // provider failover order
	TimeoutSeconds  int      `json:"timeoutSeconds"`          // per-generation deadline
	HistoryLimit    int      `json:"historyLimit"`            // messages of context per call
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
}

// KnowledgeConfig configures the lexical matcher and auto-save rules.
type KnowledgeConfig struct {
	MatchThreshold float64 `json:"matchThreshold"`
	RulesDir       string  `json:"rulesDir,omitempty"` // extra auto-save rule files
}

type SweeperConfig struct {
	Enabled               bool `json:"enabled"`
	IntervalSeconds       int  `json:"intervalSeconds"`
	IdleAfterMinutes      int  `json:"idleAfterMinutes"`
	EscalatedAfterMinutes int  `json:"escalatedAfterMinutes"`
}

// EventsConfig configures AMQP lifecycle event publishing. Disabled means
// events are dropped silently.
type EventsConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.guestdesk).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guestdesk"
	}
	return filepath.Join(home, ".guestdesk")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Knowledge.RulesDir = ExpandPath(cfg.Knowledge.RulesDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}

	if cfg.Responder.TimeoutSeconds < 1 {
		errs = append(errs, "responder.timeoutSeconds must be >= 1")
	}
	if cfg.Responder.HistoryLimit < 1 {
		errs = append(errs, "responder.historyLimit must be >= 1")
	}
	for _, provName := range cfg.Responder.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("responder.failoverChain references unknown provider: %s", provName))
		}
	}
	if cfg.Responder.DefaultProvider != "" {
		if _, ok := cfg.Providers[cfg.Responder.DefaultProvider]; !ok {
			errs = append(errs, fmt.Sprintf("responder.defaultProvider references unknown provider: %s", cfg.Responder.DefaultProvider))
		}
	}

	if cfg.Knowledge.MatchThreshold < 0 || cfg.Knowledge.MatchThreshold > 1 {
		errs = append(errs, "knowledge.matchThreshold must be between 0 and 1")
	}

	if cfg.Sweeper.IntervalSeconds < 1 {
		errs = append(errs, "sweeper.intervalSeconds must be >= 1")
	}
	if cfg.Sweeper.IdleAfterMinutes < 1 {
		errs = append(errs, "sweeper.idleAfterMinutes must be >= 1")
	}
	if cfg.Sweeper.EscalatedAfterMinutes < cfg.Sweeper.IdleAfterMinutes {
		errs = append(errs, "sweeper.escalatedAfterMinutes must be >= sweeper.idleAfterMinutes")
	}

	if cfg.Channels.WhatsApp.Port < 0 || cfg.Channels.WhatsApp.Port > 65535 {
		errs = append(errs, "channels.whatsapp.port must be between 0 and 65535")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	if cfg.Events.Enabled && cfg.Events.URL == "" {
		errs = append(errs, "events.url is required when events are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
