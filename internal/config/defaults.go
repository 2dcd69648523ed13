package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
			Greeting:              "Здравствуйте! Я помощник гостевой службы. Чем могу помочь?",
		},
		Store: StoreConfig{
			DBPath: "~/.guestdesk/guestdesk.db",
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
			WhatsApp: WhatsAppConfig{
				Enabled:     false,
				Host:        "127.0.0.1",
				Port:        8088,
				WebhookPath: "/webhook/whatsapp",
			},
		},
		Responder: ResponderConfig{
			DefaultProvider: "anthropic",
			TimeoutSeconds:  30,
			HistoryLimit:    10,
		},
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Enabled:      true,
				APIBase:      "https://api.anthropic.com",
				APIKey:       "${ANTHROPIC_API_KEY}",
				DefaultModel: "claude-3-5-haiku-20241022",
			},
			"openai": {
				Enabled:      false,
				APIKey:       "${OPENAI_API_KEY}",
				DefaultModel: "gpt-4o-mini",
			},
		},
		Knowledge: KnowledgeConfig{
			MatchThreshold: 0.5,
		},
		Sweeper: SweeperConfig{
			Enabled:               true,
			IntervalSeconds:       300,
			IdleAfterMinutes:      60,
			EscalatedAfterMinutes: 240,
		},
		Events: EventsConfig{
			Enabled:  false,
			Exchange: "guestdesk.events",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Host:     "127.0.0.1",
			Port:     9290,
			Endpoint: "/metrics",
		},
	}
}
