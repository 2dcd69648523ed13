package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"guestdesk/internal/bus"
	"guestdesk/internal/channel"
	"guestdesk/internal/config"
	"guestdesk/internal/domain"
	"guestdesk/internal/events"
	"guestdesk/internal/handoff"
	"guestdesk/internal/knowledge"
	"guestdesk/internal/metrics"
	"guestdesk/internal/notify"
	"guestdesk/internal/operator"
	"guestdesk/internal/responder"
	"guestdesk/internal/router"
	"guestdesk/internal/store"
	"guestdesk/internal/sweeper"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "guestdesk",
		Short: "GuestDesk: guest messaging desk with knowledge base and operator handoff",
		Long:  "GuestDesk routes guest messages from Telegram and WhatsApp through a knowledge base and an AI responder, escalating to human operators when needed.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.guestdesk/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(operatorCmd())
	root.AddCommand(knowledgeCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyLogLevel(cfg)
	return cfg, nil
}

func applyLogLevel(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			out = f
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// buildResponder assembles the generative responder from the provider config,
// honoring the failover chain when one is configured.
func buildResponder(cfg *config.Config) (domain.Responder, error) {
	names := cfg.Responder.FailoverChain
	if len(names) == 0 {
		names = []string{cfg.Responder.DefaultProvider}
	}

	var chain []domain.Responder
	for _, name := range names {
		pc, ok := cfg.Providers[name]
		if !ok || !pc.Enabled {
			continue
		}
		switch name {
		case "anthropic":
			chain = append(chain, responder.NewAnthropic(responder.AnthropicConfig{
				APIKey: pc.APIKey,
				Model:  pc.DefaultModel,
				Logger: logger,
			}))
		case "openai":
			chain = append(chain, responder.NewOpenAI(responder.OpenAIConfig{
				APIKey:  pc.APIKey,
				APIBase: pc.APIBase,
				Model:   pc.DefaultModel,
				Logger:  logger,
			}))
		default:
			logger.Warn("unknown responder provider, skipping", "provider", name)
		}
	}

	switch len(chain) {
	case 0:
		return nil, fmt.Errorf("no enabled responder provider (configured: %v)", names)
	case 1:
		return chain[0], nil
	default:
		return responder.NewFailover(chain, logger), nil
	}
}

func buildEvents(cfg *config.Config) events.Publisher {
	if !cfg.Events.Enabled {
		return events.Noop{}
	}
	pub, err := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Exchange, logger)
	if err != nil {
		logger.Error("event publisher unavailable, continuing without events", "err", err)
		return events.Noop{}
	}
	return pub
}

func buildClassifier(cfg *config.Config) *router.Classifier {
	classifier := router.NewClassifier()
	if cfg.Knowledge.RulesDir != "" {
		rules, err := router.LoadRules(cfg.Knowledge.RulesDir, logger)
		if err != nil {
			logger.Warn("cannot load auto-save rules", "dir", cfg.Knowledge.RulesDir, "err", err)
		} else {
			classifier.Extend(rules)
		}
	}
	return classifier
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the gateway (channels, router, sweeper)",
		Long:  "Starts all enabled channels, the message router, and the stale-conversation sweeper. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	resp, err := buildResponder(cfg)
	if err != nil {
		return err
	}
	if err := resp.Healthy(ctx); err != nil {
		logger.Warn("responder unhealthy at startup", "responder", resp.Name(), "err", err)
	}

	eventPub := buildEvents(cfg)
	defer eventPub.Close()

	matcher := knowledge.NewEngine(knowledge.EngineConfig{
		Store:     st,
		Threshold: cfg.Knowledge.MatchThreshold,
		Logger:    logger,
	})

	tracker := handoff.NewTracker()

	desk := operator.NewDesk(operator.DeskConfig{
		Store:      st,
		Bus:        messageBus,
		Tracker:    tracker,
		Classifier: buildClassifier(cfg),
		Events:     eventPub,
		Logger:     logger,
	})

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:  cfg.Channels.Telegram.Token,
			Store:  st,
			Desk:   desk,
			Logger: logger,
		})
	}

	var alerts notify.AlertSender = noAlerts{}
	if telegramCh != nil {
		alerts = telegramCh
	} else {
		logger.Warn("telegram disabled, operator alerts have nowhere to go")
	}
	dispatcher := notify.NewDispatcher(st, alerts, logger)
	if telegramCh != nil {
		telegramCh.SetDispatcher(dispatcher)
	}

	engine := router.NewEngine(router.EngineConfig{
		Store:            st,
		Matcher:          matcher,
		Responder:        resp,
		Bus:              messageBus,
		Notifier:         dispatcher,
		Events:           eventPub,
		Logger:           logger,
		Concurrency:      cfg.General.MaxConcurrentMessages,
		HistoryLimit:     cfg.Responder.HistoryLimit,
		ResponderTimeout: time.Duration(cfg.Responder.TimeoutSeconds) * time.Second,
		Greeting:         cfg.General.Greeting,
	})
	go engine.Run(ctx)

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(sweeper.Config{
			Store:          st,
			Events:         eventPub,
			Logger:         logger,
			Interval:       time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second,
			IdleAfter:      time.Duration(cfg.Sweeper.IdleAfterMinutes) * time.Minute,
			EscalatedAfter: time.Duration(cfg.Sweeper.EscalatedAfterMinutes) * time.Minute,
		})
		go sw.Run(ctx)
	}

	if telegramCh != nil {
		go func() {
			if err := telegramCh.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	var whatsappCh *channel.WhatsApp
	if cfg.Channels.WhatsApp.Enabled {
		whatsappCh = channel.NewWhatsApp(channel.WhatsAppChannelConfig{
			Config: cfg.Channels.WhatsApp,
			Logger: logger,
		})
		go func() {
			if err := whatsappCh.Start(ctx, messageBus); err != nil {
				logger.Error("whatsapp channel error", "err", err)
			}
		}()
		logger.Info("whatsapp channel enabled")
	} else {
		logger.Info("whatsapp channel disabled")
	}

	if cfg.Metrics.Enabled {
		addr := net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port))
		mux := http.NewServeMux()
		mux.HandleFunc(cfg.Metrics.Endpoint, metrics.Collector.Handler())
		metricsSrv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics enabled", "addr", addr, "endpoint", cfg.Metrics.Endpoint)
	}

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down gateway...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if telegramCh != nil {
			telegramCh.Stop()
		}
		if whatsappCh != nil {
			whatsappCh.Stop()
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

// noAlerts drops operator alerts when no alert channel is configured.
type noAlerts struct{}

func (noAlerts) SendAlert(ctx context.Context, chatID, text string, actions []notify.Action) error {
	return fmt.Errorf("no alert channel configured")
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close stale conversations once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			eventPub := buildEvents(cfg)
			defer eventPub.Close()

			sw := sweeper.New(sweeper.Config{
				Store:          st,
				Events:         eventPub,
				Logger:         logger,
				IdleAfter:      time.Duration(cfg.Sweeper.IdleAfterMinutes) * time.Minute,
				EscalatedAfter: time.Duration(cfg.Sweeper.EscalatedAfterMinutes) * time.Minute,
			})
			closed, err := sw.SweepOnce(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("closed %d stale conversation(s)\n", closed)
			return nil
		},
	}
}

func operatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage operators",
	}

	var notifyChatID string
	add := &cobra.Command{
		Use:   "add [name]",
		Short: "Register an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			op, err := st.AddOperator(context.Background(), domain.Operator{
				Name:         args[0],
				NotifyChatID: notifyChatID,
				IsActive:     true,
			})
			if err != nil {
				return err
			}
			fmt.Printf("operator #%d %q added\n", op.ID, op.Name)
			return nil
		},
	}
	add.Flags().StringVar(&notifyChatID, "chat-id", "", "Telegram chat ID for escalation alerts")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			ops, err := st.ListOperators(context.Background())
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Println("no operators registered")
				return nil
			}
			for _, op := range ops {
				state := "active"
				if !op.IsActive {
					state = "disabled"
				}
				chat := op.NotifyChatID
				if chat == "" {
					chat = "-"
				}
				fmt.Printf("#%d\t%s\t%s\tchat:%s\n", op.ID, op.Name, state, chat)
			}
			return nil
		},
	})

	cmd.AddCommand(operatorToggleCmd("disable", false))
	cmd.AddCommand(operatorToggleCmd("enable", true))

	return cmd
}

func operatorToggleCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: use + " an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid operator id: %s", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			if err := st.SetOperatorActive(context.Background(), id, active); err != nil {
				return err
			}
			fmt.Printf("operator #%d %sd\n", id, use)
			return nil
		},
	}
}

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect and manage the knowledge base",
	}

	var showAll bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List knowledge entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			entries, err := st.ListKnowledgeEntries(context.Background(), !showAll)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("knowledge base is empty")
				return nil
			}
			for _, e := range entries {
				state := "active"
				if !e.IsActive {
					state = "disabled"
				}
				fmt.Printf("#%d\t[%s, used %d]\tQ: %s\n", e.ID, state, e.TimesUsed, e.Question)
			}
			return nil
		},
	}
	list.Flags().BoolVar(&showAll, "all", false, "include disabled entries")
	cmd.AddCommand(list)

	cmd.AddCommand(knowledgeToggleCmd("disable", false))
	cmd.AddCommand(knowledgeToggleCmd("enable", true))

	return cmd
}

func knowledgeToggleCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: use + " a knowledge entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id: %s", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			if err := st.SetKnowledgeActive(context.Background(), id, active); err != nil {
				return err
			}
			fmt.Printf("knowledge entry #%d %sd\n", id, use)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			resp, err := buildResponder(cfg)
			if err != nil {
				logger.Info("responder", "configured", false, "err", err)
			} else if herr := resp.Healthy(context.Background()); herr != nil {
				logger.Info("responder", "name", resp.Name(), "healthy", false, "err", herr)
			} else {
				logger.Info("responder", "name", resp.Name(), "healthy", true)
			}

			st, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				logger.Info("store", "path", cfg.Store.DBPath, "ok", false, "err", err)
				return nil
			}
			defer st.Close()
			ops, _ := st.ListNotifiableOperators(context.Background())
			logger.Info("store", "path", cfg.Store.DBPath, "ok", true, "notifiable_operators", len(ops))
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. responder.defaultProvider)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. knowledge.matchThreshold 0.6)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
