package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibergram/internal/bus"
	"vibergram/internal/channel"
	"vibergram/internal/config"
	"vibergram/internal/forward"
	"vibergram/internal/metrics"
	"vibergram/internal/registry"
	"vibergram/internal/viber"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// Tokens may live in a .env next to the binary, like the config's
	// ${VAR} references expect.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "vibergram",
		Short: "vibergram: Telegram to Viber channel forwarder",
		Long:  "vibergram watches Telegram channels and duplicates their posts into configured Viber channels.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.vibergram/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())

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

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the forwarder",
		RunE:  runForwarder,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("vibergram " + version)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and registry summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			store, err := registry.NewStore(cfg.Storage.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			total, active, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("vibergram %s\n", version)
			fmt.Printf("config:   %s\n", resolveConfigPath())
			fmt.Printf("database: %s\n", cfg.Storage.DBPath)
			fmt.Printf("bindings: %d total, %d active\n", total, active)
			return nil
		},
	}
}

func runForwarder(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}

	logger = newLogger(cfg.General)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := registry.NewStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	postBus := bus.New(100, logger)
	defer postBus.Close()

	factory := viber.NewFactory(
		cfg.Viber.APIBase,
		time.Duration(cfg.Viber.TimeoutSeconds)*time.Second,
		logger,
	)

	telegram := channel.NewTelegram(channel.TelegramConfig{
		Token:       cfg.Telegram.Token,
		AdminChatID: cfg.Telegram.AdminChatID,
		WebhookURL:  cfg.Viber.WebhookURL,
		TestToken:   cfg.Viber.TestToken,
		Registry:    store,
		Clients:     factory.Client,
		Bus:         postBus,
		Logger:      logger,
	})

	dispatcher := forward.New(forward.Config{
		Registry:         store,
		Clients:          factory.Client,
		Notifier:         telegram,
		WebhookURL:       cfg.Viber.WebhookURL,
		MessageByteLimit: viber.MaxMessageBytes,
		Logger:           logger,
	})

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Addr)
	}

	// The forwarding loop: every post becomes one dispatch, every outcome
	// one owner-facing report. The loop drains until the bus closes.
	go func() {
		for post := range postBus.Subscribe() {
			outcomes := dispatcher.Dispatch(ctx, post)
			telegram.ReportOutcomes(post, outcomes)
		}
	}()

	logger.Info("vibergram starting", "version", version)
	return telegram.Start(ctx)
}

func newLogger(cfg config.GeneralConfig) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, using stderr", "path", cfg.LogFile, "err", err)
		} else {
			out = f
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.Collector.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "err", err)
	}
}
