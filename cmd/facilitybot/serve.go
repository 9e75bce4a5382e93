package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/bot"
	"github.com/AlexJFox/FacilityLocator/internal/config"
	"github.com/AlexJFox/FacilityLocator/internal/events"
	"github.com/AlexJFox/FacilityLocator/internal/mirror"
	"github.com/AlexJFox/FacilityLocator/internal/observability"
	"github.com/AlexJFox/FacilityLocator/internal/session"
	"github.com/AlexJFox/FacilityLocator/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and serve facility commands",
		Long: `Start the bot: open the database, connect to the Discord gateway,
register the slash commands and serve interactions until SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "facilitybot.yaml",
		"Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(nil)
	guildLog := observability.NewGuildLog(cfg.Logging.GuildLogCapacity)

	store, err := storage.Open(cfg.Database.Path, metrics)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	bus := events.NewBus(logger)
	sessions := session.NewManager(session.ManagerConfig{
		Store:           store,
		Bus:             bus,
		Logger:          logger,
		Metrics:         metrics,
		SessionTimeout:  cfg.Session.Timeout,
		CreateQuota:     cfg.Session.CreateQuota,
		CreateCooldown:  cfg.Session.CreateCooldown,
		CommandCooldown: cfg.Session.CommandCooldown,
	})

	m := mirror.New(store, nil, logger)
	bus.Subscribe(m.HandleEvent)

	b, err := bot.New(*cfg, store, sessions, m, guildLog, metrics, logger)
	if err != nil {
		return err
	}
	m.SetPoster(b.Poster())
	b.SubscribeEvents(bus)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Stop()

	go sessions.Run(ctx)
	go b.Run(ctx)

	sched := cron.New()
	if err := m.Schedule(sched, cfg.Mirror.ReconcileSchedule); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	logger.Info("facilitybot running")
	<-ctx.Done()
	logger.Info("shutting down")

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}
