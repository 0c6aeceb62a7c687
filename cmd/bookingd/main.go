package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"booking-assistant-backend/config"
	"booking-assistant-backend/internal/api"
	"booking-assistant-backend/internal/automation"
	"booking-assistant-backend/internal/db"
	"booking-assistant-backend/internal/dispatch"
	"booking-assistant-backend/internal/llm"
	"booking-assistant-backend/internal/logging"
	"booking-assistant-backend/internal/model"
	"booking-assistant-backend/internal/mw"
	"booking-assistant-backend/internal/notification"
	"booking-assistant-backend/internal/platform"
	"booking-assistant-backend/internal/registry"
	"booking-assistant-backend/internal/store"
)

const defaultConfigPath = "./config/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "bookingd",
		Short:        "Conversational booking assistant server",
		Long:         "bookingd serves the booking chat over WebSocket and drives Calendly, Housecall Pro and OpenTable bookings.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("CONFIG_PATH")
			}
			if configPath == "" {
				configPath = defaultConfigPath
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()
			logger.Info("configuration loaded", zap.String("path", configPath))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default $CONFIG_PATH or "+defaultConfigPath+")")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	chat, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create language model client: %w", err)
	}
	if closer, ok := chat.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	logger.Info("language model ready", zap.String("provider", cfg.LLM.Provider), zap.String("model", cfg.LLM.Model))

	calendly, err := platform.NewCalendly(cfg.Platforms.Calendly, logger)
	if err != nil {
		return fmt.Errorf("failed to configure calendly: %w", err)
	}
	adapters := platform.NewRegistry(
		calendly,
		platform.NewHousecallPro(cfg.Platforms.HousecallPro, logger),
		platform.NewOpenTable(cfg.Platforms.OpenTable, logger),
	)

	agent := automation.NewRodAgent(automation.RodConfig{
		Bin:            cfg.Browser.Bin,
		Headless:       cfg.Browser.Headless,
		ElementTimeout: cfg.Browser.ElementTimeout,
	}, logger)

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	appStore := store.NewGormStore(gormDB)

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Warn("VAPID keys not configured, push notifications disabled")
	}

	statsCache := mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)

	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger)
	pool.OnRecorded(func(*model.BookingRecord) {
		statsCache.Invalidate("/api/stats/")
	})
	pool.Start(ctx)

	reg := registry.New(registry.Options{
		Agent:           agent,
		Adapters:        adapters,
		Loop:            dispatch.NewLoop(chat, cfg.Session.MaxFunctionCalls, logger),
		IdleTimeout:     cfg.Session.IdleTimeout,
		SweepInterval:   cfg.Session.SweepInterval,
		DisconnectGrace: cfg.Session.DisconnectGrace,
		QueueSize:       cfg.Session.InboundQueueSize,
		SnapshotDir:     cfg.Browser.SnapshotDir,
		OnOutcome:       pool.Dispatch,
		OnDisconnect: func(connID string) {
			n, err := appStore.DeleteSubscriptionsFor(context.Background(), connID)
			if err != nil {
				logger.Warn("failed to remove subscriptions", zap.String("conn", connID), zap.Error(err))
			} else if n > 0 {
				logger.Debug("removed subscriptions", zap.String("conn", connID), zap.Int64("count", n))
			}
		},
	}, logger)
	go reg.Run(ctx)

	handler := api.NewHandler(appStore, webpushOptions, reg, api.WSConfig{
		OriginPatterns:  cfg.Server.AllowedOrigins,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
	}, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		Cache:           statsCache,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server ListenAndServe: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping services")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	// Hijacked WebSocket connections are not tracked by Shutdown.
	reg.Shutdown()

	logger.Info("server gracefully stopped")
	return nil
}
