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

	"github.com/spf13/cobra"
	pkglog "github.com/weiawesome/wes-io-live/peer-relay/pkg/log"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/directory"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/handler"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/kafka"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/service"
)

func main() {
	var configFile string

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Presence and signaling relay for peer chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	root.Flags().StringVarP(&configFile, "config", "c", "", "path to a relay.yaml config file")

	if err := root.Execute(); err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("relay-service failed")
	}
}

func run(configFile string) error {
	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "relay-service"})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting relay-service")

	// Create presence directory
	dir, err := directory.New(cfg.Directory)
	if err != nil {
		return fmt.Errorf("create %s directory: %w", cfg.Directory.Driver, err)
	}
	defer dir.Close()
	logger.Info().Str("driver", cfg.Directory.Driver).Msg("directory ready")

	// Optional Kafka producer for presence events
	var producer kafka.PresenceEventProducer
	if cfg.Kafka.Enabled {
		kp, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, presence events disabled")
		} else {
			producer = kp
			defer kp.Close()
			logger.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka producer started")
		}
	}

	// Create hub
	h := hub.NewHub(cfg.WebSocket)
	go h.Run()

	// Create service
	svc := service.NewRelayService(h, dir, producer, service.Options{
		ActivityWindow: cfg.Presence.ActivityWindow,
		PruneInterval:  cfg.Presence.PruneInterval,
		Retention:      cfg.Directory.Retention,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start relay service: %w", err)
	}

	// Setup routes
	router := handler.NewRouter(handler.NewWSHandler(h, svc), handler.NewHTTPHandler(h), logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("relay-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down relay-service")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		cancel() // 1. stop directory pruning
		svc.Stop()

		h.Stop() // 2. close all control connections, stop Hub.Run()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("relay-service stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
	return nil
}
