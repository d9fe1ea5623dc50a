package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nlxp/notify-pipeline/internal/config"
	"github.com/nlxp/notify-pipeline/internal/health"
	"github.com/nlxp/notify-pipeline/internal/logger"
	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
	"github.com/nlxp/notify-pipeline/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "notify-sweeper").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := amqp.Dial(cfg.BrokerURL)
	if err != nil {
		log.Fatal().Err(err).Msg("broker dial failed")
	}
	defer conn.Close()

	topo, err := rabbitmq.NewTopology(conn, log)
	if err != nil {
		log.Fatal().Err(err).Msg("topology channel failed")
	}
	if err := topo.Init(); err != nil {
		log.Fatal().Err(err).Msg("broker topology init failed")
	}
	_ = topo.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("open channel failed")
	}
	defer ch.Close()

	healthSrv := health.NewServer(cfg.HealthPort, nil)
	go func() {
		log.Info().Int("port", cfg.HealthPort).Msg("health server starting")
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server crashed")
		}
	}()

	sw := sweeper.New(ch, cfg.MaxRetries, cfg.SweepInterval, log)
	log.Info().
		Int("max_retries", cfg.MaxRetries).
		Dur("interval", cfg.SweepInterval).
		Msg("sweeper starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- sw.Run(rootCtx)
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("sweeper stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
