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
	"github.com/nlxp/notify-pipeline/internal/router"
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
		Str("service", "notify-router").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initTopology(cfg.BrokerURL); err != nil {
		log.Fatal().Err(err).Msg("broker topology init failed")
	}

	pub, err := rabbitmq.NewPublisher(cfg.BrokerURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("publisher init failed")
	}
	defer pub.Close()

	consumer, err := rabbitmq.NewConsumer(cfg.BrokerURL, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("consumer init failed")
	}
	defer consumer.Close()

	deliveries, err := consumer.Consume(rabbitmq.QueueIngress, "notify-router")
	if err != nil {
		log.Fatal().Err(err).Msg("consume failed")
	}

	healthSrv := health.NewServer(cfg.HealthPort, nil)
	go func() {
		log.Info().Int("port", cfg.HealthPort).Msg("health server starting")
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server crashed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("queue", rabbitmq.QueueIngress).Msg("router consuming")
		errCh <- router.NewWorker(pub, log).Run(rootCtx, deliveries)
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("router stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}

func initTopology(url string) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	defer conn.Close()

	topo, err := rabbitmq.NewTopology(conn, logger.Logger)
	if err != nil {
		return err
	}
	defer topo.Close()
	return topo.Init()
}
