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
	"github.com/redis/go-redis/v9"

	"github.com/nlxp/notify-pipeline/internal/client"
	"github.com/nlxp/notify-pipeline/internal/config"
	"github.com/nlxp/notify-pipeline/internal/idempotency"
	"github.com/nlxp/notify-pipeline/internal/logger"
	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
	"github.com/nlxp/notify-pipeline/internal/service"
	"github.com/nlxp/notify-pipeline/internal/transport/rest"
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
		Str("service", "notify-api").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Broker topology ----
	if err := initTopology(cfg.BrokerURL); err != nil {
		log.Fatal().Err(err).Msg("broker topology init failed")
	}

	// ---- Publisher ----
	pub, err := rabbitmq.NewPublisher(cfg.BrokerURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("publisher init failed")
	}
	defer pub.Close()

	// ---- Redis (idempotency, fail-open) ----
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing; idempotency fails open)")
		} else {
			log.Info().Msg("redis connected")
		}
	}
	idem := idempotency.NewRedisStore(rdb)

	// ---- Upstream clients ----
	profiles := client.NewProfileClient(cfg.ProfileServiceURL, cfg.InternalSecret, cfg.UpstreamTimeout, log)
	templates := client.NewTemplateClient(cfg.TemplateServiceURL, cfg.InternalSecret, cfg.UpstreamTimeout, log)

	// ---- Application service ----
	svc := service.NewSubmitter(profiles, templates, pub, idem, cfg.IdempotencyTTL, log)
	h := rest.NewHandler(svc)

	httpHandler := rest.NewRouter(rest.RouterDeps{Handler: h})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
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
