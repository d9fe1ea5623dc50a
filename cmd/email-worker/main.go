package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nlxp/notify-pipeline/internal/audit"
	"github.com/nlxp/notify-pipeline/internal/config"
	"github.com/nlxp/notify-pipeline/internal/health"
	"github.com/nlxp/notify-pipeline/internal/logger"
	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
	"github.com/nlxp/notify-pipeline/internal/provider"
	"github.com/nlxp/notify-pipeline/internal/worker"
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
		Str("service", "notify-email-worker").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initTopology(cfg.BrokerURL); err != nil {
		log.Fatal().Err(err).Msg("broker topology init failed")
	}

	// ---- Provider ----
	var emailProvider provider.EmailProvider
	if cfg.SendGridAPIKey != "" {
		emailProvider, err = provider.NewSendGrid(cfg.SendGridAPIKey, cfg.FromEmail, cfg.FromName)
		if err != nil {
			log.Fatal().Err(err).Msg("sendgrid init failed")
		}
	} else {
		log.Warn().Msg("SENDGRID_API_KEY not set; using fake email provider")
		emailProvider = provider.NewFakeEmail(log)
	}
	log.Info().Str("provider", emailProvider.Name()).Msg("email provider ready")

	// ---- Audit store (optional) ----
	audits, closeAudit, err := newAuditStore(rootCtx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("audit store init failed")
	}
	defer closeAudit()

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

	deliveries, err := consumer.Consume(rabbitmq.QueueEmail, "notify-email-worker")
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
		log.Info().Str("queue", rabbitmq.QueueEmail).Msg("email worker consuming")
		w := worker.New(worker.NewEmailHandler(emailProvider), pub, audits, log)
		errCh <- w.Run(rootCtx, deliveries)
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("email worker stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}

func newAuditStore(ctx context.Context, dsn string, log zerolog.Logger) (audit.Store, func(), error) {
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set; audit logging disabled")
		return audit.Noop{}, func() {}, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	store := audit.NewPostgresStore(pool)
	if err := store.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
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
