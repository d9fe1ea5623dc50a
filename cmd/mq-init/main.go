// mq-init declares the broker topology and exits. Deployments run it as
// an init container so the long-lived services never race each other on
// first boot.
package main

import (
	"fmt"
	"os"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nlxp/notify-pipeline/internal/config"
	"github.com/nlxp/notify-pipeline/internal/logger"
	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
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
	log := logger.Logger.With().Str("service", "notify-mq-init").Logger()

	conn, err := amqp.Dial(cfg.BrokerURL)
	if err != nil {
		log.Fatal().Err(err).Msg("broker dial failed")
	}
	defer conn.Close()

	topo, err := rabbitmq.NewTopology(conn, log)
	if err != nil {
		log.Fatal().Err(err).Msg("topology channel failed")
	}
	defer topo.Close()

	if err := topo.Init(); err != nil {
		log.Fatal().Err(err).Msg("broker topology init failed")
	}
	log.Info().Msg("topology ready")
}
