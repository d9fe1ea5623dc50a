// Package sweeper drains failed.queue on an interval, requeueing messages
// with retry budget left and parking the rest on their channel DLQ. It is
// the only component that increments x-retry-count.
package sweeper

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
	"github.com/nlxp/notify-pipeline/internal/metrics"
)

// Channel is the slice of *amqp.Channel the sweeper uses.
type Channel interface {
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Sweeper struct {
	ch         Channel
	maxRetries int
	interval   time.Duration
	lg         zerolog.Logger
}

func New(ch Channel, maxRetries int, interval time.Duration, lg zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{
		ch:         ch,
		maxRetries: maxRetries,
		interval:   interval,
		lg:         lg.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps on the configured interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.lg.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepOnce drains at most the queue depth observed at entry. The snapshot
// bounds the pass: messages the sweeper itself requeues during the pass
// are not re-examined until the next tick.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	q, err := s.ch.QueueDeclarePassive(rabbitmq.QueueFailed, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if q.Messages == 0 {
		return nil
	}
	s.lg.Info().Int("depth", q.Messages).Msg("sweeping failed queue")

	for i := 0; i < q.Messages; i++ {
		d, ok, err := s.ch.Get(rabbitmq.QueueFailed, false)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.settle(ctx, d)
	}
	return nil
}

func (s *Sweeper) settle(ctx context.Context, d amqp.Delivery) {
	mainKey, dlq, ok := routeFor(d.RoutingKey)
	if !ok {
		// A message without channel provenance cannot be requeued or
		// parked anywhere meaningful.
		s.lg.Error().Str("routing_key", d.RoutingKey).Msg("unroutable dead letter; dropping")
		_ = d.Ack(false)
		return
	}

	retryCount := rabbitmq.RetryCount(d.Headers)
	if retryCount < s.maxRetries {
		headers := cloneHeaders(d.Headers)
		headers[rabbitmq.HeaderRetryCount] = int32(retryCount + 1)
		if err := s.publish(ctx, rabbitmq.ExchangeMain, mainKey, d.Body, headers); err != nil {
			s.lg.Error().Err(err).Msg("requeue publish failed")
			_ = d.Nack(false, true)
			return
		}
		metrics.SweptTotal.WithLabelValues("requeued").Inc()
		s.lg.Info().
			Str("routing_key", mainKey).
			Int("retry_count", retryCount+1).
			Msg("requeued for retry")
		_ = d.Ack(false)
		return
	}

	headers := cloneHeaders(d.Headers)
	headers[rabbitmq.HeaderFinalFailureTime] = time.Now().Unix()
	if err := s.publish(ctx, "", dlq, d.Body, headers); err != nil {
		s.lg.Error().Err(err).Msg("dlq publish failed")
		_ = d.Nack(false, true)
		return
	}
	metrics.SweptTotal.WithLabelValues("parked").Inc()
	s.lg.Warn().
		Str("dlq", dlq).
		Int("retry_count", retryCount).
		Str("last_error", rabbitmq.LastError(d.Headers)).
		Msg("retry budget exhausted; parked")
	_ = d.Ack(false)
}

func (s *Sweeper) publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	return s.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
}

// routeFor maps the DLX routing key back to the main routing key and the
// channel DLQ.
func routeFor(dlxKey string) (mainKey, dlq string, ok bool) {
	switch dlxKey {
	case rabbitmq.DLXRouteEmail:
		return rabbitmq.RouteEmail, rabbitmq.QueueEmailDLQ, true
	case rabbitmq.DLXRoutePush:
		return rabbitmq.RoutePush, rabbitmq.QueuePushDLQ, true
	}
	return "", "", false
}

func cloneHeaders(h amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range h {
		out[k] = v
	}
	return out
}
