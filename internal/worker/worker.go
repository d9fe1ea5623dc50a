// Package worker runs the per-channel delivery loops. A worker decodes a
// channel payload, calls the provider, and settles the delivery: ack on
// success, republish to the dead-letter exchange with retry headers on any
// failure (malformed payloads included). The retry budget lives in the
// sweeper, not here.
package worker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nlxp/notify-pipeline/internal/audit"
	"github.com/nlxp/notify-pipeline/internal/domain"
	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
	"github.com/nlxp/notify-pipeline/internal/metrics"
)

// Publisher republishes failed deliveries. Satisfied by *rabbitmq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error
}

// Handler is the channel-specific part: decode the payload and send it.
// Deliver returns a partially filled audit attempt even on failure so the
// audit row carries whatever identifiers survived decoding.
type Handler interface {
	Channel() domain.Channel
	Deliver(ctx context.Context, body []byte) (*audit.Attempt, error)
}

type Worker struct {
	handler Handler
	pub     Publisher
	audits  audit.Store
	dlxKey  string
	lg      zerolog.Logger
}

func New(handler Handler, pub Publisher, audits audit.Store, lg zerolog.Logger) *Worker {
	if audits == nil {
		audits = audit.Noop{}
	}
	w := &Worker{
		handler: handler,
		pub:     pub,
		audits:  audits,
		lg:      lg.With().Str("component", "worker").Str("channel", string(handler.Channel())).Logger(),
	}
	switch handler.Channel() {
	case domain.ChannelPush:
		w.dlxKey = rabbitmq.DLXRoutePush
	default:
		w.dlxKey = rabbitmq.DLXRouteEmail
	}
	return w
}

// Run processes deliveries until the channel closes or ctx is canceled.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.Handle(ctx, d)
		}
	}
}

// Handle settles exactly one delivery. Every path ends in Ack: the message
// is either delivered or republished to the DLX, and in each case the
// original must leave the work queue.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) {
	channel := string(w.handler.Channel())
	retryCount := rabbitmq.RetryCount(d.Headers)

	start := time.Now()
	attempt, err := w.handler.Deliver(ctx, d.Body)
	metrics.DeliveryDuration.WithLabelValues(channel).Observe(time.Since(start).Seconds())

	if attempt == nil {
		attempt = &audit.Attempt{Channel: w.handler.Channel()}
	}
	attempt.RetryCount = retryCount

	if err == nil {
		now := time.Now().UTC()
		attempt.Status = "sent"
		attempt.SentAt = &now
		w.record(ctx, attempt)
		metrics.DeliveriesTotal.WithLabelValues(channel, "sent").Inc()
		w.lg.Info().
			Str("notification_id", attempt.NotificationID).
			Int("retry_count", retryCount).
			Msg("delivered")
		_ = d.Ack(false)
		return
	}

	now := time.Now().UTC()
	attempt.Status = "failed"
	attempt.FailedAt = &now
	attempt.ErrorMessage = err.Error()
	w.record(ctx, attempt)
	metrics.DeliveriesTotal.WithLabelValues(channel, "failed").Inc()
	w.deadLetter(ctx, d, retryCount, err)
}

// deadLetter republishes the original body to the DLX for the sweeper,
// preserving the retry count (the sweeper increments it on requeue).
func (w *Worker) deadLetter(ctx context.Context, d amqp.Delivery, retryCount int, cause error) {
	headers := amqp.Table{
		rabbitmq.HeaderRetryCount: int32(retryCount),
		rabbitmq.HeaderLastError:  rabbitmq.TruncateError(cause.Error()),
		rabbitmq.HeaderFailedTime: time.Now().Unix(),
	}
	if err := w.pub.PublishJSON(ctx, rabbitmq.ExchangeDLX, w.dlxKey, d.Body, headers); err != nil {
		// Keep the message on the work queue rather than lose it.
		w.lg.Error().Err(err).Msg("dead-letter publish failed; requeueing")
		_ = d.Nack(false, true)
		return
	}
	metrics.DeadLetteredTotal.WithLabelValues(string(w.handler.Channel())).Inc()
	w.lg.Warn().Err(cause).Int("retry_count", retryCount).Msg("dead-lettered")
	_ = d.Ack(false)
}

func (w *Worker) record(ctx context.Context, a *audit.Attempt) {
	if err := w.audits.Record(ctx, a); err != nil {
		w.lg.Warn().Err(err).Msg("audit record failed")
	}
}
