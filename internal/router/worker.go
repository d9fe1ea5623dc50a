// Package router consumes submission envelopes from the ingress queue and
// fans them out to the per-channel queues.
package router

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nlxp/notify-pipeline/internal/domain"
	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
	"github.com/nlxp/notify-pipeline/internal/metrics"
)

// Publisher publishes channel payloads. Satisfied by *rabbitmq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error
}

type Worker struct {
	pub Publisher
	lg  zerolog.Logger
}

func NewWorker(pub Publisher, lg zerolog.Logger) *Worker {
	return &Worker{
		pub: pub,
		lg:  lg.With().Str("component", "router").Logger(),
	}
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

// Handle routes one envelope. The delivery is acked only after every
// channel publish succeeds; a partial failure nacks without requeue so the
// broker does not loop a poison message (duplicate channel sends are
// acceptable, lost ones are not).
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) {
	var env domain.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		w.lg.Error().Err(err).Msg("malformed envelope; dropping")
		_ = d.Ack(false)
		return
	}

	lg := w.lg.With().
		Str("submission_id", env.Metadata.SubmissionID).
		Str("recipient_id", env.RecipientID).
		Logger()

	routes := w.routesFor(&env)
	if len(routes) == 0 {
		lg.Warn().Msg("no delivery target; envelope is a no-op")
		metrics.RouterNoopTotal.Inc()
		_ = d.Ack(false)
		return
	}

	for _, rt := range routes {
		if err := w.pub.PublishJSON(ctx, rabbitmq.ExchangeMain, rt.key, rt.body, nil); err != nil {
			lg.Error().Err(err).Str("routing_key", rt.key).Msg("channel publish failed")
			_ = d.Nack(false, false)
			return
		}
		metrics.RoutedTotal.WithLabelValues(rt.channel).Inc()
		lg.Info().Str("routing_key", rt.key).Msg("routed")
	}
	_ = d.Ack(false)
}

type route struct {
	channel string
	key     string
	body    []byte
}

func (w *Worker) routesFor(env *domain.Envelope) []route {
	var routes []route

	if env.DeliveryTargets.Email != "" {
		msg := domain.EmailMessage{
			NotificationID: env.Metadata.SubmissionID,
			UserID:         env.RecipientID,
			To:             env.DeliveryTargets.Email,
			Subject:        env.Rendered.Subject,
			Content:        firstNonEmpty(env.Rendered.BodyHTML, env.Rendered.BodyText),
			TemplateID:     env.Metadata.TemplateKey,
		}
		body, err := json.Marshal(msg)
		if err != nil {
			w.lg.Error().Err(err).Msg("marshal email payload")
		} else {
			routes = append(routes, route{channel: string(domain.ChannelEmail), key: rabbitmq.RouteEmail, body: body})
		}
	}

	// Push prefers the registered token; a phone number is the SMS-bridge
	// fallback some fleets still run.
	if target := firstNonEmpty(env.DeliveryTargets.PushToken, env.DeliveryTargets.Phone); target != "" {
		msg := domain.PushMessage{
			NotificationID: env.Metadata.SubmissionID,
			UserID:         env.RecipientID,
			Target:         target,
			Title:          env.Rendered.Subject,
			Body:           firstNonEmpty(env.Rendered.BodyText, env.Rendered.BodyHTML),
		}
		body, err := json.Marshal(msg)
		if err != nil {
			w.lg.Error().Err(err).Msg("marshal push payload")
		} else {
			routes = append(routes, route{channel: string(domain.ChannelPush), key: rabbitmq.RoutePush, body: body})
		}
	}

	return routes
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
