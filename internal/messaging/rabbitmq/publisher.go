package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nlxp/notify-pipeline/internal/domain"
)

// Wait window for Return / Confirm after a publish.
const publishWait = 150 * time.Millisecond

// Publisher owns one connection and one confirm-mode channel. Each
// concurrency domain constructs its own Publisher; they are never shared.
type Publisher struct {
	url string
	lg  zerolog.Logger

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewPublisher(url string, lg zerolog.Logger) (*Publisher, error) {
	p := &Publisher{
		url: url,
		lg:  lg.With().Str("component", "publisher").Logger(),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.ch = ch
	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// PublishJSON publishes a persistent JSON message and waits for the broker
// confirm. A failed publish is retried once on a fresh connection before
// surfacing BROKER_UNAVAILABLE; retry ownership beyond that belongs to the
// sweeper, never to callers.
func (p *Publisher) PublishJSON(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.publishLocked(ctx, exchange, routingKey, body, headers)
	if err == nil {
		return nil
	}

	p.lg.Warn().Err(err).Str("routing_key", routingKey).Msg("publish failed; reconnecting for one retry")
	p.closeLocked()
	if cerr := p.connect(); cerr != nil {
		return domain.Wrap(domain.KindBrokerUnavailable, "broker reconnect failed", cerr)
	}
	if err = p.publishLocked(ctx, exchange, routingKey, body, headers); err != nil {
		return domain.Wrap(domain.KindBrokerUnavailable, "publish failed after retry", err)
	}
	return nil
}

func (p *Publisher) publishLocked(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	if p.ch == nil {
		return errors.New("publisher channel not ready")
	}

	err := p.ch.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return err
	}

	select {
	case ret := <-p.returnCh:
		return errors.New("NO_ROUTE: " + ret.RoutingKey)
	case conf := <-p.confirmCh:
		if !conf.Ack {
			return errors.New("publish nack from broker")
		}
		return nil
	case <-time.After(publishWait):
		// Best-effort window; absent a return or confirm, treat the
		// publish as accepted.
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
