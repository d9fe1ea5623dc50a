package rabbitmq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Topology declares the pipeline's exchanges, queues and bindings. Init is
// idempotent: an existing queue with divergent arguments is passively
// accepted and logged, never redeclared (the broker would reject it).
type Topology struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	lg   zerolog.Logger
}

func NewTopology(conn *amqp.Connection, lg zerolog.Logger) (*Topology, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open topology channel: %w", err)
	}
	return &Topology{
		conn: conn,
		ch:   ch,
		lg:   lg.With().Str("component", "topology").Logger(),
	}, nil
}

func (t *Topology) Init() error {
	if err := t.ch.ExchangeDeclare(ExchangeMain, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", ExchangeMain, err)
	}
	if err := t.ch.ExchangeDeclare(ExchangeDLX, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", ExchangeDLX, err)
	}

	queues := []struct {
		name string
		args amqp.Table
	}{
		{QueueIngress, nil},
		{QueueEmail, amqp.Table{
			"x-dead-letter-exchange":    ExchangeDLX,
			"x-dead-letter-routing-key": DLXRouteEmail,
		}},
		{QueuePush, amqp.Table{
			"x-dead-letter-exchange":    ExchangeDLX,
			"x-dead-letter-routing-key": DLXRoutePush,
		}},
		{QueueFailed, amqp.Table{
			"x-message-ttl": int64(FailedQueueTTLMillis),
			"x-max-length":  int64(FailedQueueMaxLength),
		}},
		{QueueEmailDLQ, nil},
		{QueuePushDLQ, nil},
	}
	for _, q := range queues {
		if err := t.declareQueue(q.name, q.args); err != nil {
			return err
		}
	}

	bindings := []struct {
		queue, key, exchange string
	}{
		{QueueEmail, RouteEmail, ExchangeMain},
		{QueuePush, RoutePush, ExchangeMain},
		{QueueFailed, "", ExchangeDLX}, // fanout ignores the key
	}
	for _, b := range bindings {
		if err := t.ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	t.lg.Info().Msg("broker topology initialized")
	return nil
}

// declareQueue declares a durable queue. PRECONDITION_FAILED means the
// queue already exists with different arguments; the broker closes the
// channel, so we reopen one, verify the queue passively and keep going.
func (t *Topology) declareQueue(name string, args amqp.Table) error {
	_, err := t.ch.QueueDeclare(name, true, false, false, false, args)
	if err == nil {
		return nil
	}

	var ae *amqp.Error
	if !errors.As(err, &ae) || ae.Code != amqp.PreconditionFailed {
		return fmt.Errorf("declare %s: %w", name, err)
	}

	ch, cerr := t.conn.Channel()
	if cerr != nil {
		return fmt.Errorf("reopen channel after %s precondition failure: %w", name, cerr)
	}
	t.ch = ch

	if _, perr := t.ch.QueueDeclarePassive(name, true, false, false, false, nil); perr != nil {
		return fmt.Errorf("passive check %s: %w", name, perr)
	}
	t.lg.Warn().Str("queue", name).Msg("queue exists with divergent arguments; using existing")
	return nil
}

func (t *Topology) Close() error {
	if t.ch != nil {
		return t.ch.Close()
	}
	return nil
}
