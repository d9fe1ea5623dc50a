package sweeper

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
)

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAck) Reject(_ uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	deliveries []amqp.Delivery
	published  []published
	publishErr error
}

func (f *fakeChannel) QueueDeclarePassive(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: name, Messages: len(f.deliveries)}, nil
}

func (f *fakeChannel) Get(string, bool) (amqp.Delivery, bool, error) {
	if len(f.deliveries) == 0 {
		return amqp.Delivery{}, false, nil
	}
	d := f.deliveries[0]
	f.deliveries = f.deliveries[1:]
	return d, true, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange, key, msg})
	return nil
}

func deadLetter(routingKey string, retryCount int) (amqp.Delivery, *fakeAck) {
	ack := &fakeAck{}
	return amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   routingKey,
		Body:         []byte(`{"notification_id":"sub-1"}`),
		Headers: amqp.Table{
			rabbitmq.HeaderRetryCount: int32(retryCount),
			rabbitmq.HeaderLastError:  "status 500",
			rabbitmq.HeaderFailedTime: time.Now().Unix(),
		},
	}, ack
}

func newSweeper(ch Channel) *Sweeper {
	return New(ch, 5, time.Minute, zerolog.Nop())
}

func TestRequeueUnderBudget(t *testing.T) {
	d, ack := deadLetter(rabbitmq.DLXRouteEmail, 2)
	ch := &fakeChannel{deliveries: []amqp.Delivery{d}}

	require.NoError(t, newSweeper(ch).SweepOnce(context.Background()))

	require.True(t, ack.acked)
	require.Len(t, ch.published, 1)
	p := ch.published[0]
	require.Equal(t, rabbitmq.ExchangeMain, p.exchange)
	require.Equal(t, rabbitmq.RouteEmail, p.key)
	require.Equal(t, int32(3), p.msg.Headers[rabbitmq.HeaderRetryCount])
	require.Equal(t, d.Body, p.msg.Body)
	require.Equal(t, amqp.Persistent, p.msg.DeliveryMode)
}

func TestParkAtBudget(t *testing.T) {
	d, ack := deadLetter(rabbitmq.DLXRoutePush, 5)
	ch := &fakeChannel{deliveries: []amqp.Delivery{d}}

	require.NoError(t, newSweeper(ch).SweepOnce(context.Background()))

	require.True(t, ack.acked)
	require.Len(t, ch.published, 1)
	p := ch.published[0]
	require.Equal(t, "", p.exchange)
	require.Equal(t, rabbitmq.QueuePushDLQ, p.key)
	require.Equal(t, int32(5), p.msg.Headers[rabbitmq.HeaderRetryCount])
	require.NotEmpty(t, p.msg.Headers[rabbitmq.HeaderFinalFailureTime])
}

func TestChannelProvenanceMapsDLQ(t *testing.T) {
	email, _ := deadLetter(rabbitmq.DLXRouteEmail, 9)
	push, _ := deadLetter(rabbitmq.DLXRoutePush, 9)
	ch := &fakeChannel{deliveries: []amqp.Delivery{email, push}}

	require.NoError(t, newSweeper(ch).SweepOnce(context.Background()))

	require.Len(t, ch.published, 2)
	require.Equal(t, rabbitmq.QueueEmailDLQ, ch.published[0].key)
	require.Equal(t, rabbitmq.QueuePushDLQ, ch.published[1].key)
}

func TestMissingRetryHeaderCountsAsZero(t *testing.T) {
	ack := &fakeAck{}
	d := amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   rabbitmq.DLXRouteEmail,
		Body:         []byte(`{}`),
	}
	ch := &fakeChannel{deliveries: []amqp.Delivery{d}}

	require.NoError(t, newSweeper(ch).SweepOnce(context.Background()))

	require.True(t, ack.acked)
	require.Len(t, ch.published, 1)
	require.Equal(t, rabbitmq.RouteEmail, ch.published[0].key)
	require.Equal(t, int32(1), ch.published[0].msg.Headers[rabbitmq.HeaderRetryCount])
}

func TestUnroutableDeadLetterIsDropped(t *testing.T) {
	ack := &fakeAck{}
	d := amqp.Delivery{Acknowledger: ack, RoutingKey: "sms", Body: []byte(`{}`)}
	ch := &fakeChannel{deliveries: []amqp.Delivery{d}}

	require.NoError(t, newSweeper(ch).SweepOnce(context.Background()))

	require.True(t, ack.acked)
	require.Empty(t, ch.published)
}

func TestPublishFailureRequeues(t *testing.T) {
	d, ack := deadLetter(rabbitmq.DLXRouteEmail, 1)
	ch := &fakeChannel{deliveries: []amqp.Delivery{d}, publishErr: context.DeadlineExceeded}

	require.NoError(t, newSweeper(ch).SweepOnce(context.Background()))

	require.False(t, ack.acked)
	require.True(t, ack.nacked)
	require.True(t, ack.requeue)
}

func TestEmptyQueueIsNoop(t *testing.T) {
	ch := &fakeChannel{}
	require.NoError(t, newSweeper(ch).SweepOnce(context.Background()))
	require.Empty(t, ch.published)
}

func TestSweepBoundedBySnapshot(t *testing.T) {
	// Two messages at entry; the pass must stop after two Gets even
	// though requeue publishes could (on a real broker) flow back.
	d1, a1 := deadLetter(rabbitmq.DLXRouteEmail, 0)
	d2, a2 := deadLetter(rabbitmq.DLXRouteEmail, 0)
	ch := &fakeChannel{deliveries: []amqp.Delivery{d1, d2}}

	require.NoError(t, newSweeper(ch).SweepOnce(context.Background()))
	require.True(t, a1.acked)
	require.True(t, a2.acked)
	require.Len(t, ch.published, 2)
}
