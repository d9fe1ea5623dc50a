package worker

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nlxp/notify-pipeline/internal/audit"
	"github.com/nlxp/notify-pipeline/internal/domain"
	"github.com/nlxp/notify-pipeline/internal/messaging/rabbitmq"
	"github.com/nlxp/notify-pipeline/internal/provider"
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
	body     []byte
	headers  amqp.Table
}

type fakePublisher struct {
	published []published
	err       error
}

func (f *fakePublisher) PublishJSON(_ context.Context, exchange, key string, body []byte, headers amqp.Table) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{exchange, key, body, headers})
	return nil
}

type fakeEmailProvider struct {
	res *provider.SendResult
	err error
}

func (f *fakeEmailProvider) SendEmail(context.Context, *domain.EmailMessage) (*provider.SendResult, error) {
	return f.res, f.err
}

func (f *fakeEmailProvider) Name() string { return "fake" }

type memAudit struct {
	attempts []*audit.Attempt
}

func (m *memAudit) Record(_ context.Context, a *audit.Attempt) error {
	m.attempts = append(m.attempts, a)
	return nil
}

func emailDelivery(t *testing.T, headers amqp.Table) (amqp.Delivery, *fakeAck) {
	t.Helper()
	body, err := json.Marshal(domain.EmailMessage{
		NotificationID: "sub-1",
		UserID:         "u1",
		To:             "a@b.c",
		Subject:        "Hi",
		Content:        "<p>hello</p>",
		TemplateID:     "welcome_email",
	})
	require.NoError(t, err)
	ack := &fakeAck{}
	return amqp.Delivery{Acknowledger: ack, Body: body, Headers: headers}, ack
}

func TestSuccessfulDeliveryAcks(t *testing.T) {
	pub := &fakePublisher{}
	audits := &memAudit{}
	w := New(NewEmailHandler(&fakeEmailProvider{res: &provider.SendResult{MessageID: "sg-1", StatusCode: 202}}), pub, audits, zerolog.Nop())

	d, ack := emailDelivery(t, nil)
	w.Handle(context.Background(), d)

	require.True(t, ack.acked)
	require.Empty(t, pub.published)

	require.Len(t, audits.attempts, 1)
	a := audits.attempts[0]
	require.Equal(t, "sent", a.Status)
	require.Equal(t, "sub-1", a.NotificationID)
	require.Equal(t, "a@b.c", a.Recipient)
	require.Equal(t, "sg-1", a.ProviderMsgID)
	require.Equal(t, 202, a.ProviderStatus)
	require.NotNil(t, a.SentAt)
}

func TestTransientFailureDeadLetters(t *testing.T) {
	pub := &fakePublisher{}
	audits := &memAudit{}
	w := New(NewEmailHandler(&fakeEmailProvider{err: domain.E(domain.KindProviderTransient, "SendGrid API error: status 500")}), pub, audits, zerolog.Nop())

	d, ack := emailDelivery(t, amqp.Table{rabbitmq.HeaderRetryCount: int32(2)})
	w.Handle(context.Background(), d)

	require.True(t, ack.acked, "dead-lettered message must still be acked")
	require.Len(t, pub.published, 1)

	p := pub.published[0]
	require.Equal(t, rabbitmq.ExchangeDLX, p.exchange)
	require.Equal(t, rabbitmq.DLXRouteEmail, p.key)
	require.Equal(t, d.Body, p.body, "original payload must be preserved")
	require.Equal(t, int32(2), p.headers[rabbitmq.HeaderRetryCount], "worker preserves the count; sweeper increments")
	lastErr, ok := p.headers[rabbitmq.HeaderLastError].(string)
	require.True(t, ok)
	require.Contains(t, lastErr, "status 500")
	require.NotEmpty(t, p.headers[rabbitmq.HeaderFailedTime])

	require.Len(t, audits.attempts, 1)
	require.Equal(t, "failed", audits.attempts[0].Status)
	require.Equal(t, 2, audits.attempts[0].RetryCount)
	require.NotNil(t, audits.attempts[0].FailedAt)
}

func TestTerminalFailureAlsoDeadLetters(t *testing.T) {
	pub := &fakePublisher{}
	w := New(NewEmailHandler(&fakeEmailProvider{err: domain.E(domain.KindProviderTerminal, "status 400")}), pub, &memAudit{}, zerolog.Nop())

	d, ack := emailDelivery(t, nil)
	w.Handle(context.Background(), d)

	require.True(t, ack.acked)
	require.Len(t, pub.published, 1)
	require.Equal(t, rabbitmq.ExchangeDLX, pub.published[0].exchange)
	require.Equal(t, int32(0), pub.published[0].headers[rabbitmq.HeaderRetryCount])
}

func TestMalformedPayloadDeadLetters(t *testing.T) {
	pub := &fakePublisher{}
	w := New(NewEmailHandler(&fakeEmailProvider{}), pub, &memAudit{}, zerolog.Nop())

	ack := &fakeAck{}
	w.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{broken`)})

	require.True(t, ack.acked)
	require.Len(t, pub.published, 1)
	p := pub.published[0]
	require.Equal(t, rabbitmq.ExchangeDLX, p.exchange)
	require.Equal(t, rabbitmq.DLXRouteEmail, p.key)
	require.Equal(t, []byte(`{broken`), p.body)
}

func TestMissingRecipientDeadLetters(t *testing.T) {
	pub := &fakePublisher{}
	w := New(NewEmailHandler(&fakeEmailProvider{}), pub, &memAudit{}, zerolog.Nop())

	body, _ := json.Marshal(domain.EmailMessage{NotificationID: "sub-1", UserID: "u1"})
	ack := &fakeAck{}
	w.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body})

	require.True(t, ack.acked)
	require.Len(t, pub.published, 1)
	require.Equal(t, rabbitmq.ExchangeDLX, pub.published[0].exchange)
}

func TestDeadLetterPublishFailureRequeues(t *testing.T) {
	pub := &fakePublisher{err: domain.E(domain.KindBrokerUnavailable, "publish failed after retry")}
	w := New(NewEmailHandler(&fakeEmailProvider{err: domain.E(domain.KindProviderTransient, "timeout")}), pub, &memAudit{}, zerolog.Nop())

	d, ack := emailDelivery(t, nil)
	w.Handle(context.Background(), d)

	require.False(t, ack.acked)
	require.True(t, ack.nacked)
	require.True(t, ack.requeue, "must not lose the message when the DLX is unreachable")
}

func TestLongErrorTruncatedInHeader(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	pub := &fakePublisher{}
	w := New(NewEmailHandler(&fakeEmailProvider{err: domain.E(domain.KindProviderTransient, string(long))}), pub, &memAudit{}, zerolog.Nop())

	d, _ := emailDelivery(t, nil)
	w.Handle(context.Background(), d)

	require.Len(t, pub.published, 1)
	lastErr, ok := pub.published[0].headers[rabbitmq.HeaderLastError].(string)
	require.True(t, ok)
	require.Len(t, lastErr, 500)
}

func TestPushHandlerDeadLetterRouting(t *testing.T) {
	pub := &fakePublisher{}
	w := New(NewPushHandler(&failingPushProvider{}), pub, &memAudit{}, zerolog.Nop())

	body, _ := json.Marshal(domain.PushMessage{NotificationID: "sub-1", UserID: "u1", Target: "tok-1", Title: "Hi"})
	ack := &fakeAck{}
	w.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body})

	require.True(t, ack.acked)
	require.Len(t, pub.published, 1)
	require.Equal(t, rabbitmq.DLXRoutePush, pub.published[0].key)
}

type failingPushProvider struct{}

func (failingPushProvider) SendPush(context.Context, *domain.PushMessage) (*provider.SendResult, error) {
	return nil, domain.E(domain.KindProviderTransient, "FCM unreachable")
}

func (failingPushProvider) Name() string { return "failing" }
