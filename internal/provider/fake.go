package provider

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nlxp/notify-pipeline/internal/domain"
)

// FakeEmail logs instead of sending. Used in local mode when no
// SENDGRID_API_KEY is configured.
type FakeEmail struct {
	lg zerolog.Logger
}

func NewFakeEmail(lg zerolog.Logger) *FakeEmail {
	return &FakeEmail{lg: lg.With().Str("provider", "fake-email").Logger()}
}

func (p *FakeEmail) SendEmail(_ context.Context, msg *domain.EmailMessage) (*SendResult, error) {
	p.lg.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("fake email send")
	return &SendResult{MessageID: "fake-" + uuid.NewString(), StatusCode: 202}, nil
}

func (p *FakeEmail) Name() string { return "fake-email" }

// FakePush logs instead of sending.
type FakePush struct {
	lg zerolog.Logger
}

func NewFakePush(lg zerolog.Logger) *FakePush {
	return &FakePush{lg: lg.With().Str("provider", "fake-push").Logger()}
}

func (p *FakePush) SendPush(_ context.Context, msg *domain.PushMessage) (*SendResult, error) {
	p.lg.Info().
		Str("target", msg.Target).
		Str("title", msg.Title).
		Msg("fake push send")
	return &SendResult{MessageID: "fake-" + uuid.NewString(), StatusCode: 200}, nil
}

func (p *FakePush) Name() string { return "fake-push" }
