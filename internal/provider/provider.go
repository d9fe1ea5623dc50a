// Package provider wraps the outbound delivery APIs (SendGrid for email,
// FCM legacy HTTP for push). Providers classify failures as transient or
// terminal so workers can decide between the retry queue and the DLQ.
package provider

import (
	"context"

	"github.com/nlxp/notify-pipeline/internal/domain"
)

// SendResult carries the provider's acknowledgement for the audit trail.
type SendResult struct {
	MessageID  string
	StatusCode int
}

// EmailProvider defines the interface for email sending providers.
type EmailProvider interface {
	SendEmail(ctx context.Context, msg *domain.EmailMessage) (*SendResult, error)
	Name() string
}

// PushProvider defines the interface for push sending providers.
type PushProvider interface {
	SendPush(ctx context.Context, msg *domain.PushMessage) (*SendResult, error)
	Name() string
}

// classifyStatus maps a provider HTTP status to the error taxonomy:
// 4xx is terminal (the request itself is bad), everything else transient.
func classifyStatus(status int) domain.Kind {
	if status >= 400 && status < 500 {
		return domain.KindProviderTerminal
	}
	return domain.KindProviderTransient
}
