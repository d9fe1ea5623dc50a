// Package audit persists per-attempt delivery records. Auditing is
// best-effort: a failed insert is logged and never blocks ack/nack
// decisions on the broker.
package audit

import (
	"context"
	"time"

	"github.com/nlxp/notify-pipeline/internal/domain"
)

// Attempt is one delivery attempt on one channel.
type Attempt struct {
	Channel        domain.Channel
	NotificationID string
	UserID         string
	Recipient      string
	Subject        string
	TemplateKey    string
	Status         string // sent | failed
	ProviderMsgID  string
	ProviderStatus int
	RetryCount     int
	ErrorMessage   string
	Metadata       map[string]any
	SentAt         *time.Time
	FailedAt       *time.Time
}

// Store records delivery attempts.
type Store interface {
	Record(ctx context.Context, a *Attempt) error
}

// Noop discards audit records (local mode without a database).
type Noop struct{}

func (Noop) Record(context.Context, *Attempt) error { return nil }
