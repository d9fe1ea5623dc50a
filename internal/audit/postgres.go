package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nlxp/notify-pipeline/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS email_notifications_log (
	id BIGSERIAL PRIMARY KEY,
	notification_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	recipient TEXT NOT NULL,
	subject TEXT,
	template_key TEXT,
	status TEXT NOT NULL,
	provider_message_id TEXT,
	provider_status_code INT,
	retry_count INT NOT NULL DEFAULT 0,
	error_message TEXT,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at TIMESTAMPTZ,
	failed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_email_log_notification_id ON email_notifications_log (notification_id);

CREATE TABLE IF NOT EXISTS push_notifications_log (
	id BIGSERIAL PRIMARY KEY,
	notification_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	recipient TEXT NOT NULL,
	subject TEXT,
	template_key TEXT,
	status TEXT NOT NULL,
	provider_message_id TEXT,
	provider_status_code INT,
	retry_count INT NOT NULL DEFAULT 0,
	error_message TEXT,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	sent_at TIMESTAMPTZ,
	failed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_push_log_notification_id ON push_notifications_log (notification_id);
`

// PostgresStore writes one audit row per delivery attempt, split into
// per-channel tables so retention policies can differ.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateSchema bootstraps the audit tables. Safe to run on every start.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, a *Attempt) error {
	table, err := tableFor(a.Channel)
	if err != nil {
		return err
	}

	var meta []byte
	if a.Metadata != nil {
		meta, err = json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	sql := fmt.Sprintf(`INSERT INTO %s
		(notification_id, user_id, recipient, subject, template_key, status,
		 provider_message_id, provider_status_code, retry_count, error_message,
		 metadata, sent_at, failed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`, table)

	_, err = s.pool.Exec(ctx, sql,
		a.NotificationID, a.UserID, a.Recipient, a.Subject, a.TemplateKey,
		a.Status, a.ProviderMsgID, a.ProviderStatus, a.RetryCount,
		a.ErrorMessage, meta, a.SentAt, a.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

func tableFor(ch domain.Channel) (string, error) {
	switch ch {
	case domain.ChannelEmail:
		return "email_notifications_log", nil
	case domain.ChannelPush:
		return "push_notifications_log", nil
	default:
		return "", fmt.Errorf("unknown audit channel %q", ch)
	}
}
