package worker

import (
	"context"
	"encoding/json"

	"github.com/nlxp/notify-pipeline/internal/audit"
	"github.com/nlxp/notify-pipeline/internal/domain"
	"github.com/nlxp/notify-pipeline/internal/provider"
)

// EmailHandler delivers email.queue payloads through an email provider.
type EmailHandler struct {
	provider provider.EmailProvider
}

func NewEmailHandler(p provider.EmailProvider) *EmailHandler {
	return &EmailHandler{provider: p}
}

func (h *EmailHandler) Channel() domain.Channel { return domain.ChannelEmail }

func (h *EmailHandler) Deliver(ctx context.Context, body []byte) (*audit.Attempt, error) {
	var msg domain.EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, domain.Wrap(domain.KindValidation, "malformed email payload", err)
	}

	attempt := &audit.Attempt{
		Channel:        domain.ChannelEmail,
		NotificationID: msg.NotificationID,
		UserID:         msg.UserID,
		Recipient:      msg.To,
		Subject:        msg.Subject,
		TemplateKey:    msg.TemplateID,
	}

	if msg.To == "" {
		return attempt, domain.E(domain.KindValidation, "email payload has no recipient")
	}

	res, err := h.provider.SendEmail(ctx, &msg)
	if err != nil {
		return attempt, err
	}
	attempt.ProviderMsgID = res.MessageID
	attempt.ProviderStatus = res.StatusCode
	return attempt, nil
}
