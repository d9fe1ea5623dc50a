package worker

import (
	"context"
	"encoding/json"

	"github.com/nlxp/notify-pipeline/internal/audit"
	"github.com/nlxp/notify-pipeline/internal/domain"
	"github.com/nlxp/notify-pipeline/internal/provider"
)

// PushHandler delivers push.queue payloads through a push provider.
type PushHandler struct {
	provider provider.PushProvider
}

func NewPushHandler(p provider.PushProvider) *PushHandler {
	return &PushHandler{provider: p}
}

func (h *PushHandler) Channel() domain.Channel { return domain.ChannelPush }

func (h *PushHandler) Deliver(ctx context.Context, body []byte) (*audit.Attempt, error) {
	var msg domain.PushMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, domain.Wrap(domain.KindValidation, "malformed push payload", err)
	}

	attempt := &audit.Attempt{
		Channel:        domain.ChannelPush,
		NotificationID: msg.NotificationID,
		UserID:         msg.UserID,
		Recipient:      msg.Target,
		Subject:        msg.Title,
	}

	if msg.Target == "" {
		return attempt, domain.E(domain.KindValidation, "push payload has no target")
	}

	res, err := h.provider.SendPush(ctx, &msg)
	if err != nil {
		return attempt, err
	}
	attempt.ProviderMsgID = res.MessageID
	attempt.ProviderStatus = res.StatusCode
	return attempt, nil
}
