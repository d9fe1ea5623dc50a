package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nlxp/notify-pipeline/internal/domain"
)

const fcmURL = "https://fcm.googleapis.com/fcm/send"

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmMessage struct {
	To           string          `json:"to"`
	Notification fcmNotification `json:"notification"`
	Data         map[string]any  `json:"data,omitempty"`
}

type fcmResponse struct {
	MulticastID int64 `json:"multicast_id"`
	Success     int   `json:"success"`
	Failure     int   `json:"failure"`
	Results     []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// FCM sends push notifications via the FCM legacy HTTP API.
type FCM struct {
	serverKey string
	url       string
	client    *http.Client
}

func NewFCM(serverKey string) (*FCM, error) {
	if serverKey == "" {
		return nil, fmt.Errorf("FCM_SERVER_KEY is required")
	}
	return &FCM{
		serverKey: serverKey,
		url:       fcmURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *FCM) SendPush(ctx context.Context, msg *domain.PushMessage) (*SendResult, error) {
	payload := fcmMessage{
		To:           msg.Target,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.Wrap(domain.KindProviderTerminal, "marshal FCM message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, domain.Wrap(domain.KindProviderTerminal, "build FCM request", err)
	}
	req.Header.Set("Authorization", "key="+p.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindProviderTransient, "FCM unreachable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.E(classifyStatus(resp.StatusCode),
			fmt.Sprintf("FCM API error: status %d, body: %s", resp.StatusCode, string(body)))
	}

	// FCM returns 200 even for per-token failures; inspect the result.
	var fr fcmResponse
	if err := json.Unmarshal(body, &fr); err == nil && len(fr.Results) > 0 {
		r := fr.Results[0]
		if r.Error != "" {
			kind := domain.KindProviderTransient
			switch r.Error {
			case "InvalidRegistration", "NotRegistered", "MismatchSenderId":
				kind = domain.KindProviderTerminal
			}
			return nil, domain.E(kind, "FCM rejected message: "+r.Error)
		}
		return &SendResult{MessageID: r.MessageID, StatusCode: resp.StatusCode}, nil
	}

	return &SendResult{
		MessageID:  strconv.FormatInt(fr.MulticastID, 10),
		StatusCode: resp.StatusCode,
	}, nil
}

func (p *FCM) Name() string {
	return "fcm"
}
