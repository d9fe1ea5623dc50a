package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nlxp/notify-pipeline/internal/domain"
)

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

// SendGrid API structures
type sendGridPersonalization struct {
	To []sendGridEmail `json:"to"`
}

type sendGridEmail struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridMessage struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridEmail             `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SendGrid sends email via the SendGrid v3 API.
type SendGrid struct {
	apiKey   string
	from     string
	fromName string
	url      string
	client   *http.Client
}

func NewSendGrid(apiKey, from, fromName string) (*SendGrid, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("SENDGRID_API_KEY is required")
	}
	return &SendGrid{
		apiKey:   apiKey,
		from:     from,
		fromName: fromName,
		url:      sendGridURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *SendGrid) SendEmail(ctx context.Context, msg *domain.EmailMessage) (*SendResult, error) {
	payload := sendGridMessage{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridEmail{{Email: msg.To}}},
		},
		From:    sendGridEmail{Email: p.from, Name: p.fromName},
		Subject: msg.Subject,
		Content: []sendGridContent{
			{Type: "text/html", Value: msg.Content},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.Wrap(domain.KindProviderTerminal, "marshal SendGrid message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, domain.Wrap(domain.KindProviderTerminal, "build SendGrid request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindProviderTransient, "SendGrid unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.E(classifyStatus(resp.StatusCode),
			fmt.Sprintf("SendGrid API error: status %d, body: %s", resp.StatusCode, string(body)))
	}

	return &SendResult{
		MessageID:  resp.Header.Get("X-Message-Id"),
		StatusCode: resp.StatusCode,
	}, nil
}

func (p *SendGrid) Name() string {
	return "sendgrid"
}
