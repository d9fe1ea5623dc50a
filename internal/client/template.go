package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nlxp/notify-pipeline/internal/breaker"
	"github.com/nlxp/notify-pipeline/internal/domain"
)

// TemplateClient renders notification content via the template service,
// protected by its own circuit breaker.
type TemplateClient struct {
	baseURL string
	secret  string
	http    *http.Client
	br      *breaker.Breaker
	lg      zerolog.Logger
}

func NewTemplateClient(baseURL, secret string, timeout time.Duration, lg zerolog.Logger) *TemplateClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TemplateClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		br:      breaker.New("template-service", breaker.DefaultMaxFailures, breaker.DefaultResetTimeout, lg),
		lg:      lg.With().Str("component", "template_client").Logger(),
	}
}

type renderRequest struct {
	TemplateKey string         `json:"template_key"`
	MessageData map[string]any `json:"message_data"`
}

// renderResponse tolerates both the bare rendered triple and the
// {"success": true, "data": {...}} envelope older template services emit.
type renderResponse struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	HTMLBody string `json:"html_body"`
	Data     *struct {
		Subject  string `json:"subject"`
		Body     string `json:"body"`
		HTMLBody string `json:"html_body"`
	} `json:"data"`
}

// Render interpolates template_key with data. An unresolved placeholder is
// a MISSING_TEMPLATE_DATA error from the upstream, not a silent blank.
func (c *TemplateClient) Render(ctx context.Context, templateKey string, data map[string]any) (*domain.Rendered, error) {
	if strings.TrimSpace(templateKey) == "" {
		return nil, domain.E(domain.KindValidation, "empty template_key")
	}

	payload, err := json.Marshal(renderRequest{TemplateKey: templateKey, MessageData: data})
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "marshal render request", err)
	}

	res, err := c.br.Execute(func() (any, error) {
		return c.roundTrip(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	r := res.(*upstreamResult)
	switch {
	case r.status == http.StatusOK:
		var rr renderResponse
		if err := json.Unmarshal(r.body, &rr); err != nil {
			return nil, domain.Wrap(domain.KindTransport, "template service returned malformed body", err)
		}
		rendered := &domain.Rendered{Subject: rr.Subject, BodyText: rr.Body, BodyHTML: rr.HTMLBody}
		if rr.Data != nil {
			rendered = &domain.Rendered{Subject: rr.Data.Subject, BodyText: rr.Data.Body, BodyHTML: rr.Data.HTMLBody}
		}
		if rendered.Subject == "" {
			return nil, domain.E(domain.KindTransport, "template service returned empty subject")
		}
		return rendered, nil
	case r.status == http.StatusNotFound:
		return nil, domain.E(domain.KindTemplateNotFound, "template "+templateKey+" not found")
	case r.status == http.StatusBadRequest:
		return nil, domain.E(domain.KindMissingData, upstreamDetail(r.body, "template data missing required key"))
	case r.status == http.StatusUnauthorized || r.status == http.StatusForbidden:
		return nil, domain.E(domain.KindUnauthorized, "template service rejected internal secret")
	default:
		c.lg.Error().Int("status", r.status).Msg("template service unexpected status")
		return nil, domain.E(domain.KindTransport, fmt.Sprintf("template service returned %d", r.status))
	}
}

func (c *TemplateClient) roundTrip(ctx context.Context, payload []byte) (*upstreamResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/templates/render", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "build render request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Internal-Secret", c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransport, "template service unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, domain.Wrap(domain.KindTransport, "read render response", err)
	}
	return &upstreamResult{status: resp.StatusCode, body: body}, nil
}

// upstreamDetail pulls the human-readable detail out of an upstream error
// body, falling back to def.
func upstreamDetail(body []byte, def string) string {
	var e struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Error.Message != "" {
			return e.Error.Message
		}
	}
	return def
}
