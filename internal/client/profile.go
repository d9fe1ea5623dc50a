package client

import (
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

const maxUpstreamBody = 1 << 20

// upstreamResult is a well-formed HTTP response from an upstream service.
// It is returned as a value (not an error) so that 4xx/5xx responses do
// not count toward the circuit breaker's failure budget.
type upstreamResult struct {
	status int
	body   []byte
}

// ProfileClient fetches recipient profiles from the profile service,
// protected by a circuit breaker.
type ProfileClient struct {
	baseURL string
	secret  string
	http    *http.Client
	br      *breaker.Breaker
	lg      zerolog.Logger
}

func NewProfileClient(baseURL, secret string, timeout time.Duration, lg zerolog.Logger) *ProfileClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ProfileClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
		br:      breaker.New("profile-service", breaker.DefaultMaxFailures, breaker.DefaultResetTimeout, lg),
		lg:      lg.With().Str("component", "profile_client").Logger(),
	}
}

// GetProfile fetches the recipient record by id.
func (c *ProfileClient) GetProfile(ctx context.Context, recipientID string) (*domain.Profile, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, domain.E(domain.KindValidation, "empty recipient_id")
	}

	url := fmt.Sprintf("%s/v1/users/%s", c.baseURL, recipientID)
	res, err := c.br.Execute(func() (any, error) {
		return c.roundTrip(ctx, url)
	})
	if err != nil {
		// CIRCUIT_OPEN or TRANSPORT, already tagged.
		return nil, err
	}

	r := res.(*upstreamResult)
	switch {
	case r.status == http.StatusOK:
		var p domain.Profile
		if err := json.Unmarshal(r.body, &p); err != nil {
			return nil, domain.Wrap(domain.KindTransport, "profile service returned malformed body", err)
		}
		return &p, nil
	case r.status == http.StatusNotFound:
		return nil, domain.E(domain.KindNotFound, "recipient "+recipientID+" not found")
	case r.status == http.StatusUnauthorized || r.status == http.StatusForbidden:
		return nil, domain.E(domain.KindUnauthorized, "profile service rejected internal secret")
	default:
		c.lg.Error().Int("status", r.status).Msg("profile service unexpected status")
		return nil, domain.E(domain.KindTransport, fmt.Sprintf("profile service returned %d", r.status))
	}
}

func (c *ProfileClient) roundTrip(ctx context.Context, url string) (*upstreamResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "build profile request", err)
	}
	if c.secret != "" {
		req.Header.Set("X-Internal-Secret", c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransport, "profile service unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, domain.Wrap(domain.KindTransport, "read profile response", err)
	}
	return &upstreamResult{status: resp.StatusCode, body: body}, nil
}
