package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nlxp/notify-pipeline/internal/domain"
)

func TestRenderBareResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/templates/render", r.URL.Path)

		var req struct {
			TemplateKey string         `json:"template_key"`
			MessageData map[string]any `json:"message_data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "welcome_email", req.TemplateKey)
		require.Equal(t, "Ada", req.MessageData["name"])

		_, _ = w.Write([]byte(`{"subject":"Welcome","body":"Hello Ada","html_body":"<p>Hello Ada</p>"}`))
	}))
	defer srv.Close()

	c := NewTemplateClient(srv.URL, "", time.Second, zerolog.Nop())
	r, err := c.Render(context.Background(), "welcome_email", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	require.Equal(t, "Welcome", r.Subject)
	require.Equal(t, "Hello Ada", r.BodyText)
	require.Equal(t, "<p>Hello Ada</p>", r.BodyHTML)
}

func TestRenderWrappedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"subject":"S","body":"B","html_body":"<h>"}}`))
	}))
	defer srv.Close()

	c := NewTemplateClient(srv.URL, "", time.Second, zerolog.Nop())
	r, err := c.Render(context.Background(), "welcome_email", nil)
	require.NoError(t, err)
	require.Equal(t, "S", r.Subject)
	require.Equal(t, "B", r.BodyText)
}

func TestRenderTemplateNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"unknown template"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewTemplateClient(srv.URL, "", time.Second, zerolog.Nop())
	_, err := c.Render(context.Background(), "nope", nil)
	require.Equal(t, domain.KindTemplateNotFound, domain.KindOf(err))
}

func TestRenderMissingDataDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"missing required key: name"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewTemplateClient(srv.URL, "", time.Second, zerolog.Nop())
	_, err := c.Render(context.Background(), "welcome_email", map[string]any{})
	require.Equal(t, domain.KindMissingData, domain.KindOf(err))
	require.Contains(t, err.Error(), "missing required key: name")
}

func TestRenderEmptySubjectIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"subject":"","body":""}`))
	}))
	defer srv.Close()

	c := NewTemplateClient(srv.URL, "", time.Second, zerolog.Nop())
	_, err := c.Render(context.Background(), "welcome_email", nil)
	require.Equal(t, domain.KindTransport, domain.KindOf(err))
}

func TestRenderEmptyKey(t *testing.T) {
	c := NewTemplateClient("http://localhost:0", "", time.Second, zerolog.Nop())
	_, err := c.Render(context.Background(), "", nil)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
}
