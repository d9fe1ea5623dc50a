// Package health serves liveness, readiness and metrics for the worker
// binaries, which have no API router of their own.
package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nlxp/notify-pipeline/internal/transport/rest/response"
)

// NewServer builds the sidecar HTTP server. ready is consulted on /readyz;
// nil means always ready.
func NewServer(port int, ready func() error) *http.Server {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		response.Data(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				response.Fail(w, http.StatusServiceUnavailable, "not_ready", err.Error(), "")
				return
			}
		}
		response.Data(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
