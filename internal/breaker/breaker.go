// Package breaker wraps sony/gobreaker with the pipeline's error taxonomy.
// One breaker guards each remote capability; it opens after a configured
// count of consecutive connection-class failures and allows a single probe
// after the reset timeout.
package breaker

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/nlxp/notify-pipeline/internal/domain"
)

const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 60 * time.Second
)

type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a breaker that trips after maxFailures consecutive failures
// and stays open for resetTimeout before the half-open probe.
func New(name string, maxFailures uint32, resetTimeout time.Duration, lg zerolog.Logger) *Breaker {
	if maxFailures == 0 {
		maxFailures = DefaultMaxFailures
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // single half-open probe
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn under the breaker. Only errors returned by fn count
// toward the failure budget; callers exclude well-formed upstream error
// responses by returning them as values, not errors. When the circuit is
// open the call fails fast with KindCircuitOpen and fn is never invoked.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.Wrap(domain.KindCircuitOpen, b.cb.Name()+": circuit open", err)
		}
		return nil, err
	}
	return res, nil
}

// State exposes the underlying breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
