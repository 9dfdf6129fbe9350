package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var (
	// ErrUnavailable wraps every failure surfaced by Guarded so callers can
	// switch to vector-less operation with one errors.Is check.
	ErrUnavailable = errors.New("embedding unavailable")

	// ErrNoTerms is returned for text with nothing to embed.
	ErrNoTerms = errors.New("no embeddable terms")
)

// Guarded protects a provider with a per-call timeout, a rate limiter and a
// circuit breaker. It never blocks longer than the timeout.
type Guarded struct {
	inner   Embedder
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
}

// NewGuarded wraps inner. Zero option values select defaults: 5s timeout,
// no rate limit, breaker opening after 3 failures for 30s.
func NewGuarded(inner Embedder, opts Options, log *slog.Logger) *Guarded {
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	openFor := opts.BreakerTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	g := &Guarded{
		inner:   inner,
		timeout: timeout,
		log:     log,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoTerms)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("embedding circuit state changed", "from", from.String(), "to", to.String())
		},
	})
	return g
}

// Embed calls the provider. Any failure is wrapped in ErrUnavailable.
func (g *Guarded) Embed(ctx context.Context, text string) (Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit: %v", ErrUnavailable, err)
		}
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	vec, _ := out.(Vector)
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrUnavailable)
	}
	return vec, nil
}

func (g *Guarded) Dims() int { return g.inner.Dims() }

// State reports the circuit breaker state ("closed", "half-open", "open").
func (g *Guarded) State() string { return g.breaker.State().String() }
