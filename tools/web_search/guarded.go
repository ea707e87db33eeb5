package web_search

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/logging"
	"github.com/mohammad-safakhou/researcher/internal/telemetry"
	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
)

// ErrCircuitOpen is returned while the breaker rejects calls to a failing provider.
var ErrCircuitOpen = errors.New("search provider circuit open")

// Guarded decorates a WebSearcher with a circuit breaker and search metrics.
type Guarded struct {
	inner WebSearcher
	cb    *gobreaker.CircuitBreaker
}

func NewGuarded(inner WebSearcher, cfg config.BreakerConfig) *Guarded {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	maxHalfOpen := cfg.MaxHalfOpen
	if maxHalfOpen == 0 {
		maxHalfOpen = 1
	}

	logger := logging.Component("search")
	name := inner.Name()
	telemetry.SetBreakerState(name, gobreaker.StateClosed.String())

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: maxHalfOpen,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about provider health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			telemetry.SetBreakerState(name, to.String())
		},
	})
	return &Guarded{inner: inner, cb: cb}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.inner.Discover(ctx, q, k)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = ErrCircuitOpen
	}
	telemetry.RecordSearch(g.inner.Name(), err)
	if err != nil {
		return nil, err
	}
	results, _ := out.([]models.Result)
	return results, nil
}
