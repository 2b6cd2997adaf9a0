// Package ratelimit spaces out requests to the listing source.
//
// The source has no published rate limit; it answers aggressive clients with a
// bot challenge instead. A Pacer keeps the request cadence human-like by
// sleeping a random delay between consecutive requests.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Default delay bounds between two requests.
const (
	DefaultMinDelay = 3 * time.Second
	DefaultMaxDelay = 7 * time.Second
)

var pacerDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "yad2_ratelimit_delay_seconds",
	Help:    "Delay slept before a request to the listing source",
	Buckets: []float64{0.5, 1, 2, 3, 4, 5, 6, 7, 8, 10, 15},
})

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper. It returns ctx.Err() when ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer enforces a uniform random delay in [min, max] between requests.
// The first Wait returns immediately.
type Pacer struct {
	min, max time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	rnd     *rand.Rand
	sleep   Sleeper
	started bool
}

// NewPacer creates a pacer. Bounds are clamped so that 0 <= min <= max.
func NewPacer(min, max time.Duration, logger zerolog.Logger) *Pacer {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}

	return &Pacer{
		min:    min,
		max:    max,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  Sleep,
	}
}

// SetRand replaces the random source (for testing).
func (p *Pacer) SetRand(r *rand.Rand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rnd = r
}

// SetSleeper replaces the sleep function (for testing).
func (p *Pacer) SetSleeper(s Sleeper) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sleep = s
}

// Bounds returns the configured delay range.
func (p *Pacer) Bounds() (min, max time.Duration) {
	return p.min, p.max
}

// Wait sleeps the inter-request delay. It returns the delay it slept, which
// is 0 on the first call, and ctx.Err() if ctx ended during the sleep.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	p.mu.Lock()
	if !p.started {
		p.started = true
		p.mu.Unlock()
		return 0, ctx.Err()
	}
	delay := p.next()
	sleep := p.sleep
	p.mu.Unlock()

	p.logger.Debug().
		Dur("delay", delay).
		Msg("Pacing before request")

	pacerDelaySeconds.Observe(delay.Seconds())
	if err := sleep(ctx, delay); err != nil {
		return delay, err
	}
	return delay, nil
}

// next draws a delay. Callers hold p.mu.
func (p *Pacer) next() time.Duration {
	span := int64(p.max - p.min)
	if span <= 0 {
		return p.min
	}
	return p.min + time.Duration(p.rnd.Int63n(span+1))
}
