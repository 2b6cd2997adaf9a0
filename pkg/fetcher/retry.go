package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for bot challenge handling.
var (
	botChallengesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yad2_bot_challenges_total",
		Help: "Total challenge redirects received from the listing source",
	})

	backoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yad2_backoff_seconds",
		Help:    "Backoff slept after a challenge redirect",
		Buckets: []float64{1, 5, 10, 20, 40, 80, 160},
	})

	botDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yad2_bot_detected_total",
		Help: "Total page fetches abandoned because every attempt was redirected",
	})
)

// Backoff returns the wait after the redirect of the given attempt, counted
// from 0: base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return base * time.Duration(1<<uint(attempt))
}

// fetchWithBackoff requests target until it gets a page, retrying challenge
// redirects with exponential backoff. Other failures are returned at once.
func (f *Fetcher) fetchWithBackoff(ctx context.Context, page int, target string) (string, error) {
	maxAttempts := f.config.MaxRetries + 1

	f.mu.Lock()
	sleep := f.sleep
	f.mu.Unlock()

	var location string
	var lastStatus int

	for attempt := 0; attempt < maxAttempts; attempt++ {
		f.logger.Debug().
			Int("page", page).
			Int("attempt", attempt+1).
			Str("url", target).
			Msg("Fetching page")

		body, resp, err := f.attempt(ctx, target)
		if err != nil {
			// The client timeout also matches context.DeadlineExceeded; only
			// the caller's ctx makes this an interruption.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("fetch page %d: %w", page, ctxErr)
			}
			f.logger.Error().
				Err(err).
				Int("page", page).
				Msg("Page request failed")
			return "", err
		}

		if resp.StatusCode == 200 {
			if attempt > 0 {
				f.logger.Info().
					Int("page", page).
					Int("attempt", attempt+1).
					Msg("Page fetched after backoff")
			}
			return body, nil
		}

		// Challenge redirect.
		location = resp.Header.Get("Location")
		lastStatus = resp.StatusCode
		botChallengesTotal.Inc()

		f.logger.Warn().
			Int("page", page).
			Int("status", lastStatus).
			Str("location", location).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Msg("Bot detection redirect")

		if attempt+1 >= maxAttempts {
			break
		}

		wait := Backoff(f.config.BackoffBase, attempt)
		backoffSeconds.Observe(wait.Seconds())

		f.logger.Info().
			Dur("backoff", wait).
			Msg("Backing off")

		if err := sleep(ctx, wait); err != nil {
			f.logger.Warn().
				Int("page", page).
				Int("attempt", attempt+1).
				Msg("Context cancelled during backoff")
			return "", fmt.Errorf("fetch page %d: %w", page, err)
		}
	}

	botDetectedTotal.Inc()
	return "", &BotDetectedError{
		Location:   location,
		Attempts:   maxAttempts,
		LastStatus: lastStatus,
	}
}
