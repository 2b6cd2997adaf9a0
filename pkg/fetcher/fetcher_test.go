package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/yad2-scraper/internal/testutil"
)

// sleepRecorder records requested sleeps without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestFetcher(t *testing.T, mock *testutil.MockYad2, mutate func(*Config)) (*Fetcher, *sleepRecorder) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = mock.URL()
	if mutate != nil {
		mutate(&cfg)
	}

	f, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	rec := &sleepRecorder{}
	f.SetSleeper(rec.sleep)
	return f, rec
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:     "empty base url",
			mutate:   func(c *Config) { c.BaseURL = "" },
			errorMsg: "base url is required",
		},
		{
			name:     "relative base url",
			mutate:   func(c *Config) { c.BaseURL = "/vehicles/cars" },
			errorMsg: "invalid base url",
		},
		{
			name:     "negative retries",
			mutate:   func(c *Config) { c.MaxRetries = -1 },
			errorMsg: "max_retries must be >= 0",
		},
		{
			name:     "negative backoff",
			mutate:   func(c *Config) { c.BackoffBase = -time.Second },
			errorMsg: "backoff_base must be >= 0",
		},
		{
			name:     "inverted delays",
			mutate:   func(c *Config) { c.MinDelay, c.MaxDelay = 5*time.Second, time.Second },
			errorMsg: "invalid delay range",
		},
		{
			name:     "negative delay",
			mutate:   func(c *Config) { c.MinDelay = -time.Second },
			errorMsg: "invalid delay range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			f, err := New(cfg)
			if tt.errorMsg == "" {
				require.NoError(t, err)
				f.Close()
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestFetch_Success(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.SetPage(3, testutil.NewPageResponse("<html>page three</html>"))

	f, rec := newTestFetcher(t, mock, nil)

	body, err := f.Fetch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "<html>page three</html>", body)

	assert.Equal(t, 1, mock.GetRequestCount())
	assert.Equal(t, []int{3}, mock.GetRequestedPages())
	assert.Empty(t, rec.recorded(), "no delay before the first request")

	query := mock.GetLastQuery()
	assert.Equal(t, []string{"3"}, query["page"])
	assert.Equal(t, []string{"2020-2023"}, query["year"])
	assert.Equal(t, []string{"1101,1102,2101,2102"}, query["engineType"])

	header := mock.GetLastRequestHeader()
	assert.Contains(t, header.Get("User-Agent"), "Chrome/131")
	assert.True(t, strings.HasPrefix(header.Get("Accept-Language"), "he-IL"))
	assert.Equal(t, "navigate", header.Get("Sec-Fetch-Mode"))
	assert.Equal(t, "1", header.Get("Upgrade-Insecure-Requests"))
}

func TestFetch_PacesConsecutiveRequests(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.SetHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	f, rec := newTestFetcher(t, mock, func(c *Config) {
		c.MinDelay = 3 * time.Second
		c.MaxDelay = 7 * time.Second
	})

	ctx := context.Background()
	for page := 1; page <= 4; page++ {
		_, err := f.Fetch(ctx, page)
		require.NoError(t, err)
	}

	delays := rec.recorded()
	require.Len(t, delays, 3)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 7*time.Second)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, mock.GetRequestedPages())
}

func TestFetch_RedirectThenSuccess(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.Enqueue(
		testutil.NewRedirectResponse("/challenge"),
		testutil.NewRedirectResponse("/challenge"),
		testutil.NewRedirectResponse("/challenge"),
		testutil.NewPageResponse("finally"),
	)

	f, rec := newTestFetcher(t, mock, nil)

	body, err := f.Fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "finally", body)

	assert.Equal(t, 4, mock.GetRequestCount())
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second}, rec.recorded())
}

func TestFetch_BotDetected(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.SetHandler(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://validate.perfdrive.com/challenge", http.StatusFound)
	})

	f, rec := newTestFetcher(t, mock, nil)

	_, err := f.Fetch(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBotDetected))
	assert.False(t, errors.Is(err, ErrTransport))

	var botErr *BotDetectedError
	require.True(t, errors.As(err, &botErr))
	assert.Equal(t, 4, botErr.Attempts)
	assert.Equal(t, http.StatusFound, botErr.LastStatus)
	assert.Equal(t, "https://validate.perfdrive.com/challenge", botErr.Location)

	assert.Equal(t, 4, mock.GetRequestCount())
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second}, rec.recorded())
}

func TestFetch_BotDetected_NoRetries(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.SetHandler(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/challenge", http.StatusTemporaryRedirect)
	})

	f, rec := newTestFetcher(t, mock, func(c *Config) { c.MaxRetries = 0 })

	_, err := f.Fetch(context.Background(), 1)

	var botErr *BotDetectedError
	require.True(t, errors.As(err, &botErr))
	assert.Equal(t, 1, botErr.Attempts)
	assert.Equal(t, 1, mock.GetRequestCount())
	assert.Empty(t, rec.recorded())
}

func TestFetch_RedirectStatuses(t *testing.T) {
	for _, status := range []int{301, 302, 303, 307, 308} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			mock := testutil.NewMockYad2()
			defer mock.Close()
			mock.Enqueue(testutil.MockResponse{
				StatusCode: status,
				Headers:    map[string]string{"Location": "/challenge"},
			})
			mock.SetPage(1, testutil.NewPageResponse("ok"))

			f, rec := newTestFetcher(t, mock, nil)

			body, err := f.Fetch(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, "ok", body)
			assert.Equal(t, 2, mock.GetRequestCount())
			assert.Equal(t, []time.Duration{10 * time.Second}, rec.recorded())
		})
	}
}

func TestFetch_TransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		resp   testutil.MockResponse
		status int
	}{
		{"not found", testutil.NewNotFoundResponse(), http.StatusNotFound},
		{"server error", testutil.NewServerErrorResponse(), http.StatusInternalServerError},
		{"forbidden", testutil.MockResponse{StatusCode: http.StatusForbidden}, http.StatusForbidden},
		{"no content", testutil.MockResponse{StatusCode: http.StatusNoContent}, http.StatusNoContent},
		{"too many requests", testutil.MockResponse{StatusCode: http.StatusTooManyRequests}, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockYad2()
			defer mock.Close()
			mock.SetPage(1, tt.resp)

			f, rec := newTestFetcher(t, mock, nil)

			_, err := f.Fetch(context.Background(), 1)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTransport))
			assert.False(t, errors.Is(err, ErrBotDetected))

			var tErr *TransportError
			require.True(t, errors.As(err, &tErr))
			assert.Equal(t, tt.status, tErr.StatusCode)

			assert.Equal(t, 1, mock.GetRequestCount(), "transport errors are not retried")
			assert.Empty(t, rec.recorded())
		})
	}
}

func TestFetch_NetworkError(t *testing.T) {
	mock := testutil.NewMockYad2()
	f, _ := newTestFetcher(t, mock, nil)
	mock.Close()

	before := promtest.ToFloat64(fetchRequestsTotal.WithLabelValues("network_error"))

	_, err := f.Fetch(context.Background(), 1)
	require.Error(t, err)

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, 0, tErr.StatusCode)
	assert.NotNil(t, tErr.Err)
	assert.Equal(t, before+1, promtest.ToFloat64(fetchRequestsTotal.WithLabelValues("network_error")))
}

func TestFetch_BodyLimit(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.SetPage(1, testutil.NewPageResponse(strings.Repeat("x", 100)))
	mock.SetPage(2, testutil.NewPageResponse(strings.Repeat("x", 64)))

	f, _ := newTestFetcher(t, mock, func(c *Config) { c.MaxBodyBytes = 64 })

	_, err := f.Fetch(context.Background(), 1)
	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Contains(t, err.Error(), "body exceeds 64 bytes")

	body, err := f.Fetch(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, body, 64)
}

func TestFetch_CancelledBeforeRequest(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.SetPage(1, testutil.NewPageResponse("ok"))

	f, _ := newTestFetcher(t, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTransport))
	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestFetch_CancelledDuringBackoff(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.SetHandler(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/challenge", http.StatusFound)
	})

	f, _ := newTestFetcher(t, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	f.SetSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := f.Fetch(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrBotDetected))
	assert.Equal(t, 1, mock.GetRequestCount())
}

func TestFetch_CancelledDuringRequest(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	mock.SetHandler(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	})

	f, _ := newTestFetcher(t, mock, nil)

	_, err := f.Fetch(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTransport))
}

func TestFetch_RequestTimeoutIsTransportError(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()

	slow := testutil.NewPageResponse("late")
	slow.Delay = 500 * time.Millisecond
	mock.SetPage(1, slow)

	f, rec := newTestFetcher(t, mock, func(c *Config) { c.Timeout = 50 * time.Millisecond })

	_, err := f.Fetch(context.Background(), 1)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te), "got %T: %v", err, err)
	assert.Zero(t, te.StatusCode)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.False(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, mock.GetRequestCount())
	assert.Empty(t, rec.recorded(), "timeouts are not retried")
}

func TestClose(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.SetPage(1, testutil.NewPageResponse("ok"))

	f, _ := newTestFetcher(t, mock, nil)

	_, err := f.Fetch(context.Background(), 1)
	require.NoError(t, err)

	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close(), "Close must be idempotent")

	_, err = f.Fetch(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, mock.GetRequestCount())
}

func TestSetHTTPClient(t *testing.T) {
	mock := testutil.NewMockYad2()
	defer mock.Close()
	mock.SetPage(1, testutil.NewPageResponse("ok"))

	f, _ := newTestFetcher(t, mock, nil)

	var seen bool
	f.SetHTTPClient(&http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			seen = true
			return http.DefaultTransport.RoundTrip(req)
		}),
	})

	body, err := f.Fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.True(t, seen)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}
