// Package fetcher retrieves Yad2 search result pages.
//
// A Fetcher paces its requests, sends a browser-like header set, refuses to
// follow redirects (the site redirects suspected bots to a challenge page)
// and backs off exponentially when it sees one.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"

	"github.com/Sternrassler/yad2-scraper/pkg/logging"
	"github.com/Sternrassler/yad2-scraper/pkg/ratelimit"
)

// DefaultBaseURL is the used-car search endpoint.
const DefaultBaseURL = "https://www.yad2.co.il/vehicles/cars"

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yad2_fetch_requests_total",
		Help: "Total requests to the listing source by response status",
	}, []string{"status"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yad2_fetch_duration_seconds",
		Help:    "Duration of a single request to the listing source",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

// Config holds the fetcher configuration.
type Config struct {
	// BaseURL is the search endpoint.
	BaseURL string

	// Query holds the fixed search filters sent with every page request.
	Query url.Values

	// Pacing between consecutive requests.
	MinDelay time.Duration
	MaxDelay time.Duration

	// Bot challenge backoff: BackoffBase * 2^attempt, MaxRetries retries.
	BackoffBase time.Duration
	MaxRetries  int

	// Timeout bounds a single request including reading the body.
	Timeout time.Duration

	// HTTP2 negotiates HTTP/2 over TLS, falling back to HTTP/1.1.
	HTTP2 bool

	// MaxBodyBytes caps the page size read into memory.
	MaxBodyBytes int64

	// Headers replaces the default browser header set when non-nil.
	Headers http.Header
}

// DefaultQuery returns the default search filters: 2020-2023 models priced
// 20,000-60,000, petrol or hybrid engines, automatic gearbox, ads with a price
// and a picture.
func DefaultQuery() url.Values {
	return url.Values{
		"year":       {"2020-2023"},
		"price":      {"20000-60000"},
		"engineType": {"1101,1102,2101,2102"},
		"gearBox":    {"102"},
		"priceOnly":  {"1"},
		"imgOnly":    {"1"},
	}
}

// DefaultHeaders returns the header set of a desktop Chrome browser.
func DefaultHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	h.Set("Accept-Language", "he-IL,he;q=0.9,en-US;q=0.8,en;q=0.7")
	h.Set("Sec-Ch-Ua", `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Cache-Control", "max-age=0")
	return h
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		Query:        DefaultQuery(),
		MinDelay:     ratelimit.DefaultMinDelay,
		MaxDelay:     ratelimit.DefaultMaxDelay,
		BackoffBase:  10 * time.Second,
		MaxRetries:   3,
		Timeout:      30 * time.Second,
		HTTP2:        true,
		MaxBodyBytes: 10 << 20,
	}
}

// Fetcher retrieves search pages one at a time. It is safe for concurrent
// use, but requests are meant to be sequential.
type Fetcher struct {
	config    Config
	headers   http.Header
	transport *http.Transport
	logger    zerolog.Logger
	pacer     *ratelimit.Pacer

	mu         sync.Mutex
	httpClient *http.Client
	sleep      ratelimit.Sleeper
	closed     bool
}

// New creates a new Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := (SearchRequest{BaseURL: cfg.BaseURL, Query: cfg.Query}).URL(); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.BackoffBase < 0 {
		return nil, fmt.Errorf("backoff_base must be >= 0 (got %s)", cfg.BackoffBase)
	}
	if cfg.MinDelay < 0 || cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("invalid delay range [%s, %s]", cfg.MinDelay, cfg.MaxDelay)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}

	headers := cfg.Headers
	if headers == nil {
		headers = DefaultHeaders()
	}

	logger := logging.NewTransportLogger()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn().Err(err).Msg("HTTP/2 unavailable, using HTTP/1.1")
		}
	}

	return &Fetcher{
		config:    cfg,
		headers:   headers,
		transport: transport,
		logger:    logger,
		pacer:     ratelimit.NewPacer(cfg.MinDelay, cfg.MaxDelay, logger),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		sleep: ratelimit.Sleep,
	}, nil
}

// Fetch returns the body of search page page.
//
// Errors are *BotDetectedError when every attempt was redirected,
// *TransportError for network failures, request timeouts and unexpected
// statuses, ErrClosed after Close, and an error wrapping ctx.Err() when ctx
// ends first.
func (f *Fetcher) Fetch(ctx context.Context, page int) (string, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", ErrClosed
	}
	f.mu.Unlock()

	if _, err := f.pacer.Wait(ctx); err != nil {
		return "", fmt.Errorf("fetch page %d: %w", page, err)
	}

	target, err := SearchRequest{
		BaseURL: f.config.BaseURL,
		Query:   f.config.Query,
		Page:    page,
	}.URL()
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}

	return f.fetchWithBackoff(ctx, page, target)
}

// attempt performs a single GET. It returns the body for 200, the response
// for redirects (body already closed) and an error for everything else.
func (f *Fetcher) attempt(ctx context.Context, target string) (body string, resp *http.Response, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = f.headers.Clone()

	f.mu.Lock()
	client := f.httpClient
	f.mu.Unlock()

	start := time.Now()
	resp, err = client.Do(req)
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, ctxErr
		}
		fetchRequestsTotal.WithLabelValues("network_error").Inc()
		return "", nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", nil, ctxErr
			}
			return "", nil, &TransportError{StatusCode: resp.StatusCode, Status: resp.Status, Err: fmt.Errorf("read body: %w", err)}
		}
		if int64(len(data)) > f.config.MaxBodyBytes {
			return "", nil, &TransportError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Err:        fmt.Errorf("body exceeds %d bytes", f.config.MaxBodyBytes),
			}
		}
		return string(data), resp, nil

	case isRedirect(resp.StatusCode):
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", resp, nil

	default:
		return "", nil, &TransportError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

// Close releases idle connections. It is safe to call more than once.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.transport.CloseIdleConnections()
	f.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing). Redirect handling
// is the caller's responsibility.
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.httpClient = client
}

// SetSleeper replaces both the pacing and the backoff sleep (for testing).
func (f *Fetcher) SetSleeper(s ratelimit.Sleeper) {
	f.mu.Lock()
	f.sleep = s
	f.mu.Unlock()
	f.pacer.SetSleeper(s)
}

// Pacer returns the request pacer (for testing).
func (f *Fetcher) Pacer() *ratelimit.Pacer {
	return f.pacer
}
