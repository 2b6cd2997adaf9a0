package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/yad2-scraper/pkg/export"
	"github.com/Sternrassler/yad2-scraper/pkg/fetcher"
	"github.com/Sternrassler/yad2-scraper/pkg/listing"
)

// ErrNothingScraped is returned when a run ends without a single listing.
var ErrNothingScraped = errors.New("no listings scraped")

// Prometheus metrics for scraping runs.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yad2_pages_fetched_total",
		Help: "Total search pages fetched successfully",
	})

	listingsCollectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yad2_listings_collected_total",
		Help: "Total listings extracted from fetched pages, before deduplication",
	})

	runStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yad2_run_stops_total",
		Help: "Total scraping runs by stop reason",
	}, []string{"reason"})
)

// PageFetcher retrieves the content of one search page.
type PageFetcher interface {
	Fetch(ctx context.Context, page int) (string, error)
}

// Extractor turns page content into listings.
type Extractor interface {
	Extract(content string) (*listing.PageResult, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(content string) (*listing.PageResult, error)

// Extract calls fn(content).
func (fn ExtractorFunc) Extract(content string) (*listing.PageResult, error) {
	return fn(content)
}

// Exporter persists the collected listings and returns where they went.
type Exporter interface {
	Export(listings []listing.Listing) (string, error)
}

// Config holds controller configuration.
type Config struct {
	// FirstPage is the first page requested.
	FirstPage int

	// MaxPages caps the number of fetch calls. 0 means no cap.
	MaxPages int
}

// DefaultConfig returns the default configuration: start at page 1, no cap.
func DefaultConfig() Config {
	return Config{FirstPage: 1}
}

// Result summarizes a run.
type Result struct {
	// Reason is the stop condition the page loop reached. It stays Running
	// when a fatal error aborted the loop; Run then returns that error.
	Reason State

	// State is Reason, Done once the listings were exported, or
	// StoppedByError after a fatal error.
	State State

	// Cause is the error behind StoppedByError.
	Cause error

	PagesFetched int

	// Collected counts listings before deduplication, Exported after.
	Collected int
	Exported  int

	// TotalPages and TotalResults are what the source reported; 0 if never.
	TotalPages   int
	TotalResults int

	OutputPath string
	Duration   time.Duration
}

// Controller runs the page loop. A Controller is single-use.
type Controller struct {
	config    Config
	fetcher   PageFetcher
	extractor Extractor
	exporter  Exporter
	logger    zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewController creates a controller. A nil extractor means listing.Extract.
func NewController(cfg Config, f PageFetcher, e Extractor, exp Exporter, logger zerolog.Logger) *Controller {
	if e == nil {
		e = ExtractorFunc(listing.Extract)
	}
	if cfg.MaxPages < 0 {
		cfg.MaxPages = 0
	}

	return &Controller{
		config:    cfg,
		fetcher:   f,
		extractor: e,
		exporter:  exp,
		logger:    logger,
		state:     Running,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run fetches pages until a stop condition and exports what was collected.
//
// The returned Result is never nil. The error is ErrNothingScraped when no
// listing was collected, a wrapped export error, or a fatal fetch error, in
// which case nothing is exported.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{State: Running}

	collected, err := c.loop(ctx, res)
	res.Collected = len(collected)
	res.Duration = time.Since(start)
	if err != nil {
		res.Reason, res.State, res.Cause = Running, StoppedByError, err
		c.setState(StoppedByError)
		runStopsTotal.WithLabelValues("fatal").Inc()
		c.logger.Error().
			Err(err).
			Int("pages_fetched", res.PagesFetched).
			Int("collected", res.Collected).
			Msg("Run aborted, nothing exported")
		return res, err
	}

	res.State = res.Reason
	c.setState(res.Reason)
	runStopsTotal.WithLabelValues(res.Reason.String()).Inc()

	event := c.logger.Info()
	if res.Reason == StoppedByError || res.Reason == Interrupted {
		event = c.logger.Warn().AnErr("cause", res.Cause)
	}
	event.
		Str("reason", res.Reason.String()).
		Int("pages_fetched", res.PagesFetched).
		Int("collected", res.Collected).
		Int("total_pages", res.TotalPages).
		Int("total_results", res.TotalResults).
		Msg("Run stopped")

	if len(collected) == 0 {
		return res, ErrNothingScraped
	}

	path, err := c.exporter.Export(collected)
	if err != nil {
		return res, fmt.Errorf("export: %w", err)
	}

	res.OutputPath = path
	res.Exported = len(export.Dedupe(collected))
	res.State = Done
	res.Duration = time.Since(start)
	c.setState(Done)

	return res, nil
}

// loop runs pages until a stop condition, recording it in res.Reason. A
// non-nil error is fatal.
func (c *Controller) loop(ctx context.Context, res *Result) ([]listing.Listing, error) {
	var collected []listing.Listing
	page := c.config.FirstPage
	knownTotalPages := 0

	stop := func(reason State, cause error) ([]listing.Listing, error) {
		res.Reason = reason
		res.Cause = cause
		return collected, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return stop(Interrupted, err)
		}

		if c.config.MaxPages > 0 && res.PagesFetched >= c.config.MaxPages {
			return stop(StoppedByLimit, nil)
		}

		if knownTotalPages > 0 && page > c.config.FirstPage+knownTotalPages-1 {
			return stop(StoppedByEnd, nil)
		}

		content, err := c.fetcher.Fetch(ctx, page)
		res.PagesFetched++
		if err != nil {
			switch {
			case errors.Is(err, fetcher.ErrBotDetected):
				c.logger.Error().
					Err(err).
					Int("page", page).
					Msg("Bot detection persisted, stopping")
				return stop(StoppedByError, err)

			// Request timeouts also match context.DeadlineExceeded, so only
			// the run's own ctx counts as an interrupt.
			case ctx.Err() != nil:
				return stop(Interrupted, err)

			default:
				return collected, fmt.Errorf("fetch page %d: %w", page, err)
			}
		}

		// A page that arrives after an interrupt is dropped.
		if err := ctx.Err(); err != nil {
			return stop(Interrupted, err)
		}
		pagesFetchedTotal.Inc()

		result, err := c.extractor.Extract(content)
		if err != nil {
			c.logger.Error().
				Err(err).
				Int("page", page).
				Msg("Page could not be parsed, stopping")
			return stop(StoppedByError, err)
		}

		for _, w := range result.Warnings {
			c.logger.Warn().
				Int("page", page).
				Str("bucket", w.Bucket).
				Int("index", w.Index).
				Str("token", w.Token).
				Msg("Skipped listing: " + w.Reason)
		}

		collected = append(collected, result.Listings...)
		listingsCollectedTotal.Add(float64(len(result.Listings)))

		if knownTotalPages == 0 && result.TotalPages > 0 {
			knownTotalPages = result.TotalPages
			res.TotalPages = result.TotalPages
			res.TotalResults = result.TotalResults
			c.logger.Info().
				Int("total_pages", result.TotalPages).
				Int("total_results", result.TotalResults).
				Msg("Source reported result size")
		}

		c.logger.Info().
			Int("page", page).
			Int("listings", len(result.Listings)).
			Int("collected", len(collected)).
			Msg("Page scraped")

		if len(result.Listings) == 0 {
			return stop(StoppedByEnd, nil)
		}
		page++
	}
}
