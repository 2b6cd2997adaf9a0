// Package metrics provides the Prometheus registry reference for the scraper.
// All metrics are defined in their respective packages (fetcher, ratelimit, scrape)
// to maintain modularity and avoid circular dependencies.
//
// A scrape is a short-lived batch run, so instead of serving /metrics the
// collected values can be dumped once at exit in the node-exporter textfile
// format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the scraper.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every registered metric to path in the Prometheus
// text exposition format. The file is written atomically.
func WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics textfile path is empty")
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Fetch Metrics (pkg/fetcher):
//   - yad2_fetch_requests_total{status} (Counter): HTTP attempts by status code ("network_error" for network failures)
//   - yad2_fetch_duration_seconds (Histogram): Duration of single HTTP attempts
//   - yad2_bot_challenges_total (Counter): Redirect responses treated as bot challenges
//   - yad2_backoff_seconds (Histogram): Backoff sleeps after bot challenges
//   - yad2_bot_detected_total (Counter): Fetches that exhausted all retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - yad2_ratelimit_delay_seconds (Histogram): Inter-request delays
//
// Run Metrics (pkg/scrape):
//   - yad2_pages_fetched_total (Counter): Pages fetched by the controller
//   - yad2_listings_collected_total (Counter): Listings appended to the session
//   - yad2_run_stops_total{reason} (Counter): Terminal states reached
//
// Example Prometheus Queries:
//
//   # Bot challenge ratio
//   yad2_bot_challenges_total / sum(yad2_fetch_requests_total)
//
//   # Listings per page
//   yad2_listings_collected_total / yad2_pages_fetched_total
