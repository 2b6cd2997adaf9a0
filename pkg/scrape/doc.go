// Package scrape drives a scraping run across search result pages.
//
// The listing source does not say up front how many pages a search has, and
// it may answer with a bot challenge at any point. A Controller therefore
// walks pages strictly one at a time and decides after each page whether to
// go on. Whatever was collected is exported once at the end, including after
// a challenge, a parse failure or an interrupt.
//
// Example usage:
//
//	f, err := fetcher.New(fetcher.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	exporter := export.NewCSVExporter("output", logger)
//	ctrl := scrape.NewController(scrape.DefaultConfig(), f, nil, exporter, logger)
//	result, err := ctrl.Run(ctx)
//
// A run stops when:
//   - the page limit is reached
//   - the last page reported by the source has been fetched
//   - a page has no listings
//   - the source keeps challenging or a page cannot be parsed
//   - ctx is cancelled
//
// Any other fetch failure aborts the run without exporting.
package scrape
