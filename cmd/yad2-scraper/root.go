package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/yad2-scraper/pkg/config"
	"github.com/Sternrassler/yad2-scraper/pkg/export"
	"github.com/Sternrassler/yad2-scraper/pkg/fetcher"
	"github.com/Sternrassler/yad2-scraper/pkg/logging"
	"github.com/Sternrassler/yad2-scraper/pkg/metrics"
	"github.com/Sternrassler/yad2-scraper/pkg/scrape"
)

// Process exit codes.
const (
	exitOK             = 0
	exitNothingScraped = 1
	exitFatal          = 2
)

type options struct {
	configPath  string
	outputDir   string
	metricsFile string
	maxPages    int
	firstPage   int
	verbose     bool
	pretty      bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "yad2-scraper",
		Short: "yad2-scraper collects used-car listings from Yad2 into a CSV file.",
		Long: `yad2-scraper walks the Yad2 used-car search results page by page,
extracts every listing and writes them, deduplicated, to a timestamped CSV
file. Requests are paced and bot challenges are backed off; whatever was
collected is written even when the run is cut short.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, opts, stdout, stderr)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.maxPages, "max-pages", 0, "Stop after this many pages (default: until the last page)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging for the scraper (transport logging is unaffected)")
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.outputDir, "output-dir", "", "Directory for the CSV file (default \"output\")")
	flags.IntVar(&opts.firstPage, "first-page", 1, "First page to request")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file at exit")
	flags.BoolVar(&opts.pretty, "pretty", false, "Human-readable console logs instead of JSON")

	return cmd
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	code := exitCode(err)
	if code == exitFatal {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, scrape.ErrNothingScraped):
		return exitNothingScraped
	default:
		return exitFatal
	}
}

// applyFlags overrides loaded configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("max-pages") && opts.maxPages <= 0 {
		return fmt.Errorf("--max-pages must be > 0 (got %d)", opts.maxPages)
	}
	if flags.Changed("first-page") {
		cfg.Source.FirstPage = opts.firstPage
	}
	if flags.Changed("output-dir") {
		cfg.Output.Dir = opts.outputDir
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile = opts.metricsFile
	}
	if flags.Changed("pretty") {
		cfg.Log.Pretty = opts.pretty
	}
	if opts.verbose {
		cfg.Log.Level = string(logging.LevelDebug)
	}

	return cfg.Validate()
}

func runScrape(cmd *cobra.Command, opts *options, stdout, stderr io.Writer) (err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyFlags(cmd, opts, cfg); err != nil {
		return err
	}

	lc := cfg.LoggingConfig()
	lc.Output = stderr
	logger := logging.Setup(lc)

	if cfg.Metrics.Textfile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
				logger.Error().Err(werr).Str("path", cfg.Metrics.Textfile).Msg("Failed to write metrics")
			}
		}()
	}

	fc, err := cfg.FetcherConfig()
	if err != nil {
		return err
	}
	f, err := fetcher.New(fc)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer f.Close()

	exp := export.NewCSVExporter(cfg.Output.Dir, logging.NewLogger("export"))
	exp.Prefix = cfg.Output.Prefix

	ctrl := scrape.NewController(scrape.Config{
		FirstPage: cfg.Source.FirstPage,
		MaxPages:  opts.maxPages,
	}, f, nil, exp, logging.NewLogger("scrape"))

	logger.Info().
		Str("url", fc.BaseURL).
		Int("first_page", cfg.Source.FirstPage).
		Int("max_pages", opts.maxPages).
		Str("output_dir", cfg.Output.Dir).
		Msg("Starting scrape")

	res, err := ctrl.Run(cmd.Context())
	if err != nil {
		if errors.Is(err, scrape.ErrNothingScraped) {
			logger.Warn().
				Str("reason", res.Reason.String()).
				Int("pages_fetched", res.PagesFetched).
				Msg("No listings scraped")
		}
		return err
	}

	logger.Info().
		Str("reason", res.Reason.String()).
		Int("pages_fetched", res.PagesFetched).
		Int("collected", res.Collected).
		Int("exported", res.Exported).
		Dur("duration", res.Duration).
		Str("path", res.OutputPath).
		Msg("Scrape complete")

	fmt.Fprintln(stdout, res.OutputPath)
	return nil
}
