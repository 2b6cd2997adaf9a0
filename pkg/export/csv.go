// Package export writes collected listings to disk.
package export

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/yad2-scraper/pkg/listing"
)

// Defaults for the output artifact.
const (
	DefaultDir    = "output"
	DefaultPrefix = "yad2_cars"

	timestampLayout = "20060102_150405"
)

// utf8BOM makes spreadsheet applications detect the encoding of the Hebrew
// text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Dedupe keeps the first listing for each non-empty token and drops listings
// without a token. Relative order is preserved.
func Dedupe(listings []listing.Listing) []listing.Listing {
	seen := make(map[string]struct{}, len(listings))
	unique := make([]listing.Listing, 0, len(listings))

	for _, l := range listings {
		if l.Token == "" {
			continue
		}
		if _, dup := seen[l.Token]; dup {
			continue
		}
		seen[l.Token] = struct{}{}
		unique = append(unique, l)
	}
	return unique
}

// CSVExporter writes listings to a timestamped CSV file.
type CSVExporter struct {
	// Dir is created if missing.
	Dir string

	// Prefix starts the file name: <Prefix>_<YYYYMMDD_HHMMSS>.csv.
	Prefix string

	// Now stamps the file name. Defaults to time.Now.
	Now func() time.Time

	Logger zerolog.Logger
}

// NewCSVExporter creates an exporter writing to dir with the default prefix.
func NewCSVExporter(dir string, logger zerolog.Logger) *CSVExporter {
	return &CSVExporter{
		Dir:    dir,
		Prefix: DefaultPrefix,
		Now:    time.Now,
		Logger: logger,
	}
}

// Path returns the file the exporter would write at t.
func (e *CSVExporter) Path(t time.Time) string {
	dir := e.Dir
	if dir == "" {
		dir = DefaultDir
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.csv", prefix, t.Format(timestampLayout)))
}

// Export deduplicates listings and writes them, header first, as UTF-8 CSV
// with a byte order mark. An empty input still produces a header-only file.
// It returns the path written.
func (e *CSVExporter) Export(listings []listing.Listing) (string, error) {
	unique := Dedupe(listings)
	if dupes := len(listings) - len(unique); dupes > 0 {
		e.Logger.Info().
			Int("removed", dupes).
			Msg("Removed duplicate listings (by token)")
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	path := e.Path(now())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	if err := writeCSV(path, unique); err != nil {
		return "", err
	}

	e.Logger.Info().
		Int("listings", len(unique)).
		Str("path", path).
		Msg("Wrote listings")

	return path, nil
}

func writeCSV(path string, listings []listing.Listing) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close csv: %w", cerr)
		}
	}()

	w := bufio.NewWriter(file)
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	if err := gocsv.Marshal(listings, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
