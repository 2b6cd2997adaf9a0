package fetcher

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// PageParam is the query parameter carrying the page number.
const PageParam = "page"

// SearchRequest identifies one search result page.
type SearchRequest struct {
	// BaseURL is the search endpoint. Query parameters already present on it
	// are kept.
	BaseURL string

	// Query holds the fixed search filters.
	Query url.Values

	Page int
}

// URL builds the request URL. Parameters are sorted by key so the same
// request always yields the same URL, and the page number overrides any page
// parameter in BaseURL or Query.
func (r SearchRequest) URL() (string, error) {
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q is not absolute", r.BaseURL)
	}

	merged := u.Query()
	for key, values := range r.Query {
		merged[key] = append([]string(nil), values...)
	}
	merged.Set(PageParam, strconv.Itoa(r.Page))

	u.RawQuery = encodeSorted(merged)
	return u.String(), nil
}

// String returns a compact form for logs: path?key=value&... with the same
// ordering as URL.
func (r SearchRequest) String() string {
	s, err := r.URL()
	if err != nil {
		return fmt.Sprintf("%s (page %d)", r.BaseURL, r.Page)
	}
	return s
}

func encodeSorted(v url.Values) string {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		for _, value := range v[key] {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
		}
	}
	return strings.Join(parts, "&")
}
