// Package testutil provides testing utilities for the Yad2 scraper.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// SearchPath is the path the mock serves search pages on.
const SearchPath = "/vehicles/cars"

// MockResponse defines the behavior for a single mock response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockYad2 is a configurable mock listing source for testing.
//
// Responses are chosen in this order: queued responses (one per request),
// then the handler registered for the requested page, then the fallback
// handler, which answers 404.
type MockYad2 struct {
	server   *httptest.Server
	mu       sync.RWMutex
	queue    []MockResponse
	pages    map[int]http.HandlerFunc
	fallback http.HandlerFunc

	// Tracking
	RequestCount      int
	RequestedPages    []int
	LastRequestHeader http.Header
	LastQuery         url.Values
}

// NewMockYad2 creates a new mock listing source.
func NewMockYad2() *MockYad2 {
	mock := &MockYad2{
		pages: make(map[int]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
			page = p
		}

		mock.mu.Lock()
		mock.RequestCount++
		mock.RequestedPages = append(mock.RequestedPages, page)
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = r.URL.Query()

		var queued *MockResponse
		if len(mock.queue) > 0 {
			queued = &mock.queue[0]
			mock.queue = mock.queue[1:]
		}
		handler, exists := mock.pages[page]
		fallback := mock.fallback
		mock.mu.Unlock()

		switch {
		case queued != nil:
			serve(w, *queued)
		case exists:
			handler(w, r)
		case fallback != nil:
			fallback(w, r)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the search URL of the mock source.
func (m *MockYad2) URL() string {
	return m.server.URL + SearchPath
}

// Close shuts down the mock server.
func (m *MockYad2) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and queued responses.
func (m *MockYad2) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.RequestedPages = nil
	m.LastRequestHeader = nil
	m.LastQuery = nil
	m.queue = nil
}

// SetPageHandler sets a custom handler for one page number.
func (m *MockYad2) SetPageHandler(page int, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = handler
}

// SetPage configures a simple response for one page number.
func (m *MockYad2) SetPage(page int, resp MockResponse) {
	m.SetPageHandler(page, func(w http.ResponseWriter, r *http.Request) {
		serve(w, resp)
	})
}

// SetHandler sets the handler for requests nothing else matches.
func (m *MockYad2) SetHandler(handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = handler
}

// Enqueue adds responses that are served in order, one per request, before
// any page handler is consulted.
func (m *MockYad2) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resps...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockYad2) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequestedPages returns the page numbers requested so far, in order.
func (m *MockYad2) GetRequestedPages() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.RequestedPages...)
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockYad2) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetLastQuery returns the query parameters of the most recent request.
func (m *MockYad2) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

func serve(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewPageResponse creates a 200 OK HTML response.
func NewPageResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewRedirectResponse creates a 302 Found response, which is how the site
// sends suspected bots to its challenge page.
func NewRedirectResponse(location string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": location,
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       "not found",
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal server error",
	}
}
