package fetcher

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestSearchRequest_URL(t *testing.T) {
	tests := []struct {
		name    string
		req     SearchRequest
		want    string
		wantErr bool
	}{
		{
			name: "sorted params with page",
			req: SearchRequest{
				BaseURL: "https://www.yad2.co.il/vehicles/cars",
				Query:   url.Values{"year": {"2020-2023"}, "gearBox": {"102"}},
				Page:    2,
			},
			want: "https://www.yad2.co.il/vehicles/cars?gearBox=102&page=2&year=2020-2023",
		},
		{
			name: "page overrides configured page",
			req: SearchRequest{
				BaseURL: "https://www.yad2.co.il/vehicles/cars?page=9",
				Query:   url.Values{"page": {"7"}},
				Page:    1,
			},
			want: "https://www.yad2.co.il/vehicles/cars?page=1",
		},
		{
			name: "base url params kept",
			req: SearchRequest{
				BaseURL: "https://example.com/cars?manufacturer=19",
				Query:   url.Values{"price": {"20000-60000"}},
				Page:    0,
			},
			want: "https://example.com/cars?manufacturer=19&page=0&price=20000-60000",
		},
		{
			name: "commas escaped",
			req: SearchRequest{
				BaseURL: "https://example.com/cars",
				Query:   url.Values{"engineType": {"1101,1102"}},
				Page:    1,
			},
			want: "https://example.com/cars?engineType=1101%2C1102&page=1",
		},
		{
			name:    "relative",
			req:     SearchRequest{BaseURL: "/cars"},
			wantErr: true,
		},
		{
			name:    "unparseable",
			req:     SearchRequest{BaseURL: "://bad"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.URL()
			if tt.wantErr {
				if err == nil {
					t.Errorf("URL() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("URL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchRequest_URL_Deterministic(t *testing.T) {
	req := SearchRequest{BaseURL: DefaultBaseURL, Query: DefaultQuery(), Page: 4}

	first, err := req.URL()
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		if got, _ := req.URL(); got != first {
			t.Fatalf("URL() not deterministic: %q vs %q", got, first)
		}
	}
}

func TestSearchRequest_DoesNotMutateQuery(t *testing.T) {
	q := url.Values{"year": {"2021"}}
	SearchRequest{BaseURL: DefaultBaseURL, Query: q, Page: 3}.URL()

	if _, ok := q["page"]; ok {
		t.Error("URL() added page to the caller's query")
	}
}

func TestBackoff(t *testing.T) {
	base := 10 * time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 80 * time.Second},
		{-1, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(base, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%v, %d) = %v, want %v", base, tt.attempt, got, tt.want)
		}
	}
}

func TestBotDetectedError(t *testing.T) {
	err := &BotDetectedError{Location: "/challenge", Attempts: 4, LastStatus: 302}

	if !errors.Is(err, ErrBotDetected) {
		t.Error("errors.Is(err, ErrBotDetected) = false")
	}
	if errors.Is(err, ErrTransport) {
		t.Error("errors.Is(err, ErrTransport) = true")
	}

	want := `bot detected after 4 attempts (last redirect: 302 to "/challenge")`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransportError(t *testing.T) {
	netErr := errors.New("connection refused")

	tests := []struct {
		name string
		err  *TransportError
		want string
	}{
		{
			name: "network",
			err:  &TransportError{Err: netErr},
			want: "transport error: connection refused",
		},
		{
			name: "status",
			err:  &TransportError{StatusCode: 503, Status: "503 Service Unavailable"},
			want: "transport error (status 503): 503 Service Unavailable",
		},
		{
			name: "status with cause",
			err:  &TransportError{StatusCode: 200, Status: "200 OK", Err: errors.New("body too big")},
			want: "transport error (status 200): 200 OK: body too big",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrTransport) {
				t.Error("errors.Is(err, ErrTransport) = false")
			}
		})
	}

	if !errors.Is(&TransportError{Err: netErr}, netErr) {
		t.Error("TransportError does not unwrap to its cause")
	}
}
