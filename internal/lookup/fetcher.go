package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxErrorBody        = 4 << 10
	userAgent           = "lookupcache/1.0"
)

// Fetcher retrieves the records for a key from a remote source.
type Fetcher[R any] interface {
	Fetch(ctx context.Context, key string) ([]R, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[R any] func(ctx context.Context, key string) ([]R, error)

// Fetch calls f(ctx, key).
func (f FetcherFunc[R]) Fetch(ctx context.Context, key string) ([]R, error) {
	return f(ctx, key)
}

// HTTPError captures an unexpected status from a remote source.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// HTTPFetcher issues GET requests against a URL template and decodes a JSON array of R.
// The template contains one %s placeholder that receives the path-escaped key.
type HTTPFetcher[R any] struct {
	client   *http.Client
	template string
}

// NewHTTPFetcher constructs an HTTPFetcher. A nil client gets a fresh one with the given
// timeout (10s when zero).
func NewHTTPFetcher[R any](template string, client *http.Client, timeout time.Duration) (*HTTPFetcher[R], error) {
	template = strings.TrimSpace(template)
	if strings.Count(template, "%s") != 1 {
		return nil, fmt.Errorf("lookup: url template %q must contain exactly one %%s", template)
	}
	if _, err := url.Parse(fmt.Sprintf(template, "probe")); err != nil {
		return nil, fmt.Errorf("lookup: parse url template: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *client
	wrapped.Transport = &userAgentRoundTripper{wrapped: base, userAgent: userAgent}

	return &HTTPFetcher[R]{client: &wrapped, template: template}, nil
}

// Fetch requests the records for key.
func (f *HTTPFetcher[R]) Fetch(ctx context.Context, key string) ([]R, error) {
	endpoint := fmt.Sprintf(f.template, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup: request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}

	var records []R
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("lookup: decode response: %w", err)
	}
	return records, nil
}

type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.wrapped.RoundTrip(clone)
}
