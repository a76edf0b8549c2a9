package discovery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
)

// HTTPLister resolves exact http(s) URLs. HTTP servers offer no listing, so
// wildcard patterns are rejected.
type HTTPLister struct {
	client *retryablehttp.Client
}

// NewHTTPLister returns a lister issuing HEAD requests through client.
func NewHTTPLister(client *retryablehttp.Client) *HTTPLister {
	return &HTTPLister{client: client}
}

// List checks that the URL exists and returns it as the only object.
func (l *HTTPLister) List(ctx context.Context, pattern string) ([]Object, error) {
	loc, _ := partition.SplitQuery(pattern)
	if partition.HasWildcard(loc) {
		return nil, fmt.Errorf("wildcards are not supported for http locations: %q", loc)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", loc, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", loc, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status for %s: %s", loc, resp.Status)
	}

	o := Object{URI: loc, Size: resp.ContentLength}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			o.LastModified = t.UTC()
		}
	}
	if o.Size < 0 {
		o.Size = 0
	}
	return []Object{o}, nil
}

// NewRetryableClient returns a retrying HTTP client that logs nothing on its
// own; callers log outcomes.
func NewRetryableClient(maxRetries int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = maxRetries
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.Logger = nil
	return c
}
