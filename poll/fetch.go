package poll

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"opsdash/store"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPFetcher pulls the snapshot JSON from the backend dashboard endpoint.
// It remembers validators from previous responses and issues conditional
// requests, so an unchanged snapshot costs a 304 instead of a full body.
// Not safe for concurrent use; the scheduler runs one fetch at a time.
type HTTPFetcher struct {
	url          string
	client       *http.Client
	etag         string
	lastModified string
}

func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (store.Snapshot, bool, error) {
	var snap store.Snapshot
	if f == nil {
		return snap, false, fmt.Errorf("nil fetcher")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return snap, false, err
	}
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	if f.lastModified != "" {
		req.Header.Set("If-Modified-Since", f.lastModified)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return snap, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return snap, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return snap, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return snap, false, err
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, false, fmt.Errorf("decode snapshot: %w", err)
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		f.etag = etag
	}
	if last := resp.Header.Get("Last-Modified"); last != "" {
		f.lastModified = last
	}
	return snap, true, nil
}
