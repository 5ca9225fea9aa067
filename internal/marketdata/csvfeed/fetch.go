package csvfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"macross/internal/model"
)

// Fetcher downloads trades newer than a timestamp from a bitcoincharts
// style trades.csv endpoint.
type Fetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewFetcher returns a Fetcher with a 30s HTTP timeout.
func NewFetcher(baseURL string) *Fetcher {
	return &Fetcher{BaseURL: baseURL, Client: &http.Client{Timeout: 30 * time.Second}}
}

// Since returns trades starting at since. The endpoint repeats the trade at
// since as its first line, so that line is dropped.
func (f *Fetcher) Since(ctx context.Context, since int64) ([]model.Tick, error) {
	u, err := url.Parse(f.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("trades url: %w", err)
	}
	q := u.Query()
	q.Set("start", strconv.FormatInt(since, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch trades: unexpected status %d", resp.StatusCode)
	}

	ticks, err := Read(ctx, resp.Body, -1<<62, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}
	if len(ticks) > 0 {
		ticks = ticks[1:]
	}
	return ticks, nil
}
