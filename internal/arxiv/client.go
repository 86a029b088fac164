// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/paper-collector/internal/httputil"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// Fetcher performs one logical fetch. *httputil.Retrier satisfies it.
type Fetcher interface {
	FetchOnce(ctx context.Context, req *http.Request) (httputil.Result, error)
}

// Client queries the arXiv API through a Fetcher.
type Client struct {
	fetcher Fetcher
}

// NewClient returns a Client.
func NewClient(f Fetcher) *Client {
	return &Client{fetcher: f}
}

// Response is a parsed page plus the cost of obtaining it.
type Response struct {
	Feed     Feed
	Attempts int
	Waited   time.Duration
}

// Search fetches and parses one page. On failure the returned Response still
// reports the attempts made.
func (c *Client) Search(ctx context.Context, p types.RequestParams) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, RequestURL(p), nil)
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}

	res, err := c.fetcher.FetchOnce(ctx, req)
	resp := Response{Attempts: res.Attempts, Waited: res.Waited}
	if err != nil {
		return resp, err
	}

	feed, err := ParseFeed(res.Body)
	if err != nil {
		return resp, err
	}
	resp.Feed = feed
	return resp, nil
}
