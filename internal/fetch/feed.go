package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedClient parses RSS/Atom feeds.
type FeedClient interface {
	Parse(ctx context.Context, url string) (*gofeed.Feed, error)
}

// GofeedClient implements FeedClient with gofeed over a shared HTTP
// client.
type GofeedClient struct {
	parser *gofeed.Parser
}

// NewFeedClient builds a feed client with the given identity and timeout.
func NewFeedClient(userAgent string, timeout time.Duration) *GofeedClient {
	p := gofeed.NewParser()
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	p.Client = &http.Client{
		Timeout:   timeout,
		Transport: newHTTPTransport(),
	}
	return &GofeedClient{parser: p}
}

// Parse fetches and parses the feed at url.
func (c *GofeedClient) Parse(ctx context.Context, url string) (*gofeed.Feed, error) {
	feed, err := c.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}
	return feed, nil
}
