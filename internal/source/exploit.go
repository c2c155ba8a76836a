package source

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/extract"
	"github.com/ctisec/ctihub/internal/fetch"
	"github.com/ctisec/ctihub/internal/intel"
)

// ExploitAdapter ingests the public exploit listing feed. Entries link to
// numbered listings; the listing id doubles as the natural key.
type ExploitAdapter struct {
	feedURL string
	limit   int
	feeds   fetch.FeedClient
	budget  Budget
	logger  *zap.Logger
}

// NewExploitAdapter builds the adapter.
func NewExploitAdapter(feedURL string, limit int, feeds fetch.FeedClient, budget Budget, logger *zap.Logger) *ExploitAdapter {
	return &ExploitAdapter{
		feedURL: feedURL,
		limit:   limit,
		feeds:   feeds,
		budget:  budget,
		logger:  logger.Named("exploit_feed"),
	}
}

// Name returns the adapter name.
func (a *ExploitAdapter) Name() string { return "exploit_feed" }

// Source returns the source this adapter feeds.
func (a *ExploitAdapter) Source() intel.Source { return intel.SourceExploitFeed }

// Fetch lists the feed and converts each listing.
func (a *ExploitAdapter) Fetch(ctx context.Context) ([]intel.RawItem, error) {
	feed, err := a.feeds.Parse(ctx, a.feedURL)
	if err != nil {
		return nil, err
	}

	entries := feed.Items
	if a.limit > 0 && len(entries) > a.limit {
		entries = entries[:a.limit]
	}

	items := make([]intel.RawItem, 0, len(entries))
	for _, entry := range entries {
		if !absoluteHTTP(entry.Link) {
			continue
		}
		item := intel.RawItem{
			NaturalKey: listingID(entry.Link),
			ListingID:  listingID(entry.Link),
			Title:      extract.CleanText(entry.Title),
			URL:        entry.Link,
			Content:    a.budget.summarize(extract.StripTags(entry.Description)),
		}
		if entry.PublishedParsed != nil {
			item.Published = entry.PublishedParsed.UTC()
		}
		items = append(items, item)
	}
	a.logger.Info("exploit feed fetched", zap.Int("entries", len(items)))
	return items, nil
}

// listingID pulls the numeric listing id from a link like
// https://www.exploit-db.com/exploits/51234. Empty when the link does not
// follow that shape, which falls back to the URL digest key.
func listingID(link string) string {
	trimmed := strings.TrimRight(link, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return ""
	}
	id := trimmed[i+1:]
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}
