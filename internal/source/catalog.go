package source

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/fetch"
	"github.com/ctisec/ctihub/internal/intel"
)

// catalogSummaryChars is the tighter budget used for catalog entries,
// whose descriptions are already terse.
const catalogSummaryChars = 240

// kevFeed mirrors the known-exploited-vulnerabilities JSON feed.
type kevFeed struct {
	Title           string     `json:"title"`
	CatalogVersion  string     `json:"catalogVersion"`
	Count           int        `json:"count"`
	Vulnerabilities []kevEntry `json:"vulnerabilities"`
}

type kevEntry struct {
	CVEID             string   `json:"cveID"`
	VendorProject     string   `json:"vendorProject"`
	Product           string   `json:"product"`
	VulnerabilityName string   `json:"vulnerabilityName"`
	DateAdded         string   `json:"dateAdded"`
	ShortDescription  string   `json:"shortDescription"`
	RequiredAction    string   `json:"requiredAction"`
	KnownRansomware   string   `json:"knownRansomwareCampaignUse"`
	CWEs              []string `json:"cwes"`
}

// CatalogAdapter ingests the exploited-vulnerability catalog. Multiple
// feed URLs act as fallbacks tried in order.
type CatalogAdapter struct {
	urls    []string
	pageURL string
	limit   int
	client  *fetch.JSONClient
	budget  Budget
	logger  *zap.Logger
}

// NewCatalogAdapter builds the adapter.
func NewCatalogAdapter(urls []string, pageURL string, limit int, client *fetch.JSONClient, budget Budget, logger *zap.Logger) *CatalogAdapter {
	if budget.MaxChars == 0 {
		budget.MaxChars = catalogSummaryChars
	}
	return &CatalogAdapter{
		urls:    urls,
		pageURL: pageURL,
		limit:   limit,
		client:  client,
		budget:  budget,
		logger:  logger.Named("catalog"),
	}
}

// Name returns the adapter name.
func (a *CatalogAdapter) Name() string { return "catalog" }

// Source returns the source this adapter feeds.
func (a *CatalogAdapter) Source() intel.Source { return intel.SourceCatalog }

// Fetch downloads the catalog and converts each entry. The CVE id is the
// natural key so re-runs are idempotent.
func (a *CatalogAdapter) Fetch(ctx context.Context) ([]intel.RawItem, error) {
	feed, err := a.download(ctx)
	if err != nil {
		return nil, err
	}

	entries := feed.Vulnerabilities
	if a.limit > 0 && len(entries) > a.limit {
		entries = entries[:a.limit]
	}

	items := make([]intel.RawItem, 0, len(entries))
	for _, e := range entries {
		if e.CVEID == "" {
			a.logger.Debug("skipping catalog entry without an id", zap.String("name", e.VulnerabilityName))
			continue
		}
		items = append(items, a.item(e))
	}
	a.logger.Info("catalog fetched", zap.Int("entries", len(items)), zap.String("version", feed.CatalogVersion))
	return items, nil
}

func (a *CatalogAdapter) download(ctx context.Context) (kevFeed, error) {
	var lastErr error
	for _, u := range a.urls {
		var feed kevFeed
		if err := a.client.GetJSON(ctx, u, nil, &feed); err != nil {
			a.logger.Warn("catalog feed url failed, trying next", zap.String("url", u), zap.Error(err))
			lastErr = err
			continue
		}
		if len(feed.Vulnerabilities) == 0 {
			lastErr = fmt.Errorf("catalog feed %s: empty vulnerability list", u)
			continue
		}
		return feed, nil
	}
	return kevFeed{}, fmt.Errorf("all catalog feed urls failed: %w", lastErr)
}

func (a *CatalogAdapter) item(e kevEntry) intel.RawItem {
	// Every title leads with the CVE id. The catalog's own name for the
	// flaw replaces the vendor/product pair when present.
	title := fmt.Sprintf("%s - %s/%s", e.CVEID, e.VendorProject, e.Product)
	if e.VulnerabilityName != "" {
		title = fmt.Sprintf("%s - %s", e.CVEID, e.VulnerabilityName)
	}

	desc := e.ShortDescription
	if e.RequiredAction != "" {
		desc = strings.TrimSpace(desc + " Required action: " + e.RequiredAction)
	}
	if strings.EqualFold(e.KnownRansomware, "known") {
		desc += " Known to be used in ransomware campaigns."
	}

	return intel.RawItem{
		NaturalKey: e.CVEID,
		Title:      title,
		URL:        a.pageURL,
		Content:    a.budget.summarize(desc),
		Published:  parseDate([]string{"2006-01-02"}, e.DateAdded),
		Weaknesses: e.CWEs,
		CVEs:       []string{e.CVEID},
	}
}
