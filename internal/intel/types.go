// Package intel defines core types shared across the ingestion pipeline.
package intel

import "time"

// Source identifies one upstream content source.
type Source string

// Sources crawled by the pipeline, in priority order.
const (
	SourceCatalog     Source = "catalog"
	SourceKrebsBlog   Source = "krebs_blog"
	SourceMSRCBlog    Source = "msrc_blog"
	SourceVulnDB      Source = "vulndb"
	SourceExploitFeed Source = "exploit_feed"
	SourceUser        Source = "user"
)

// CVSS is the severity sub-object parsed from vulnerability database metrics.
type CVSS struct {
	Version             string  `json:"version,omitempty"`
	BaseScore           float64 `json:"base_score"`
	BaseSeverity        string  `json:"base_severity,omitempty"`
	VectorString        string  `json:"vector_string,omitempty"`
	ExploitabilityScore float64 `json:"exploitability_score,omitempty"`
	ImpactScore         float64 `json:"impact_score,omitempty"`
}

// RawItem is one item yielded by a source adapter before normalization.
// Content is already extracted and summarized; the normalizer derives
// identity, roles and cross-cutting enrichment from it.
type RawItem struct {
	// NaturalKey is a source-provided stable identifier (vulnerability id,
	// listing id). Empty means the canonical URL digest is used instead.
	NaturalKey string
	Title      string
	URL        string
	Content    string
	Published  time.Time

	// MinRole overrides the role policy table when set. Only the user
	// adapter sets it, from the subscription configuration.
	MinRole Role

	// Owner scopes user-feed items to the subscribing account.
	Owner string

	// Enrichment carried through from source-specific payloads.
	Severity   *CVSS
	Weaknesses []string
	References []string
	ListingID  string
	CVEs       []string
}

// Record is the canonical, persisted representation of one ingested item.
// SourceID is the upsert key and, with Source, immutable once written.
type Record struct {
	SourceID     string    `json:"source_id"`
	Source       Source    `json:"source"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	MinRole      Role      `json:"min_role"`
	AllowedRoles []Role    `json:"allowed_roles"`
	Origin       string    `json:"origin"`

	CVEs       []string `json:"cves,omitempty"`
	Severity   *CVSS    `json:"severity,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
	References []string `json:"references,omitempty"`
	ListingID  string   `json:"listing_id,omitempty"`
}

// Subscription is one user-owned feed, unique on (Owner, URL).
type Subscription struct {
	ID          int64      `json:"id"`
	Owner       string     `json:"owner"`
	URL         string     `json:"url"`
	MinRole     Role       `json:"min_role"`
	Enabled     bool       `json:"enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastCrawled *time.Time `json:"last_crawled,omitempty"`
	LastStatus  string     `json:"last_status,omitempty"`
}

// FeedItem is the owner-scoped analog of Record, unique on (Owner, URL).
// Visibility is implicitly owner-only, so it carries no role fields.
type FeedItem struct {
	Owner     string    `json:"owner"`
	FeedURL   string    `json:"feed_url"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SourceReport captures the outcome of one adapter within a run.
type SourceReport struct {
	Source   string `json:"source"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Matched  int    `json:"matched"`
	Error    string `json:"error,omitempty"`
}

// FetchReport aggregates one orchestrator run.
type FetchReport struct {
	New     int            `json:"new"`
	Total   int            `json:"total"`
	Sources []SourceReport `json:"sources,omitempty"`
}
