// Package normalize turns adapter output into canonical records with
// stable identities and role annotations.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ctisec/ctihub/internal/intel"
)

// maxReferences bounds the reference list carried on a record.
const maxReferences = 10

// Builder assembles canonical records from raw adapter items.
type Builder struct {
	clock intel.Clock
}

// NewBuilder returns a Builder using clock for timestamp defaulting.
func NewBuilder(clock intel.Clock) *Builder {
	return &Builder{clock: clock}
}

// Record normalizes one raw item from src. The same item always yields
// the same SourceID, which the store uses as its upsert key.
func (b *Builder) Record(src intel.Source, item intel.RawItem) intel.Record {
	minRole := item.MinRole
	if minRole == "" {
		minRole = intel.SourceRoles[src]
	}

	ts := item.Published
	if ts.IsZero() {
		ts = b.clock.Now()
	}

	rec := intel.Record{
		SourceID:     SourceID(src, item),
		Source:       src,
		Title:        strings.TrimSpace(item.Title),
		URL:          item.URL,
		Content:      strings.TrimSpace(item.Content),
		Timestamp:    ts.UTC(),
		MinRole:      minRole,
		AllowedRoles: intel.RolesAtOrAbove(minRole),
		Origin:       Origin(item.URL),
		CVEs:         mergeCVEs(item),
		Severity:     item.Severity,
		Weaknesses:   dedupeSorted(item.Weaknesses),
		References:   capRefs(item.References),
		ListingID:    item.ListingID,
	}
	return rec
}

// FeedItem normalizes one user-feed entry into its owner-scoped form.
func (b *Builder) FeedItem(feedURL string, item intel.RawItem) intel.FeedItem {
	ts := item.Published
	if ts.IsZero() {
		ts = b.clock.Now()
	}
	return intel.FeedItem{
		Owner:     item.Owner,
		FeedURL:   feedURL,
		URL:       item.URL,
		Title:     strings.TrimSpace(item.Title),
		Content:   strings.TrimSpace(item.Content),
		Timestamp: ts.UTC(),
	}
}

// SourceID derives the stable upsert key for an item. Sources with a
// natural key (vulnerability id, listing id) use it directly; everything
// else falls back to a digest of the canonical URL. User items carry the
// owner so two accounts subscribing to the same feed never collide.
func SourceID(src intel.Source, item intel.RawItem) string {
	if src == intel.SourceUser {
		return fmt.Sprintf("%s:%s:%s", src, item.Owner, Digest(item.URL))
	}
	if item.NaturalKey != "" {
		return fmt.Sprintf("%s:%s", src, item.NaturalKey)
	}
	return fmt.Sprintf("%s:%s", src, Digest(item.URL))
}

// Digest returns the hex SHA-1 of s, the historical link-key scheme.
func Digest(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Origin extracts the host from a URL, empty when unparseable.
func Origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// mergeCVEs combines adapter-provided identifiers with any found in the
// title and content text.
func mergeCVEs(item intel.RawItem) []string {
	found := intel.ExtractCVEs(item.Title + " " + item.Content)
	if len(item.CVEs) == 0 {
		return found
	}
	return dedupeSorted(append(append([]string{}, item.CVEs...), found...))
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

func capRefs(refs []string) []string {
	out := dedupeSorted(refs)
	if len(out) > maxReferences {
		out = out[:maxReferences]
	}
	return out
}
