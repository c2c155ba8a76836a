// Package source implements the adapters that pull items from each
// upstream intelligence source.
package source

import (
	"strings"
	"time"

	"github.com/ctisec/ctihub/internal/extract"
)

// Budget bounds the extractive summary an adapter produces per item.
type Budget struct {
	MaxChars     int
	MaxSentences int
}

// summarize applies the budget with package defaults for zero values.
func (b Budget) summarize(text string) string {
	return extract.Summarize(text, b.MaxChars, b.MaxSentences)
}

// absoluteHTTP reports whether a feed entry link is an absolute http or
// https URL. Feeds occasionally carry relative or mailto links and those
// entries are skipped.
func absoluteHTTP(link string) bool {
	return strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")
}

// parseDate parses the date layouts upstream sources emit, zero time on
// failure so the normalizer falls back to ingestion time.
func parseDate(layouts []string, s string) time.Time {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
