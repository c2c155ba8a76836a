package intel

import (
	"regexp"
	"sort"
	"strings"
)

var cveRe = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,7}\b`)

// ExtractCVEs returns the unique CVE identifiers found in text,
// upper-cased and sorted.
func ExtractCVEs(text string) []string {
	if text == "" {
		return nil
	}
	matches := cveRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.ToUpper(m)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
