// Package extract turns noisy HTML into denoised text and short
// extractive summaries.
package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	onlyPunctRe  = regexp.MustCompile(`^\W+$`)
	braceNoiseRe = regexp.MustCompile(`[\{\}\(\)\[\]\|\/\\]{3,}`)
	jsSnippetRe  = regexp.MustCompile(`(?i)(?:^|[\s;])!?\s*function\s*\(`)
	brandTailRe  = regexp.MustCompile(`(?i)\s*\|\s*MSRC\s*Blog\s*\|\s*Microsoft\s*Security\s*Response\s*Center.*$`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
)

// boilerplate keywords that disqualify a line as article text.
var denyKeywords = []string{
	"cookie",
	"privacy",
	"terms",
	"navigation",
	"skip to content",
	"microsoft security response center",
	"msrc blog",
	"rss",
	"search",
}

// CleanText decodes HTML entities and collapses whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

// StripNoise removes bracket runs and squeezes repeated spaces.
func StripNoise(s string) string {
	if s == "" {
		return ""
	}
	s = braceNoiseRe.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StripTags removes markup and normalizes the remaining text. Last-resort
// extraction for documents nothing else could handle.
func StripTags(htmlDoc string) string {
	return CleanText(tagRe.ReplaceAllString(htmlDoc, " "))
}

// CutBrandTail removes known brand/site suffixes from titles.
func CutBrandTail(s string) string {
	return strings.TrimSpace(brandTailRe.ReplaceAllString(s, ""))
}

// IsHumanLine reports whether a line looks like article prose rather than
// navigation, cookie banners, or embedded script.
func IsHumanLine(t string) bool {
	if len(t) < 6 {
		return false
	}
	if onlyPunctRe.MatchString(t) {
		return false
	}
	if braceNoiseRe.MatchString(t) {
		return false
	}
	if jsSnippetRe.MatchString(t) {
		return false
	}
	low := strings.ToLower(t)
	for _, k := range denyKeywords {
		if strings.Contains(low, k) {
			return false
		}
	}
	return true
}
