package extract

import (
	"strings"
	"unicode"
)

// DefaultSummaryChars and DefaultSummarySentences bound summaries when the
// caller passes zero values.
const (
	DefaultSummaryChars     = 260
	DefaultSummarySentences = 3
)

// Summarize builds a short extractive summary from denoised content. The
// result holds at most maxSents human-looking sentences and is truncated
// to maxChars with an ellipsis marker when still over budget. Pure
// function: deterministic given its inputs.
func Summarize(text string, maxChars, maxSents int) string {
	if maxChars <= 0 {
		maxChars = DefaultSummaryChars
	}
	if maxSents <= 0 {
		maxSents = DefaultSummarySentences
	}
	text = StripNoise(CleanText(text))
	if text == "" {
		return ""
	}
	brief := firstGoodSentences(text, maxSents)
	if brief == "" {
		brief = text
	}
	// The budget counts characters, so truncate on rune boundaries.
	if runes := []rune(brief); len(runes) > maxChars {
		brief = strings.TrimRight(string(runes[:maxChars]), " ") + "..."
	}
	return brief
}

// firstGoodSentences picks the first few human-looking sentences, falling
// back to the first raw sentence when none qualify.
func firstGoodSentences(text string, maxSents int) string {
	sents := SplitSentences(text)
	good := make([]string, 0, maxSents)
	for _, s := range sents {
		if IsHumanLine(s) {
			good = append(good, s)
			if len(good) == maxSents {
				break
			}
		}
	}
	if len(good) > 0 {
		return strings.Join(good, " ")
	}
	if len(sents) > 0 {
		return sents[0]
	}
	return ""
}

// sentenceFinal covers Latin and CJK sentence-final punctuation.
func sentenceFinal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// SplitSentences splits text on sentence-final punctuation followed by
// whitespace, keeping the terminator with its sentence.
func SplitSentences(text string) []string {
	var (
		out  []string
		cur  strings.Builder
		prev rune
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, r := range text {
		if unicode.IsSpace(r) && sentenceFinal(prev) {
			flush()
			prev = r
			continue
		}
		cur.WriteRune(r)
		prev = r
	}
	flush()
	return out
}
