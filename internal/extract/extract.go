package extract

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Result is the outcome of one extraction attempt.
type Result struct {
	Title string
	Text  string
}

// Strategy is one way of isolating the main content of an HTML document.
// Implementations return an error when they cannot produce usable text so
// the chain can move on to the next strategy.
type Strategy interface {
	Name() string
	Extract(htmlDoc string, pageURL string) (Result, error)
}

// ErrNoContent signals that a strategy found nothing usable.
var ErrNoContent = errors.New("extract: no usable content")

// contentSelectors are likely main-content containers, common CMS classes
// included.
var contentSelectors = []string{
	"article",
	"main",
	".entry-content",
	".post-content",
	".article-content",
	".content",
	"#content",
	".post-body",
	".blog-post-content",
}

// Chain tries strategies in order and falls back to a whole-document tag
// strip, so extraction always terminates with some text.
type Chain struct {
	strategies []Strategy
}

// NewChain builds the default chain: readability-style article isolation,
// then container-selector heuristics, then raw text.
func NewChain() *Chain {
	return &Chain{strategies: []Strategy{
		ReadabilityStrategy{},
		SelectorStrategy{Selectors: contentSelectors},
	}}
}

// NewChainWith prepends extra strategies to the default chain, letting a
// site-specific extractor run first.
func NewChainWith(first ...Strategy) *Chain {
	c := NewChain()
	c.strategies = append(append([]Strategy{}, first...), c.strategies...)
	return c
}

// Extract runs the chain. The returned text is denoised; the title has
// brand suffixes removed. Never fails: the terminal fallback strips tags
// from the whole document.
func (c *Chain) Extract(htmlDoc, pageURL string) Result {
	var title string
	for _, s := range c.strategies {
		res, err := s.Extract(htmlDoc, pageURL)
		if err == nil && res.Text != "" {
			res.Title = CutBrandTail(res.Title)
			return res
		}
		if title == "" && res.Title != "" {
			title = res.Title
		}
	}
	text := CutBrandTail(StripNoise(StripTags(htmlDoc)))
	if title == "" {
		title = documentTitle(htmlDoc)
	}
	return Result{Title: CutBrandTail(title), Text: text}
}

// ReadabilityStrategy isolates the main article area and title using the
// readability algorithm.
type ReadabilityStrategy struct{}

// Name identifies the strategy.
func (ReadabilityStrategy) Name() string { return "readability" }

// Extract runs readability over the document.
func (ReadabilityStrategy) Extract(htmlDoc, pageURL string) (Result, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(htmlDoc), u)
	if err != nil {
		return Result{}, err
	}
	title := CleanText(article.Title)
	text := collectLines(article.Content)
	if text == "" {
		text = StripNoise(CleanText(article.TextContent))
	}
	if text == "" {
		return Result{Title: title}, ErrNoContent
	}
	return Result{Title: title, Text: text}, nil
}

// SelectorStrategy scans a fixed list of likely content containers and
// collects paragraph/list-item text.
type SelectorStrategy struct {
	Selectors []string
}

// Name identifies the strategy.
func (SelectorStrategy) Name() string { return "selectors" }

// Extract collects human-looking lines from the configured containers.
func (s SelectorStrategy) Extract(htmlDoc, _ string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return Result{}, err
	}
	title := CleanText(doc.Find("title").First().Text())

	var lines []string
	for _, sel := range s.Selectors {
		doc.Find(sel).Each(func(_ int, container *goquery.Selection) {
			lines = append(lines, goodLines(container, -1, nil)...)
		})
	}
	if len(lines) == 0 {
		return Result{Title: title}, ErrNoContent
	}
	return Result{Title: title, Text: StripNoise(strings.Join(lines, " "))}, nil
}

// collectLines pulls denoised paragraph/list text out of an HTML fragment.
func collectLines(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template").Remove()
	lines := goodLines(doc.Selection, -1, nil)
	return StripNoise(strings.Join(lines, " "))
}

// goodLines extracts p/li text under node, keeping only human-looking
// lines. A non-negative max caps the number of lines; banned substrings
// drop a line outright.
func goodLines(node *goquery.Selection, max int, banned []string) []string {
	var lines []string
	node.Find("p, li").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := CleanText(p.Text())
		for _, b := range banned {
			if strings.Contains(t, b) {
				return true
			}
		}
		t = CutBrandTail(StripNoise(t))
		if IsHumanLine(t) {
			lines = append(lines, t)
		}
		return max < 0 || len(lines) < max
	})
	return lines
}

func documentTitle(htmlDoc string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return ""
	}
	return CleanText(doc.Find("title").First().Text())
}
