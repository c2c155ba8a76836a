package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// msrcBanned drops embedded widget and emoji bootstrap fragments that
// survive tag stripping on msrc.microsoft.com pages.
var msrcBanned = []string{
	"wpemojiSettings",
	"s.w.org/images/core/emoji",
	"SVGAnimated",
}

// MSRCStrategy extracts posts from the Microsoft Security Response Center
// blog, which wraps the article body in div.blog-post-content.
type MSRCStrategy struct{}

// Name identifies the strategy.
func (MSRCStrategy) Name() string { return "msrc" }

// Extract takes the first few paragraphs of the post body. The on-page
// title is ignored; feed entries carry a cleaner one.
func (MSRCStrategy) Extract(htmlDoc, _ string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return Result{}, err
	}
	body := doc.Find("div.blog-post-content").First()
	if body.Length() == 0 {
		return Result{}, ErrNoContent
	}
	lines := goodLines(body, 3, msrcBanned)
	if len(lines) == 0 {
		return Result{}, ErrNoContent
	}
	return Result{Text: strings.Join(lines, " ")}, nil
}

// KrebsStrategy extracts posts from krebsonsecurity.com, a WordPress site
// whose article lives under a site-content container.
type KrebsStrategy struct{}

// Name identifies the strategy.
func (KrebsStrategy) Name() string { return "krebs" }

// Extract takes the first few paragraphs of the article, skipping the
// WordPress emoji bootstrap script text.
func (KrebsStrategy) Extract(htmlDoc, _ string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if err != nil {
		return Result{}, err
	}
	article := doc.Find("#content.site-content article").First()
	if article.Length() == 0 {
		article = doc.Find("#primary.site-content article").First()
	}
	if article.Length() == 0 {
		return Result{}, ErrNoContent
	}
	lines := goodLines(article, 3, msrcBanned)
	if len(lines) == 0 {
		return Result{}, ErrNoContent
	}
	title := CleanText(article.Find("h1.entry-title").First().Text())
	return Result{Title: title, Text: strings.Join(lines, " ")}, nil
}
