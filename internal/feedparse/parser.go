// Package feedparse converts raw source payloads into normalized crawl
// inputs, per source-kind grammar.
package feedparse

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

const (
	defaultFeedItemCap     = 5
	defaultWebpageMaxChars = 4000
	webpageSummaryChars    = 500
	// Bodies shorter than this get the source's own name prefixed so the
	// classifier has some context to work with.
	minPlausibleBodyChars = 200
)

var (
	tagExpr        = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceExpr = regexp.MustCompile(`\s+`)
)

// Config controls parser limits.
type Config struct {
	FeedItemCap     int
	WebpageMaxChars int
}

// Parser extracts crawl inputs from feed and webpage payloads.
type Parser struct {
	cfg Config
}

// New builds a Parser, applying defaults for zero limits.
func New(cfg Config) *Parser {
	if cfg.FeedItemCap <= 0 {
		cfg.FeedItemCap = defaultFeedItemCap
	}
	if cfg.WebpageMaxChars <= 0 {
		cfg.WebpageMaxChars = defaultWebpageMaxChars
	}
	return &Parser{cfg: cfg}
}

// Parse dispatches on the source kind. Search kinds are handled by the
// social client, not here.
func (p *Parser) Parse(payload string, src regwatch.SourceDescriptor) ([]regwatch.CrawlInput, error) {
	switch src.Kind {
	case regwatch.SourceKindFeed:
		return p.parseFeed(payload, src)
	case regwatch.SourceKindWebpage:
		return p.parseWebpage(payload, src)
	default:
		return nil, fmt.Errorf("unsupported source kind %q", src.Kind)
	}
}

// parseFeed extracts RSS <item> and Atom <entry> blocks via structural
// matching. Items are capped per feed so one noisy source cannot dominate
// a pass, and (url, title) duplicates within the feed collapse to one input.
func (p *Parser) parseFeed(payload string, src regwatch.SourceDescriptor) ([]regwatch.CrawlInput, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse feed payload: %w", err)
	}

	blocks := doc.Find("item")
	if blocks.Length() == 0 {
		blocks = doc.Find("entry")
	}

	inputs := make([]regwatch.CrawlInput, 0, p.cfg.FeedItemCap)
	seen := make(map[string]struct{})

	blocks.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := cleanText(s.Find("title").First().Text())
		link := extractLink(s)
		if title == "" || link == "" {
			return true
		}
		resolved := resolveURL(src.URL, link)
		if resolved == "" {
			return true
		}

		key := resolved + "::" + title
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}

		summary := firstNonEmptyText(s, "description", "summary", "content")
		published := extractPublished(s)

		inputs = append(inputs, regwatch.CrawlInput{
			Title:       title,
			URL:         resolved,
			Summary:     summary,
			RawText:     summary,
			PublishedAt: published,
			Source:      src,
			SourceURL:   src.URL,
			ItemURL:     resolved,
		})
		return len(inputs) < p.cfg.FeedItemCap
	})

	return inputs, nil
}

// parseWebpage synthesizes a single crawl input from a page's title and
// stripped body text.
func (p *Parser) parseWebpage(payload string, src regwatch.SourceDescriptor) ([]regwatch.CrawlInput, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse webpage payload: %w", err)
	}

	title := cleanText(doc.Find("title").First().Text())
	if title == "" {
		title = src.Name
	}
	if title == "" {
		return nil, fmt.Errorf("webpage has no title and source has no name")
	}

	doc.Find("script, style, noscript").Remove()
	body := cleanText(doc.Find("body").Text())
	if body == "" {
		body = stripMarkup(payload)
	}
	if len(body) < minPlausibleBodyChars {
		body = strings.TrimSpace(src.Name + " (" + src.Jurisdiction + "): " + body)
	}
	body = truncate(body, p.cfg.WebpageMaxChars)
	summary := truncate(body, webpageSummaryChars)

	return []regwatch.CrawlInput{{
		Title:     title,
		URL:       src.URL,
		Summary:   summary,
		RawText:   body,
		Source:    src,
		SourceURL: src.URL,
		ItemURL:   src.URL,
	}}, nil
}

// extractLink recovers an item's link. The HTML parser treats <link> as a
// void element, so RSS link text lands in the following sibling node; Atom
// carries the target in an href attribute instead.
func extractLink(s *goquery.Selection) string {
	link := s.Find("link").First()
	if link.Length() == 0 {
		return ""
	}
	if text := strings.TrimSpace(link.Text()); text != "" {
		return text
	}
	if href, ok := link.Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href)
	}
	if node := link.Get(0); node != nil {
		for sib := node.NextSibling; sib != nil; sib = sib.NextSibling {
			if sib.Type != xhtml.TextNode {
				break
			}
			if text := strings.TrimSpace(sib.Data); text != "" {
				return text
			}
		}
	}
	return ""
}

func firstNonEmptyText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if text := cleanText(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

var publishedLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"2006-01-02",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

func extractPublished(s *goquery.Selection) *time.Time {
	raw := strings.TrimSpace(s.Find("pubdate").First().Text())
	if raw == "" {
		raw = strings.TrimSpace(s.Find("published").First().Text())
	}
	if raw == "" {
		raw = strings.TrimSpace(s.Find("updated").First().Text())
	}
	if raw == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// cleanText decodes HTML entities, strips markup, and collapses whitespace.
func cleanText(text string) string {
	return stripMarkup(html.UnescapeString(text))
}

func stripMarkup(text string) string {
	text = tagExpr.ReplaceAllString(text, " ")
	text = whitespaceExpr.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// truncate caps s at max bytes without splitting a multibyte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// resolveURL resolves ref against base, returning an absolute URL or "".
func resolveURL(base, ref string) string {
	parsedRef, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if parsedRef.IsAbs() {
		return parsedRef.String()
	}
	parsedBase, err := url.Parse(base)
	if err != nil || !parsedBase.IsAbs() {
		return ""
	}
	return parsedBase.ResolveReference(parsedRef).String()
}
