package web_fetch

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

const minFallbackParagraphs = 5

// Extract turns a page into plain text. It prefers the readability article body and
// falls back to the page's paragraphs, then to all of its visible text.
func Extract(rawHTML, pageURL string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	if text := articleText(rawHTML, pageURL); text != "" {
		return text
	}
	return fallbackText(rawHTML)
}

func articleText(rawHTML, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return ""
	}
	return strings.Join(nonEmptyTexts(doc.Find("h1, h2, h3, p, li")), "\n\n")
}

func fallbackText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find("script, style, header, footer, nav, aside, form, button").Remove()

	if paragraphs := nonEmptyTexts(doc.Find("p")); len(paragraphs) > minFallbackParagraphs {
		return strings.Join(paragraphs, "\n\n")
	}

	var lines []string
	for _, n := range doc.Nodes {
		lines = collectText(n, lines)
	}
	return strings.Join(lines, "\n")
}

func nonEmptyTexts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// collectText walks n depth-first and appends every non-blank text node, trimmed.
func collectText(n *html.Node, acc []string) []string {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			acc = append(acc, t)
		}
		return acc
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		acc = collectText(c, acc)
	}
	return acc
}

// DomainFromURL returns the host of u without a leading "www.".
func DomainFromURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}
