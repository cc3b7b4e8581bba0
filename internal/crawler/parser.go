package crawler

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Parser extracts links from HTML pages.
//
// Design decision: Links are resolved against the base URL of the blog, not
// against the URL of the page they appear on. Write-up blogs use root-relative
// links almost everywhere, and resolving against one base keeps the prefix
// check in Spider a plain string comparison.
type Parser struct {
	base *url.URL
}

// ParseResult contains the data extracted from a page.
type ParseResult struct {
	// Title is the text of the <title> element, trimmed.
	Title string

	// Links are the absolute targets of every <a href>, in document order,
	// without duplicates.
	Links []string
}

// NewParser creates a parser that resolves links against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	return &Parser{base: u}, nil
}

// Parse reads an HTML document and extracts its title and links.
func (p *Parser) Parse(r io.Reader) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &ParseResult{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Links: make([]string, 0),
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link, ok := p.resolve(href)
		if !ok || seen[link] {
			return
		}
		seen[link] = true
		result.Links = append(result.Links, link)
	})

	return result, nil
}

// resolve turns href into an absolute URL. Non-navigational hrefs
// (javascript:, mailto:, tel:, data:, bare fragments) are rejected.
func (p *Parser) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return p.base.ResolveReference(ref).String(), true
}
