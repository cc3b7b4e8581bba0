package writeup

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/ctfindex/internal/model"
)

// Classifier builds records from write-up URLs.
type Classifier struct {
	rules  []Rule
	logger *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRules replaces the competition rules. Rules are evaluated in order.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		c.rules = rules
	}
}

// WithLogger sets the logger used to report degraded records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// NewClassifier creates a Classifier with DefaultRules.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		rules:  DefaultRules,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Parse classifies rawURL. It never fails: when the URL cannot be classified
// the error is logged and a placeholder record is returned.
func (c *Classifier) Parse(rawURL string) model.Record {
	record, err := c.Classify(rawURL)
	if err != nil {
		c.logger.Warn("cannot parse write-up URL", "url", rawURL, "error", err)
		return model.NewPlaceholderRecord(rawURL)
	}
	return record
}

// ParseAll classifies every URL, preserving order.
func (c *Classifier) ParseAll(urls []string) []model.Record {
	records := make([]model.Record, 0, len(urls))
	for _, u := range urls {
		records = append(records, c.Parse(u))
	}
	return records
}

// Classify is the strict form of Parse.
//
// The year is the first path segment. The competition is resolved with the
// rules; when no rule matches it is the second path segment verbatim. The
// category is the second-to-last segment when the path has more than two
// segments. The title is the last segment with hyphens turned into spaces,
// title-cased.
func (c *Classifier) Classify(rawURL string) (model.Record, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	segments := pathSegments(rawPath(u))
	if len(segments) == 0 {
		return model.Record{}, fmt.Errorf("%w: empty path", ErrTooFewSegments)
	}

	record := model.Record{
		Year:     segments[0],
		Category: model.NotAvailable,
		URL:      rawURL,
	}

	rule, matched := match(c.rules, rawURL)
	switch {
	case matched:
		record.CTF = rule.Name
	case len(segments) >= 2:
		record.CTF = segments[1]
	default:
		return model.Record{}, fmt.Errorf("%w: no competition segment in %q", ErrTooFewSegments, u.Path)
	}

	if len(segments) > 2 {
		record.Category = segments[len(segments)-2]
	} else if matched && rule.RequireCategory {
		return model.Record{}, fmt.Errorf("%w: %s write-up needs a category in %q", ErrTooFewSegments, rule.Name, u.Path)
	}

	record.Title = formatTitle(segments[len(segments)-1])

	return record, nil
}

// rawPath returns the path of u as it was written, without percent-decoding,
// so "%20" stays in the segment and "%2F" doesn't split it.
func rawPath(u *url.URL) string {
	if u.RawPath != "" {
		return u.RawPath
	}
	return u.EscapedPath()
}

// formatTitle turns a URL slug into a title: "baby-heap" becomes "Baby Heap".
//
// A word is a run of cased letters, so anything else starts a new word:
// "part2flag" becomes "Part2Flag" and "foo_bar" becomes "Foo_Bar".
// A Caser keeps state between calls, so a new one is built each time.
func formatTitle(slug string) string {
	title := cases.Title(language.Und)
	s := strings.ReplaceAll(slug, "-", " ")

	var b strings.Builder
	b.Grow(len(s))
	start := -1
	for i, r := range s {
		if isCased(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			b.WriteString(title.String(s[start:i]))
			start = -1
		}
		b.WriteRune(r)
	}
	if start >= 0 {
		b.WriteString(title.String(s[start:]))
	}
	return b.String()
}

func isCased(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
}

// pathSegments splits a URL path on "/" after trimming leading and trailing
// slashes. Empty segments in the middle are kept.
func pathSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
