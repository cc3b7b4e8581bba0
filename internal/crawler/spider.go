package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html/charset"

	"github.com/nao1215/ctfindex/internal/model"
)

// DefaultUserAgent is sent with every request unless WithUserAgent overrides it.
const DefaultUserAgent = "ctfindex (+https://github.com/nao1215/ctfindex)"

// DefaultMaxBodySize limits how much of a response body is parsed (10MB).
const DefaultMaxBodySize int64 = 10 * 1024 * 1024

// Spider walks a write-up blog from a set of seed pages and collects the
// URLs that look like write-ups.
//
// A Spider holds the state of one traversal (visited set, outcomes) and must
// not run two traversals at the same time. Call Reset to reuse it.
type Spider struct {
	// client is the connection-reuse handle for every fetch of the traversal.
	client *http.Client

	// baseURL is the prefix every explored or collected URL must share.
	baseURL string

	// userAgent is the User-Agent header to use.
	userAgent string

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64

	// maxPages limits the number of fetched pages. 0 means unlimited.
	maxPages int

	// robots is consulted before each fetch when set.
	robots *RobotsPolicy

	logger *slog.Logger

	// mutex protects the fields below so Stats can be read during a traversal.
	mutex    sync.Mutex
	visited  map[string]bool
	visits   []model.Visit
	failures []model.FetchFailure
	writeups int
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		s.userAgent = ua
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) SpiderOption {
	return func(s *Spider) {
		s.maxBodySize = size
	}
}

// WithMaxPages caps the number of pages fetched in one traversal.
// 0 (the default) means the traversal runs until the frontier is empty.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithRobotsPolicy makes the spider skip pages disallowed by robots.txt.
func WithRobotsPolicy(p *RobotsPolicy) SpiderOption {
	return func(s *Spider) {
		s.robots = p
	}
}

// WithLogger sets the logger used for progress and fetch errors.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider for the blog rooted at baseURL.
//
// Design decision: We require an external client because:
//  1. Proxy and header injection are handled by the transport package
//  2. Tests can point the spider at an httptest server
func NewSpider(client *http.Client, baseURL string, opts ...SpiderOption) *Spider {
	s := &Spider{
		client:      client,
		baseURL:     baseURL,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
		visited:     make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Traverse explores the blog breadth-first from seeds and returns the
// write-up URLs in discovery order, without duplicates.
//
// Pages that cannot be fetched are logged and recorded (see Failures) and the
// traversal continues. The returned error is non-nil only when the seeds are
// invalid or ctx is cancelled; in the latter case the write-ups found so far
// are returned with ctx.Err().
func (s *Spider) Traverse(ctx context.Context, seeds []string) ([]string, error) {
	base, err := s.validate(seeds)
	if err != nil {
		return nil, err
	}

	queue := newFrontier(seeds)
	writeups := make([]string, 0)
	found := make(map[string]bool)

	for queue.len() > 0 {
		select {
		case <-ctx.Done():
			return writeups, ctx.Err()
		default:
		}

		if s.maxPages > 0 && s.pagesVisited() >= s.maxPages {
			s.logger.Info("page limit reached", "max_pages", s.maxPages, "pending", queue.len())
			break
		}

		current := queue.pop()
		if s.isVisited(current) {
			continue
		}
		s.markVisited(current)

		if s.robots != nil && !s.robots.Allowed(ctx, current) {
			s.logger.Debug("disallowed by robots.txt", "url", current)
			continue
		}

		s.logger.Info("exploring", "url", current)
		links, err := s.fetchLinks(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return writeups, ctx.Err()
			}
			s.logger.Warn("cannot retrieve page", "url", current, "error", err)
			s.recordFailure(current, err)
			continue
		}

		for _, link := range links {
			if !withinBase(link, base) {
				continue
			}

			if IsWriteupURL(link) {
				if !found[link] {
					found[link] = true
					writeups = append(writeups, link)
					s.recordWriteup()
					s.logger.Info("write-up found", "url", link)
				}
				continue
			}

			if s.isVisited(link) || queue.contains(link) {
				continue
			}
			if containsSeed(link, seeds) {
				queue.push(link)
			}
		}
	}

	return writeups, nil
}

// validate checks the base URL and seeds before any request is sent and
// returns the parsed base URL.
func (s *Spider) validate(seeds []string) (*url.URL, error) {
	base, err := url.Parse(s.baseURL)
	if err != nil || !isHTTP(base) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, s.baseURL)
	}

	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}

	for _, seed := range seeds {
		u, err := url.Parse(seed)
		if err != nil || !isHTTP(u) {
			return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidSeed, seed)
		}
		if !withinBase(seed, base) {
			return nil, fmt.Errorf("%w: %q is outside %s", ErrInvalidSeed, seed, s.baseURL)
		}
	}
	return base, nil
}

// withinBase reports whether link has the scheme and host of base and a path
// starting with the base path. Comparing the parsed host rejects look-alike
// hosts such as "blog.example.com.evil.com".
func withinBase(link string, base *url.URL) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Scheme == base.Scheme &&
		strings.EqualFold(u.Host, base.Host) &&
		strings.HasPrefix(u.EscapedPath(), base.EscapedPath())
}

// isHTTP reports whether u is an absolute http or https URL with a host.
func isHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// containsSeed reports whether link contains one of the seed URLs.
// This keeps the traversal inside the sections the seeds point at.
func containsSeed(link string, seeds []string) bool {
	for _, seed := range seeds {
		if strings.Contains(link, seed) {
			return true
		}
	}
	return false
}

// fetchLinks downloads pageURL and returns the links found in it, resolved
// against the base URL.
func (s *Spider) fetchLinks(ctx context.Context, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordVisit(model.Visit{URL: pageURL, Error: err.Error()})
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
		s.recordVisit(model.Visit{URL: pageURL, StatusCode: resp.StatusCode, Error: err.Error()})
		return nil, err
	}

	body := io.LimitReader(resp.Body, s.maxBodySize)
	reader, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	switch {
	case errors.Is(err, io.EOF):
		// Empty body.
		s.recordVisit(model.Visit{URL: pageURL, StatusCode: resp.StatusCode})
		return nil, nil
	case err != nil:
		err = fmt.Errorf("failed to read body: %w", err)
		s.recordVisit(model.Visit{URL: pageURL, StatusCode: resp.StatusCode, Error: err.Error()})
		return nil, err
	}

	parser, err := NewParser(s.baseURL)
	if err != nil {
		return nil, err
	}
	result, err := parser.Parse(reader)
	if err != nil {
		s.recordVisit(model.Visit{URL: pageURL, StatusCode: resp.StatusCode, Error: err.Error()})
		return nil, err
	}

	s.recordVisit(model.Visit{URL: pageURL, StatusCode: resp.StatusCode})
	return result.Links, nil
}

// isVisited checks if a URL has been visited.
func (s *Spider) isVisited(pageURL string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.visited[pageURL]
}

// markVisited marks a URL as visited.
func (s *Spider) markVisited(pageURL string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visited[pageURL] = true
}

func (s *Spider) pagesVisited() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.visits)
}

func (s *Spider) recordVisit(v model.Visit) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visits = append(s.visits, v)
}

func (s *Spider) recordFailure(pageURL string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failures = append(s.failures, model.FetchFailure{URL: pageURL, Message: err.Error()})
}

func (s *Spider) recordWriteup() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.writeups++
}

// Visits returns one entry per fetched page, in fetch order.
func (s *Spider) Visits() []model.Visit {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]model.Visit, len(s.visits))
	copy(out, s.visits)
	return out
}

// Failures returns the pages that could not be retrieved, in fetch order.
func (s *Spider) Failures() []model.FetchFailure {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]model.FetchFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Reset clears the spider's state, allowing it to be reused.
func (s *Spider) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visited = make(map[string]bool)
	s.visits = nil
	s.failures = nil
	s.writeups = 0
}

// Stats returns current traversal statistics.
func (s *Spider) Stats() SpiderStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return SpiderStats{
		PagesVisited:  len(s.visits),
		URLsSeen:      len(s.visited),
		WriteupsFound: s.writeups,
		FetchFailures: len(s.failures),
	}
}

// SpiderStats contains traversal statistics.
type SpiderStats struct {
	// PagesVisited is the number of pages a request was sent for.
	PagesVisited int

	// URLsSeen is the number of unique URLs taken from the frontier.
	URLsSeen int

	// WriteupsFound is the number of unique write-up URLs collected.
	WriteupsFound int

	// FetchFailures is the number of pages that could not be retrieved.
	FetchFailures int
}
