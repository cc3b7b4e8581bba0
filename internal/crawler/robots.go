package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy answers whether a URL may be fetched according to the
// robots.txt of its host. Each robots.txt is downloaded once and cached.
//
// A robots.txt that cannot be downloaded allows everything; a 5xx answer
// disallows everything, following the robotstxt library.
type RobotsPolicy struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mutex sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsPolicy creates a policy that identifies itself as userAgent.
func NewRobotsPolicy(client *http.Client, userAgent string, logger *slog.Logger) *RobotsPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsPolicy{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be fetched.
func (p *RobotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	data := p.rules(ctx, u)
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, p.userAgent)
}

// rules returns the cached robots.txt of u's host, fetching it on first use.
func (p *RobotsPolicy) rules(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	p.mutex.Lock()
	data, ok := p.cache[key]
	p.mutex.Unlock()
	if ok {
		return data
	}

	data = p.fetch(ctx, key+"/robots.txt")

	p.mutex.Lock()
	p.cache[key] = data
	p.mutex.Unlock()
	return data
}

func (p *RobotsPolicy) fetch(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("cannot retrieve robots.txt", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		p.logger.Debug("cannot parse robots.txt", "url", robotsURL, "error", err)
		return nil
	}
	return data
}
