package pipeline

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nao1215/ctfindex/internal/config"
	"github.com/nao1215/ctfindex/internal/crawler"
	"github.com/nao1215/ctfindex/internal/model"
	"github.com/nao1215/ctfindex/internal/transport"
	"github.com/nao1215/ctfindex/internal/writeup"
)

// CrawlStep traverses the site from the index seeds and stores the write-up
// URLs found, the pages visited and the fetch failures in the index.
//
// Design decision: Each CrawlStep creates a fresh Spider because:
// 1. The visited set belongs to one traversal
// 2. Sites crawled concurrently never share state
type CrawlStep struct {
	// client is the HTTP client, direct or through a SOCKS5 proxy.
	client *http.Client

	// maxPages limits total pages to fetch. 0 means no limit.
	maxPages int

	// userAgent is the User-Agent header to send with requests.
	userAgent string

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64

	// respectRobots enables robots.txt checks before each fetch.
	respectRobots bool

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlMaxPages sets the maximum pages to fetch.
func WithCrawlMaxPages(maxPages int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxPages = maxPages
	}
}

// WithCrawlUserAgent sets the User-Agent header for HTTP requests.
func WithCrawlUserAgent(userAgent string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.userAgent = userAgent
	}
}

// WithCrawlMaxBodySize sets the maximum response body size in bytes.
func WithCrawlMaxBodySize(maxBodySize int64) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxBodySize = maxBodySize
	}
}

// WithCrawlRespectRobots makes the crawl honour robots.txt.
func WithCrawlRespectRobots(respect bool) CrawlStepOption {
	return func(s *CrawlStep) {
		s.respectRobots = respect
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a new crawling step.
func NewCrawlStep(client *http.Client, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		client:      client,
		maxPages:    config.DefaultMaxPages,
		userAgent:   config.DefaultUserAgent,
		maxBodySize: config.DefaultMaxBodySize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
// On cancellation the write-ups found so far are stored before ctx.Err() is
// returned.
func (s *CrawlStep) Do(ctx context.Context, idx *model.Index) error {
	spiderOpts := []crawler.SpiderOption{
		crawler.WithMaxPages(s.maxPages),
		crawler.WithUserAgent(s.userAgent),
		crawler.WithMaxBodySize(s.maxBodySize),
		crawler.WithLogger(s.logger.With("site", idx.Site)),
	}
	if s.respectRobots {
		spiderOpts = append(spiderOpts,
			crawler.WithRobotsPolicy(crawler.NewRobotsPolicy(s.client, s.userAgent, s.logger)))
	}

	spider := crawler.NewSpider(s.client, idx.BaseURL, spiderOpts...)

	urls, err := spider.Traverse(ctx, idx.Seeds)
	if urls != nil {
		idx.WriteupURLs = urls
	}
	idx.Visits = spider.Visits()
	idx.FetchFailures = spider.Failures()

	stats := spider.Stats()
	idx.PagesVisited = stats.PagesVisited

	s.logger.Info("crawl completed",
		"site", idx.Site,
		"pages_visited", stats.PagesVisited,
		"writeups_found", stats.WriteupsFound,
		"fetch_failures", stats.FetchFailures,
	)

	return err
}

// ClassifyStep turns the write-up URLs of the index into sorted records.
// It needs no network access and also runs after a cancelled crawl.
type ClassifyStep struct {
	classifier *writeup.Classifier
	logger     *slog.Logger
}

// ClassifyStepOption configures a ClassifyStep.
type ClassifyStepOption func(*ClassifyStep)

// WithClassifier sets the classifier, e.g. one with custom rules.
func WithClassifier(c *writeup.Classifier) ClassifyStepOption {
	return func(s *ClassifyStep) {
		s.classifier = c
	}
}

// WithClassifyLogger sets a custom logger for the classify step.
func WithClassifyLogger(logger *slog.Logger) ClassifyStepOption {
	return func(s *ClassifyStep) {
		s.logger = logger
	}
}

// NewClassifyStep creates a classification step using writeup.DefaultRules.
func NewClassifyStep(opts ...ClassifyStepOption) *ClassifyStep {
	s := &ClassifyStep{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.classifier == nil {
		s.classifier = writeup.NewClassifier(writeup.WithLogger(s.logger))
	}

	return s
}

// Name returns the step name.
func (s *ClassifyStep) Name() string {
	return "classify"
}

// Local implements LocalStep.
func (s *ClassifyStep) Local() bool {
	return true
}

// Do executes the classify step.
func (s *ClassifyStep) Do(_ context.Context, idx *model.Index) error {
	records := s.classifier.ParseAll(idx.WriteupURLs)
	model.SortRecords(records)
	idx.Records = records

	s.logger.Info("write-ups classified",
		"site", idx.Site,
		"records", len(records),
		"placeholders", model.CountPlaceholders(records),
	)
	return nil
}

// SitePipelineConfig holds the settings shared by every site pipeline.
type SitePipelineConfig struct {
	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// Logger is passed to both steps.
	Logger *slog.Logger
}

// SitePipelineOption configures a SitePipelineConfig.
type SitePipelineOption func(*SitePipelineConfig)

// WithPipelineUserAgent sets the User-Agent header for HTTP requests.
func WithPipelineUserAgent(userAgent string) SitePipelineOption {
	return func(c *SitePipelineConfig) {
		c.UserAgent = userAgent
	}
}

// WithPipelineMaxBodySize sets the maximum response body size in bytes.
func WithPipelineMaxBodySize(maxBodySize int64) SitePipelineOption {
	return func(c *SitePipelineConfig) {
		c.MaxBodySize = maxBodySize
	}
}

// WithPipelineStepLogger sets the logger of the crawl and classify steps.
func WithPipelineStepLogger(logger *slog.Logger) SitePipelineOption {
	return func(c *SitePipelineConfig) {
		c.Logger = logger
	}
}

// SitePipeline creates the standard pipeline for one site: crawl, then classify.
//
// Design decision: The HTTP client is built here from the site settings
// because:
// 1. Cookies and headers differ per site
// 2. Each site gets its own cookie jar and connection pool
//
// The pipelineOpts configure the Pipeline itself (WithLogger, etc).
// The configOpts configure the steps (WithPipelineUserAgent, etc).
func SitePipeline(client *transport.Client, site config.SiteConfig, pipelineOpts []Option, configOpts ...SitePipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &SitePipelineConfig{
		UserAgent:   config.DefaultUserAgent,
		MaxBodySize: config.DefaultMaxBodySize,
		Logger:      slog.Default(),
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	httpClient := client.HTTPClient(site.BaseURL, site.Cookie, site.Headers)

	p.AddSteps(
		NewCrawlStep(httpClient,
			WithCrawlMaxPages(site.MaxPages),
			WithCrawlUserAgent(cfg.UserAgent),
			WithCrawlMaxBodySize(cfg.MaxBodySize),
			WithCrawlRespectRobots(site.RespectRobots),
			WithCrawlLogger(cfg.Logger),
		),
		NewClassifyStep(
			WithClassifier(writeup.NewClassifier(writeup.WithLogger(cfg.Logger))),
			WithClassifyLogger(cfg.Logger),
		),
	)

	return p
}
