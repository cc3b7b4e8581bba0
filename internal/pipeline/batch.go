package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/ctfindex/internal/config"
	"github.com/nao1215/ctfindex/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of sites crawled at the same time
// when WithConcurrency is not given.
const DefaultConcurrency = config.DefaultBatchSize

// BatchProcessor handles concurrent crawling of multiple sites.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on single-site execution
// 2. Each site gets a fresh pipeline, HTTP client and visited set
// 3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each site.
	pipelineFactory func(site config.Site) *Pipeline

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called once per site to create a fresh
// pipeline instance, so pipeline state doesn't leak between sites.
func NewBatchProcessor(pipelineFactory func(site config.Site) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls the sites concurrently and returns one index per site,
// in the order of sites.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
//
// A site whose pipeline fails still has its index in the result, with the
// error recorded. Sites not started before ctx is cancelled get an empty
// index marked TimedOut. The returned error is ctx.Err() after cancellation.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, sites []config.Site) ([]*model.Index, error) {
	results := make([]*model.Index, len(sites))
	err := bp.ProcessBatchWithCallback(ctx, sites, func(idx *model.Index, i int) {
		results[i] = idx
	})
	return results, err
}

// ProcessBatchWithCallback crawls the sites and calls callback for each
// finished index with the position of its site. This is useful for saving
// results as soon as a site completes.
//
// The callback is called from the goroutine that ran the pipeline, so it
// must be safe for concurrent use if it touches shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	sites []config.Site,
	callback func(idx *model.Index, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_sites", len(sites),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, site := range sites {
		g.Go(func() error {
			idx := model.NewIndex(site.Name, site.BaseURL, site.Seeds)

			if ctx.Err() != nil {
				idx.TimedOut = true
				idx.FinishedAt = idx.StartedAt
				callback(idx, i)
				return nil
			}

			bp.logger.Info("crawling site",
				"site", site.Name,
				"index", i+1,
				"total", len(sites),
			)

			if err := bp.pipelineFactory(site).Execute(ctx, idx); err != nil {
				bp.logger.Warn("crawl failed",
					"site", site.Name,
					"error", err,
				)
			} else {
				bp.logger.Info("crawl finished",
					"site", site.Name,
					"writeups", idx.WriteupCount(),
				)
			}

			callback(idx, i)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines record errors in their index

	bp.logger.Info("batch processing complete",
		"total_sites", len(sites),
		"elapsed", time.Since(startTime),
	)

	return ctx.Err()
}
