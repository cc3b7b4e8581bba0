package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/ctfindex/internal/config"
	"github.com/nao1215/ctfindex/internal/model"
)

func testSites(names ...string) []config.Site {
	sites := make([]config.Site, len(names))
	for i, name := range names {
		base := "https://" + name + ".example.com"
		sites[i] = config.Site{
			Name:       name,
			SiteConfig: config.SiteConfig{BaseURL: base, Seeds: []string{base + "/"}},
		}
	}
	return sites
}

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	factory := func(config.Site) *Pipeline { return New() }

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(factory)
		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(factory, WithConcurrency(5))
		if bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(factory, WithConcurrency(0))
		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
		}
	})
}

// TestBatchProcessorProcessBatch tests batch processing.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("processes all sites in order", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(site config.Site) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "crawl", doFunc: func(_ context.Context, idx *model.Index) error {
				idx.WriteupURLs = append(idx.WriteupURLs, site.BaseURL+"/2022/404ctf/pwn/x")
				return nil
			}})
			return p
		}, WithBatchLogger(discardLogger()), WithConcurrency(2))

		results, err := bp.ProcessBatch(context.Background(), testSites("a", "b", "c"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		names := make([]string, len(results))
		for i, idx := range results {
			names[i] = idx.Site
			if idx.WriteupCount() != 1 {
				t.Errorf("site %s: expected 1 write-up, got %d", idx.Site, idx.WriteupCount())
			}
		}
		if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
			t.Errorf("result order mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("keeps failed sites in the results", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(site config.Site) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "crawl", doFunc: func(context.Context, *model.Index) error {
				if site.Name == "bad" {
					return errors.New("unreachable")
				}
				return nil
			}})
			return p
		}, WithBatchLogger(discardLogger()))

		results, err := bp.ProcessBatch(context.Background(), testSites("good", "bad"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].ErrorMessage != "" {
			t.Errorf("expected good site without error, got %q", results[0].ErrorMessage)
		}
		if results[1].ErrorMessage != "unreachable" {
			t.Errorf("expected bad site error, got %q", results[1].ErrorMessage)
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int32
		bp := NewBatchProcessor(func(config.Site) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "crawl", doFunc: func(context.Context, *model.Index) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil
			}})
			return p
		}, WithBatchLogger(discardLogger()), WithConcurrency(2))

		if _, err := bp.ProcessBatch(context.Background(), testSites("a", "b", "c", "d", "e")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent crawls, got %d", peak.Load())
		}
	})

	t.Run("marks sites not started after cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var started atomic.Int32
		bp := NewBatchProcessor(func(config.Site) *Pipeline {
			started.Add(1)
			return New(WithLogger(discardLogger()))
		}, WithBatchLogger(discardLogger()))

		results, err := bp.ProcessBatch(ctx, testSites("a", "b"))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if started.Load() != 0 {
			t.Errorf("expected no pipeline to start, got %d", started.Load())
		}
		for _, idx := range results {
			if idx == nil || !idx.TimedOut {
				t.Errorf("expected cancelled index, got %+v", idx)
			}
		}
	})
}

// TestBatchProcessorProcessBatchWithCallback tests streaming results.
func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	bp := NewBatchProcessor(func(config.Site) *Pipeline {
		return New(WithLogger(discardLogger()))
	}, WithBatchLogger(discardLogger()))

	var mu sync.Mutex
	seen := make(map[int]string)
	err := bp.ProcessBatchWithCallback(context.Background(), testSites("a", "b", "c"), func(idx *model.Index, i int) {
		mu.Lock()
		defer mu.Unlock()
		seen[i] = idx.Site
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[int]string{0: "a", 1: "b", 2: "c"}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("callback results mismatch (-want +got):\n%s", diff)
	}
}
