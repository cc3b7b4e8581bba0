package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/ctfindex/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	local     bool
	doFunc    func(ctx context.Context, idx *model.Index) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, idx *model.Index) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, idx)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// Local implements LocalStep.Local.
func (m *mockStep) Local() bool {
	return m.local
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIndex() *model.Index {
	return model.NewIndex("test", "https://example.com", []string{"https://example.com/"})
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	if diff := cmp.Diff([]string{"first", "second", "third"}, p.StepNames()); diff != "" {
		t.Errorf("step names mismatch (-want +got):\n%s", diff)
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		order := make([]string, 0)
		record := func(name string) func(context.Context, *model.Index) error {
			return func(context.Context, *model.Index) error {
				order = append(order, name)
				return nil
			}
		}

		p := New(WithLogger(discardLogger()))
		p.AddSteps(
			&mockStep{name: "crawl", doFunc: record("crawl")},
			&mockStep{name: "classify", doFunc: record("classify")},
		)

		idx := newTestIndex()
		if err := p.Execute(context.Background(), idx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if diff := cmp.Diff([]string{"crawl", "classify"}, order); diff != "" {
			t.Errorf("execution order mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"crawl", "classify"}, idx.PerformedSteps); diff != "" {
			t.Errorf("performed steps mismatch (-want +got):\n%s", diff)
		}
		if idx.FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set")
		}
		if idx.Status() != "complete" {
			t.Errorf("expected complete status, got %q", idx.Status())
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		stepErr := errors.New("step failed")
		second := &mockStep{name: "second"}

		p := New(WithLogger(discardLogger()))
		p.AddSteps(
			&mockStep{name: "first", doFunc: func(context.Context, *model.Index) error { return stepErr }},
			second,
		)

		idx := newTestIndex()
		err := p.Execute(context.Background(), idx)
		if !errors.Is(err, stepErr) {
			t.Fatalf("expected step error, got %v", err)
		}
		if second.callCount != 0 {
			t.Error("expected second step to be skipped")
		}
		if idx.ErrorMessage != "step failed" {
			t.Errorf("expected error message to be recorded, got %q", idx.ErrorMessage)
		}
		if idx.FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set on failure")
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		second := &mockStep{name: "second"}

		p := New(WithLogger(discardLogger()), WithContinueOnError(true))
		p.AddSteps(
			&mockStep{name: "first", doFunc: func(context.Context, *model.Index) error { return errors.New("boom") }},
			second,
		)

		idx := newTestIndex()
		if err := p.Execute(context.Background(), idx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.callCount != 1 {
			t.Error("expected second step to run")
		}
		if idx.ErrorMessage != "boom" {
			t.Errorf("expected error to be recorded, got %q", idx.ErrorMessage)
		}
	})

	t.Run("cancelled before start runs only local steps", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		network := &mockStep{name: "crawl"}
		local := &mockStep{name: "classify", local: true}

		p := New(WithLogger(discardLogger()))
		p.AddSteps(network, local)

		idx := newTestIndex()
		err := p.Execute(ctx, idx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if network.callCount != 0 {
			t.Error("expected network step to be skipped")
		}
		if local.callCount != 1 {
			t.Error("expected local step to run")
		}
		if !idx.TimedOut {
			t.Error("expected TimedOut to be set")
		}
	})

	t.Run("step cancelled mid-run keeps partial results", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		crawl := &mockStep{name: "crawl", doFunc: func(ctx context.Context, idx *model.Index) error {
			idx.WriteupURLs = append(idx.WriteupURLs, "https://example.com/2022/dvctf/intro")
			cancel()
			return ctx.Err()
		}}
		classify := &mockStep{name: "classify", local: true, doFunc: func(_ context.Context, idx *model.Index) error {
			idx.Records = append(idx.Records, model.Record{URL: idx.WriteupURLs[0]})
			return nil
		}}
		after := &mockStep{name: "upload"}

		p := New(WithLogger(discardLogger()))
		p.AddSteps(crawl, classify, after)

		idx := newTestIndex()
		err := p.Execute(ctx, idx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(idx.Records) != 1 {
			t.Errorf("expected partial results to be classified, got %d records", len(idx.Records))
		}
		if after.callCount != 0 {
			t.Error("expected non-local step after cancellation to be skipped")
		}
		if idx.ErrorMessage != "" {
			t.Errorf("expected cancellation not to be recorded as error, got %q", idx.ErrorMessage)
		}
		if idx.Status() != "cancelled (partial results)" {
			t.Errorf("unexpected status %q", idx.Status())
		}
		if diff := cmp.Diff([]string{"crawl", "classify"}, idx.PerformedSteps); diff != "" {
			t.Errorf("performed steps mismatch (-want +got):\n%s", diff)
		}
	})
}
