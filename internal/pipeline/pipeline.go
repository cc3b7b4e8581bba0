package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/ctfindex/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the accumulated
// index from previous steps.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
// 3. It's more extensible for future features (e.g., priority, dependencies)
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation, and the index to modify.
	// Returns an error if the step fails critically; non-critical errors
	// should be recorded in the index and return nil.
	Do(ctx context.Context, idx *model.Index) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// LocalStep is a Step that only processes data already in the index.
// Local steps still run after the context is cancelled, so the partial
// results of an interrupted crawl are classified and reported.
type LocalStep interface {
	Step

	// Local reports whether the step needs no network access.
	Local() bool
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
// This follows the functional options pattern for clean API design.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, a default logger is created.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and their errors
// are recorded in the index, but subsequent steps still execute.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		continueOnError: false,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence and sets idx.FinishedAt.
//
// Design decision: Cancellation is not a step failure. When ctx is done,
// either before a step or as the error a step returns, the index is marked
// TimedOut and only local steps keep running:
//  1. The write-ups found before the interruption are still classified
//  2. Steps that would send requests are skipped
//
// Returns ctx.Err() after cancellation, the first step error if
// continueOnError is false, or nil (errors are recorded in the index).
func (p *Pipeline) Execute(ctx context.Context, idx *model.Index) error {
	defer func() {
		idx.FinishedAt = time.Now()
	}()

	var cancelErr error
	for _, step := range p.steps {
		if cancelErr == nil && ctx.Err() != nil {
			cancelErr = p.markCancelled(idx, step, ctx.Err())
		}
		if cancelErr != nil && !isLocal(step) {
			p.logger.Debug("skipping step after cancellation", "step", step.Name(), "site", idx.Site)
			continue
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"site", idx.Site,
		)

		err := step.Do(ctx, idx)
		idx.PerformedSteps = append(idx.PerformedSteps, step.Name())

		switch {
		case err == nil:
			p.logger.Debug("step completed",
				"step", step.Name(),
				"site", idx.Site,
			)
		case isCancellation(err):
			if cancelErr == nil {
				cancelErr = p.markCancelled(idx, step, err)
			}
		default:
			p.logger.Error("step failed",
				"step", step.Name(),
				"site", idx.Site,
				"error", err,
			)

			idx.Error = err
			idx.ErrorMessage = err.Error()

			if !p.continueOnError {
				return err
			}
		}
	}

	return cancelErr
}

// markCancelled records the interruption in the index and returns err.
func (p *Pipeline) markCancelled(idx *model.Index, step Step, err error) error {
	p.logger.Warn("pipeline cancelled",
		"step", step.Name(),
		"site", idx.Site,
		"reason", err,
	)
	idx.TimedOut = true
	return err
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

func isLocal(step Step) bool {
	local, ok := step.(LocalStep)
	return ok && local.Local()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
