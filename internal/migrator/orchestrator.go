package migrator

import (
	"context"
	"time"

	"github.com/flowbot/media-migrator/pkg/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Discoverer interface {
	ActiveMediaURLs(ctx context.Context) ([]string, error)
}

// Orchestrator owns the fan-out of a batch: one goroutine per discovered url,
// each holding a permit of the budget while its pipeline runs.
type Orchestrator struct {
	discoverer   Discoverer
	pipeline     *Pipeline
	budget       *Budget
	batchTimeout time.Duration
	verify       bool
}

type OrchestratorOption func(o *Orchestrator)

// WithBatchTimeout bounds the whole batch. Items still waiting for a permit
// when it expires fail at their first stage.
func WithBatchTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.batchTimeout = timeout
	}
}

// WithVerify toggles the consistency check run on recorded items once the batch
// is over.
func WithVerify(verify bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.verify = verify
	}
}

func NewOrchestrator(discoverer Discoverer, pipeline *Pipeline, budget *Budget, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		discoverer: discoverer,
		pipeline:   pipeline,
		budget:     budget,
		verify:     true,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Run discovers the batch and returns once every item is terminal. Only a
// discovery failure is returned as an error.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	logger := zap.S().Named("orchestrator")
	start := time.Now()

	urls, err := o.discoverer.ActiveMediaURLs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover media urls")
	}
	logger.Infow("batch discovered", "count", len(urls), "concurrency", o.budget.Size())

	batchCtx := ctx
	if o.batchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, o.batchTimeout)
		defer cancel()
	}

	items := make([]Item, len(urls))

	var g errgroup.Group
	for i, url := range urls {
		g.Go(func() error {
			items[i] = o.runItem(batchCtx, url)
			metrics.IncreaseItemsTotalMetric(items[i].State())
			return nil
		})
	}
	_ = g.Wait()

	if o.verify {
		o.verifyItems(ctx, items)
	}

	report := &Report{Items: items, Duration: time.Since(start)}
	logger.Infow("batch finished",
		"discovered", len(urls),
		"recorded", len(report.Succeeded()),
		"failed", len(report.Failed()),
		"peak_in_flight", o.budget.Peak(),
		"duration", report.Duration)

	return report, nil
}

func (o *Orchestrator) runItem(ctx context.Context, url string) Item {
	if err := o.budget.Acquire(ctx); err != nil {
		zap.S().Named("orchestrator").Errorw("item never started", "url", url, "stage", StageValidated.String(), "error", err)
		return Item{
			Asset: AssetReference{SourceURL: url},
			Stage: StageValidated,
			Err:   &StageError{Stage: StageValidated, URL: url, Err: err},
		}
	}
	defer o.budget.Release()

	return o.pipeline.Run(ctx, url)
}

func (o *Orchestrator) verifyItems(ctx context.Context, items []Item) {
	for i := range items {
		item := &items[i]
		if item.Err != nil || item.Stage != StageRecorded {
			continue
		}
		a := item.Asset
		if err := o.pipeline.Recorder().Verify(ctx, a.SourceURL, a.DestinationURL, a.ExternalID); err != nil {
			item.Inconsistent = err
			zap.S().Named("orchestrator").Errorw("item inconsistent", "url", a.SourceURL, "destination", a.DestinationURL, "error", err)
		}
	}
}
