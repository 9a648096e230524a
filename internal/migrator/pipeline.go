package migrator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/flowbot/media-migrator/internal/blob"
	"github.com/flowbot/media-migrator/internal/fetch"
	"github.com/flowbot/media-migrator/pkg/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Validator interface {
	Check(ctx context.Context, url string) (fetch.Result, error)
}

type Downloader interface {
	Download(ctx context.Context, url string, dst string) (int64, error)
}

type Uploader interface {
	Upload(ctx context.Context, localPath string, filename string) (string, error)
}

type Registrar interface {
	Register(ctx context.Context, assetURL string) (string, error)
}

type Recorder interface {
	Record(ctx context.Context, destURL string, externalID string) error
	RewriteReferences(ctx context.Context, destURL string) (int, error)
	Verify(ctx context.Context, sourceURL, destURL, externalID string) error
}

// AssetReference follows one source url through the pipeline.
type AssetReference struct {
	SourceURL      string
	LocalStagePath string
	DestinationURL string
	ExternalID     string
}

// Item is the outcome of one pipeline run. Err is nil unless the item failed,
// in which case Stage is the stage it failed to reach.
type Item struct {
	Asset AssetReference
	Stage Stage
	Err   error
	// Inconsistent is set by the post-batch check on recorded items.
	Inconsistent error
}

func (i Item) Failed() bool {
	return i.Err != nil || i.Inconsistent != nil
}

func (i Item) State() string {
	if i.Err == nil && i.Inconsistent != nil {
		return "Inconsistent"
	}
	return State(i.Stage, i.Err)
}

// Pipeline runs the stages of a single url. It holds no per-item state and is
// shared by every goroutine of a batch.
type Pipeline struct {
	validator  Validator
	downloader Downloader
	uploader   Uploader
	registrar  Registrar
	recorder   Recorder
	stagingDir string
	dryRun     bool
}

type PipelineOption func(p *Pipeline)

func WithStagingDir(dir string) PipelineOption {
	return func(p *Pipeline) {
		p.stagingDir = dir
	}
}

// WithDryRun stops every item once it is validated.
func WithDryRun(dryRun bool) PipelineOption {
	return func(p *Pipeline) {
		p.dryRun = dryRun
	}
}

func NewPipeline(v Validator, d Downloader, u Uploader, reg Registrar, rec Recorder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		validator:  v,
		downloader: d,
		uploader:   u,
		registrar:  reg,
		recorder:   rec,
		stagingDir: "temp",
	}

	for _, o := range opts {
		o(p)
	}

	return p
}

func (p *Pipeline) Recorder() Recorder {
	return p.recorder
}

// Run drives sourceURL as far as it goes. It never returns an error: failures
// are reported on the item.
func (p *Pipeline) Run(ctx context.Context, sourceURL string) Item {
	item := Item{Asset: AssetReference{SourceURL: sourceURL}, Stage: StageDiscovered}

	if err := p.stage(ctx, &item, StageValidated, p.validate); err != nil || p.dryRun {
		return item
	}
	if err := p.stage(ctx, &item, StageDownloaded, p.download); err != nil {
		return item
	}
	if err := p.stage(ctx, &item, StageReuploaded, p.upload); err != nil {
		return item
	}
	if err := p.stage(ctx, &item, StageRegistered, p.register); err != nil {
		return item
	}
	_ = p.stage(ctx, &item, StageRecorded, p.record)

	return item
}

func (p *Pipeline) stage(ctx context.Context, item *Item, next Stage, fn func(context.Context, *AssetReference) error) error {
	start := time.Now()
	err := fn(ctx, &item.Asset)
	metrics.ObserveStageDurationMetric(next.String(), time.Since(start).Seconds())

	if err != nil {
		item.Stage = next
		item.Err = &StageError{Stage: next, URL: item.Asset.SourceURL, Err: err}
		zap.S().Named("pipeline").Errorw("item failed", "url", item.Asset.SourceURL, "stage", next.String(), "error", err)
		return err
	}

	item.Stage = next
	zap.S().Named("pipeline").Debugw("stage reached", "url", item.Asset.SourceURL, "stage", next.String())
	return nil
}

func (p *Pipeline) validate(ctx context.Context, asset *AssetReference) error {
	result, err := p.validator.Check(ctx, asset.SourceURL)
	if err != nil {
		return err
	}
	if !result.OK() {
		return errors.Errorf("unexpected status code %d", result.StatusCode)
	}
	return nil
}

func (p *Pipeline) download(ctx context.Context, asset *AssetReference) error {
	if err := os.MkdirAll(p.stagingDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create staging dir %q", p.stagingDir)
	}

	// every item owns its stage file so appends never interleave
	asset.LocalStagePath = filepath.Join(p.stagingDir, uuid.NewString()+"-"+filepath.Base(blob.ObjectName(asset.SourceURL)))

	if _, err := p.downloader.Download(ctx, asset.SourceURL, asset.LocalStagePath); err != nil {
		if rmErr := os.Remove(asset.LocalStagePath); rmErr != nil && !os.IsNotExist(rmErr) {
			zap.S().Named("pipeline").Warnw("failed to remove partial download", "path", asset.LocalStagePath, "error", rmErr)
		}
		return err
	}
	return nil
}

func (p *Pipeline) upload(ctx context.Context, asset *AssetReference) error {
	destURL, err := p.uploader.Upload(ctx, asset.LocalStagePath, blob.ObjectName(asset.SourceURL))
	if err != nil {
		return err
	}
	asset.DestinationURL = destURL
	return nil
}

func (p *Pipeline) register(ctx context.Context, asset *AssetReference) error {
	externalID, err := p.registrar.Register(ctx, asset.DestinationURL)
	if err != nil {
		return err
	}
	asset.ExternalID = externalID
	return nil
}

func (p *Pipeline) record(ctx context.Context, asset *AssetReference) error {
	if err := p.recorder.Record(ctx, asset.DestinationURL, asset.ExternalID); err != nil {
		return err
	}
	_, err := p.recorder.RewriteReferences(ctx, asset.DestinationURL)
	return err
}
