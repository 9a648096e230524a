package recorder

import (
	"context"

	"github.com/flowbot/media-migrator/internal/documents"
	"github.com/flowbot/media-migrator/internal/store/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrInconsistent = errors.New("stores are inconsistent")

type MappingStore interface {
	Upsert(ctx context.Context, mapping model.Mapping) (*model.Mapping, error)
	Get(ctx context.Context, url string) (*model.Mapping, error)
}

// DocumentStore rewrites references atomically per document: only the
// matching nodes are written, so rewrites of other files in the same document
// are never lost.
type DocumentStore interface {
	RewriteReferences(ctx context.Context, filename string, destURL string) (int64, error)
	CountReferencing(ctx context.Context, url string) (int64, error)
}

// Recorder persists the outcome of a migrated asset: the mapping row and the
// rewritten documents.
type Recorder struct {
	mappings MappingStore
	docs     DocumentStore
}

func New(mappings MappingStore, docs DocumentStore) *Recorder {
	return &Recorder{mappings: mappings, docs: docs}
}

// Record upserts the mapping of destURL. Calling it again with the same input
// leaves a single row.
func (r *Recorder) Record(ctx context.Context, destURL string, externalID string) error {
	if destURL == "" {
		return errors.New("cannot record an empty destination url")
	}
	if _, err := r.mappings.Upsert(ctx, model.Mapping{URL: destURL, ExternalID: externalID}); err != nil {
		return errors.Wrapf(err, "failed to upsert mapping for %q", destURL)
	}
	return nil
}

// RewriteReferences points every image and video reference whose url ends with
// the basename of destURL at destURL. The basename is compared unescaped, so a
// stored "my cat.jpg" matches a destination ending in "my%20cat.jpg". Two
// assets sharing a basename will both match the same references; the last
// writer wins.
func (r *Recorder) RewriteReferences(ctx context.Context, destURL string) (int, error) {
	filename := documents.Filename(destURL)
	if !documents.ValidFilename(filename) {
		return 0, errors.Errorf("no filename in destination url %q", destURL)
	}

	n, err := r.docs.RewriteReferences(ctx, filename, destURL)
	if err != nil {
		return 0, err
	}

	zap.S().Named("recorder").Debugw("references rewritten", "url", destURL, "filename", filename, "rewritten", n)

	return int(n), nil
}

// Verify checks that the mapping of destURL holds externalID and that no
// document still references sourceURL.
func (r *Recorder) Verify(ctx context.Context, sourceURL, destURL, externalID string) error {
	mapping, err := r.mappings.Get(ctx, destURL)
	if err != nil {
		return errors.Wrapf(ErrInconsistent, "mapping of %q: %v", destURL, err)
	}
	if mapping.ExternalID != externalID {
		return errors.Wrapf(ErrInconsistent, "mapping of %q holds external id %q, expected %q", destURL, mapping.ExternalID, externalID)
	}

	if sourceURL == destURL {
		return nil
	}

	n, err := r.docs.CountReferencing(ctx, sourceURL)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.Wrapf(ErrInconsistent, "%d documents still reference %q", n, sourceURL)
	}
	return nil
}
