package migrator_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowbot/media-migrator/internal/blob"
	"github.com/flowbot/media-migrator/internal/documents"
	"github.com/flowbot/media-migrator/internal/fetch"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type staticDiscoverer []string

func (s staticDiscoverer) ActiveMediaURLs(context.Context) ([]string, error) {
	return s, nil
}

// fakeValidator answers 200 unless the url is listed in statuses.
type fakeValidator struct {
	statuses map[string]int
	calls    atomic.Int32
}

func (f *fakeValidator) Check(_ context.Context, url string) (fetch.Result, error) {
	f.calls.Add(1)
	code, ok := f.statuses[url]
	if !ok {
		code = 200
	}
	return fetch.Result{StatusCode: code, URL: url}, nil
}

// fakeDownloader writes a few bytes to dst and tracks how many downloads run at once.
type fakeDownloader struct {
	delay    time.Duration
	fail     map[string]bool
	calls    atomic.Int32
	running  atomic.Int32
	maxSeen  atomic.Int32
	stageMu  sync.Mutex
	stagedAt []string
}

func (f *fakeDownloader) Download(ctx context.Context, url string, dst string) (int64, error) {
	f.calls.Add(1)
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.stageMu.Lock()
	f.stagedAt = append(f.stagedAt, dst)
	f.stageMu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.fail[url] {
		return 0, errors.Errorf("connection reset while reading %s", url)
	}

	file, err := os.OpenFile(dst, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	written, err := file.WriteString("media bytes")
	return int64(written), err
}

type fakeProvider struct {
	puts atomic.Int32
	keys sync.Map
}

func (f *fakeProvider) Put(_ context.Context, localPath string, obj blob.Object) error {
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	f.puts.Add(1)
	f.keys.Store(obj.Key, localPath)
	return nil
}

func (f *fakeProvider) Type() string {
	return "fake"
}

type fakeRegistrar struct {
	calls atomic.Int32
}

func (f *fakeRegistrar) Register(_ context.Context, assetURL string) (string, error) {
	f.calls.Add(1)
	return "id-" + documents.Filename(assetURL), nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	mappings map[string]string
	verify   error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{mappings: map[string]string{}}
}

func (f *fakeRecorder) Record(_ context.Context, destURL, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings[destURL] = externalID
	return nil
}

func (f *fakeRecorder) RewriteReferences(context.Context, string) (int, error) {
	return 1, nil
}

func (f *fakeRecorder) Verify(context.Context, string, string, string) error {
	return f.verify
}

func (f *fakeRecorder) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mappings)
}

// memoryDocuments is an in-memory document collection holding bson copies.
type memoryDocuments struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemoryDocuments(docs ...documents.Document) *memoryDocuments {
	m := &memoryDocuments{docs: map[string][]byte{}}
	for _, d := range docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			panic(err)
		}
		m.docs[d.ID.(string)] = raw
	}
	return m
}

func (m *memoryDocuments) decoded() []documents.Document {
	var out []documents.Document
	for _, raw := range m.docs {
		var d documents.Document
		if err := bson.Unmarshal(raw, &d); err != nil {
			panic(err)
		}
		out = append(out, d)
	}
	return out
}

func (m *memoryDocuments) ActiveMediaURLs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var urls []string
	for _, d := range m.decoded() {
		if !d.IsActive {
			continue
		}
		for _, n := range d.Flow {
			if n.Data != nil && strings.TrimSpace(n.Data.URL) != "" {
				urls = append(urls, n.Data.URL)
			}
		}
	}
	return documents.UniqueURLs(urls), nil
}

// RewriteReferences updates only the matching nodes of each document while
// holding the collection lock, like a server-side array-filter update.
func (m *memoryDocuments) RewriteReferences(_ context.Context, filename string, destURL string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var modified int64
	for _, d := range m.decoded() {
		if !d.RewriteMatching(filename, destURL) {
			continue
		}
		raw, err := bson.Marshal(d)
		if err != nil {
			return modified, err
		}
		m.docs[d.ID.(string)] = raw
		modified++
	}
	return modified, nil
}

func (m *memoryDocuments) CountReferencing(_ context.Context, url string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, d := range m.decoded() {
		if d.References(url) {
			n++
		}
	}
	return n, nil
}

func (m *memoryDocuments) Get(id string) documents.Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	var d documents.Document
	if err := bson.Unmarshal(m.docs[id], &d); err != nil {
		panic(err)
	}
	return d
}
