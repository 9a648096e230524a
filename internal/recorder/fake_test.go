package recorder_test

import (
	"context"
	"sync"

	"github.com/flowbot/media-migrator/internal/documents"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// memoryDocuments keeps bson copies so callers never share state with the store.
type memoryDocuments struct {
	mu      sync.Mutex
	docs    map[string][]byte
	updates int
	failOn  string
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

func (m *memoryDocuments) all() []documents.Document {
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

// RewriteReferences applies the node-level rewrite to every document under one
// lock, the way a server-side update with array filters does.
func (m *memoryDocuments) RewriteReferences(_ context.Context, filename string, destURL string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var modified int64
	for _, d := range m.all() {
		id := d.ID.(string)
		if !d.RewriteMatching(filename, destURL) {
			continue
		}
		if id == m.failOn {
			return modified, errors.Errorf("update of %s refused", id)
		}
		raw, err := bson.Marshal(d)
		if err != nil {
			return modified, err
		}
		m.docs[id] = raw
		modified++
		m.updates++
	}
	return modified, nil
}

func (m *memoryDocuments) CountReferencing(_ context.Context, url string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, d := range m.all() {
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

func (m *memoryDocuments) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}
