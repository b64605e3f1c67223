package store

import (
	"context"
	"sync"
	"time"

	"github.com/nexusdoc/docengine/internal/document"
	"github.com/nexusdoc/docengine/internal/graph"
)

// MemoryStore is an in-process DocumentStore used by tests and by
// single-process deployments that don't need Postgres. It mirrors the
// access-control and patch-merge semantics of PostgresStore.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*document.Document
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*document.Document)}
}

func clone(doc *document.Document) *document.Document {
	cp := *doc
	cp.Metadata = make(map[string]interface{}, len(doc.Metadata))
	for k, v := range doc.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

func accessible(doc *document.Document, requesterUserID string) bool {
	if requesterUserID == "" {
		return true
	}
	return userIDOf(doc) == requesterUserID
}

func (m *MemoryStore) Create(ctx context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = clone(doc)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string, requesterUserID string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || !accessible(doc, requesterUserID) {
		return nil, newNotFound(id)
	}
	return clone(doc), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, patch Patch, requesterUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || !accessible(doc, requesterUserID) {
		return newNotFound(id)
	}
	if patch.Filename != nil {
		doc.Filename = *patch.Filename
	}
	if patch.ErrorMessage != nil {
		doc.ErrorMessage = *patch.ErrorMessage
	}
	if patch.Metadata != nil {
		for k, v := range patch.Metadata {
			doc.Metadata[k] = v
		}
	}
	doc.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status document.Status, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return newNotFound(id)
	}
	doc.Status = status
	doc.ErrorMessage = errorMessage
	doc.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) StoreGraph(ctx context.Context, id string, g *graph.DocumentGraph) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return newNotFound(id)
	}
	doc.Graph = g
	doc.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) StoreSummary(ctx context.Context, id string, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return newNotFound(id)
	}
	doc.Summary = summary
	doc.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string, requesterUserID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok || !accessible(doc, requesterUserID) {
		return false, nil
	}
	delete(m.docs, id)
	return true, nil
}

func (m *MemoryStore) List(ctx context.Context, filters Filters) (ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*document.Document
	for _, doc := range m.docs {
		if filters.UserID != "" && userIDOf(doc) != filters.UserID {
			continue
		}
		if filters.Status != "" && doc.Status != filters.Status {
			continue
		}
		matched = append(matched, doc)
	}

	total := len(matched)
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	start := filters.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	items := make([]*document.Document, 0, end-start)
	for _, doc := range matched[start:end] {
		items = append(items, clone(doc))
	}

	return ListResult{Items: items, Total: total, HasMore: end < total}, nil
}

func (m *MemoryStore) Stats(ctx context.Context, userID string) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{ByStatus: make(map[document.Status]int)}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, doc := range m.docs {
		if userID != "" && userIDOf(doc) != userID {
			continue
		}
		stats.Total++
		stats.ByStatus[doc.Status]++
		stats.TotalSize += doc.ByteSize
		if doc.CreatedAt.After(cutoff) {
			stats.RecentUploads++
		}
	}
	return stats, nil
}

var _ DocumentStore = (*MemoryStore)(nil)
