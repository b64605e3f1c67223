/**
 * DocumentStore: persistence interface for documents, and a PostgreSQL
 * reference implementation.
 */

package store

import (
	"context"

	"github.com/nexusdoc/docengine/internal/document"
	"github.com/nexusdoc/docengine/internal/graph"
)

// Filters narrows a List call.
type Filters struct {
	UserID string
	Status document.Status
	Limit  int
	Offset int
}

// ListResult is the page of documents List returns alongside pagination
// bookkeeping.
type ListResult struct {
	Items   []*document.Document
	Total   int
	HasMore bool
}

// Stats summarizes document counts for a user (or globally when userID is
// empty).
type Stats struct {
	Total          int
	ByStatus       map[document.Status]int
	TotalSize      int64
	RecentUploads  int
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	Filename     *string
	Metadata     map[string]interface{}
	ErrorMessage *string
}

// DocumentStore is the narrow persistence contract the orchestrator and
// summarization/evaluation services depend on. Access control for
// requesterUserID is delegated entirely to the implementation.
type DocumentStore interface {
	Create(ctx context.Context, doc *document.Document) error
	Get(ctx context.Context, id string, requesterUserID string) (*document.Document, error)
	Update(ctx context.Context, id string, patch Patch, requesterUserID string) error
	UpdateStatus(ctx context.Context, id string, status document.Status, errorMessage string) error
	StoreGraph(ctx context.Context, id string, g *graph.DocumentGraph) error
	StoreSummary(ctx context.Context, id string, summary string) error
	Delete(ctx context.Context, id string, requesterUserID string) (bool, error)
	List(ctx context.Context, filters Filters) (ListResult, error)
	Stats(ctx context.Context, userID string) (Stats, error)
}

// errNotFound is returned (wrapped with context) when a lookup or mutation
// targets a document ID that doesn't exist, or that exists but belongs to a
// different user than requesterUserID names.
type errNotFound struct{ id string }

func (e *errNotFound) Error() string { return "document not found: " + e.id }

// IsNotFound reports whether err indicates a missing (or inaccessible)
// document.
func IsNotFound(err error) bool {
	_, ok := err.(*errNotFound)
	return ok
}

func newNotFound(id string) error { return &errNotFound{id: id} }
