/**
 * Document: the engine's top-level unit of work.
 *
 * Plain data holder shared by the orchestrator, summarization and
 * evaluation services, and the DocumentStore collaborator. The engine
 * owns a Document in memory until it is persisted; the store owns the
 * persisted copy.
 */

package document

import (
	"time"

	"github.com/nexusdoc/docengine/internal/evaluate"
	"github.com/nexusdoc/docengine/internal/graph"
)

// Status is the document's processing lifecycle stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Document is the engine's in-memory representation of one uploaded file.
type Document struct {
	ID        string
	Filename  string
	ByteSize  int64
	URL       string
	Status    Status
	Graph     *graph.DocumentGraph
	Summary   string
	Evaluation *evaluate.Result
	Metadata  map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
	ErrorMessage string
}

// New constructs a pending Document ready for orchestration.
func New(id, filename string, byteSize int64, url string) *Document {
	now := time.Now()
	return &Document{
		ID:        id,
		Filename:  filename,
		ByteSize:  byteSize,
		URL:       url,
		Status:    StatusPending,
		Metadata:  make(map[string]interface{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
