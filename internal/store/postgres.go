package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/nexusdoc/docengine/internal/document"
	"github.com/nexusdoc/docengine/internal/graph"
)

// PostgresStore is the reference DocumentStore implementation, following
// the same UPSERT/COALESCE-merge and metadata-extraction conventions as the
// rest of this codebase's database clients.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against databaseURL and verifies
// connectivity before returning.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func userIDOf(doc *document.Document) string {
	if doc.Metadata == nil {
		return ""
	}
	if uid, ok := doc.Metadata["userId"].(string); ok {
		return uid
	}
	return ""
}

// Create inserts a new document row, upserting on conflict so a retried
// create after a crashed orchestrator run doesn't fail on the unique id.
func (s *PostgresStore) Create(ctx context.Context, doc *document.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO docengine.documents (
			id, user_id, filename, byte_size, url, status,
			summary, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($2, ''), 'anonymous'), $3, $4, $5, $6,
			NULLIF($7, ''), NULLIF($8, ''), COALESCE($9::jsonb, '{}'::jsonb), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			byte_size = EXCLUDED.byte_size,
			url = EXCLUDED.url,
			status = EXCLUDED.status,
			metadata = COALESCE(EXCLUDED.metadata, docengine.documents.metadata),
			updated_at = NOW()
	`

	_, err = s.db.ExecContext(ctx, query,
		doc.ID, userIDOf(doc), doc.Filename, doc.ByteSize, doc.URL, string(doc.Status),
		doc.Summary, doc.ErrorMessage, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create document (id=%s): %w", doc.ID, err)
	}
	return nil
}

// Get retrieves a document by id, scoped to requesterUserID when non-empty.
func (s *PostgresStore) Get(ctx context.Context, id string, requesterUserID string) (*document.Document, error) {
	query := `
		SELECT id, user_id, filename, byte_size, url, status,
		       summary, error_message, metadata, created_at, updated_at
		FROM docengine.documents
		WHERE id = $1::uuid AND ($2 = '' OR user_id = $2)
	`

	var (
		docID, userID, filename, status string
		byteSize                        int64
		url                             sql.NullString
		summary, errorMessage           sql.NullString
		metadataJSON                    []byte
		createdAt, updatedAt            time.Time
	)

	err := s.db.QueryRowContext(ctx, query, id, requesterUserID).Scan(
		&docID, &userID, &filename, &byteSize, &url, &status,
		&summary, &errorMessage, &metadataJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, newNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document (id=%s): %w", id, err)
	}

	doc := &document.Document{
		ID:           docID,
		Filename:     filename,
		ByteSize:     byteSize,
		URL:          url.String,
		Status:       document.Status(status),
		Summary:      summary.String,
		ErrorMessage: errorMessage.String,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]interface{})
	}
	doc.Metadata["userId"] = userID
	return doc, nil
}

// Update applies a partial patch, leaving unset fields untouched.
func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch, requesterUserID string) error {
	var metadataJSON []byte
	var err error
	if patch.Metadata != nil {
		metadataJSON, err = json.Marshal(patch.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata patch: %w", err)
		}
	}

	var filename, errorMessage string
	if patch.Filename != nil {
		filename = *patch.Filename
	}
	if patch.ErrorMessage != nil {
		errorMessage = *patch.ErrorMessage
	}

	query := `
		UPDATE docengine.documents SET
			filename = COALESCE(NULLIF($3, ''), filename),
			error_message = CASE WHEN $4::boolean THEN $5 ELSE error_message END,
			metadata = COALESCE(metadata || $6::jsonb, metadata),
			updated_at = NOW()
		WHERE id = $1::uuid AND ($2 = '' OR user_id = $2)
	`

	result, err := s.db.ExecContext(ctx, query,
		id, requesterUserID, filename,
		patch.ErrorMessage != nil, errorMessage,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update document (id=%s): %w", id, err)
	}
	return requireRowsAffected(result, id)
}

// UpdateStatus transitions a document's status, recording errorMessage when
// the transition is to failed.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status document.Status, errorMessage string) error {
	query := `
		UPDATE docengine.documents SET
			status = $2,
			error_message = NULLIF($3, ''),
			updated_at = NOW()
		WHERE id = $1::uuid
	`
	result, err := s.db.ExecContext(ctx, query, id, string(status), errorMessage)
	if err != nil {
		return fmt.Errorf("failed to update document status (id=%s, status=%s): %w", id, status, err)
	}
	return requireRowsAffected(result, id)
}

// StoreGraph persists the document's built graph as JSONB.
func (s *PostgresStore) StoreGraph(ctx context.Context, id string, g *graph.DocumentGraph) error {
	snapshot := graphSnapshot{Nodes: g.Nodes(), Edges: g.Edges()}
	graphJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	query := `
		UPDATE docengine.documents SET graph = $2::jsonb, updated_at = NOW()
		WHERE id = $1::uuid
	`
	result, err := s.db.ExecContext(ctx, query, id, graphJSON)
	if err != nil {
		return fmt.Errorf("failed to store graph (id=%s): %w", id, err)
	}
	return requireRowsAffected(result, id)
}

// graphSnapshot is the JSONB-serializable projection of a DocumentGraph.
type graphSnapshot struct {
	Nodes []*graph.Node `json:"nodes"`
	Edges []*graph.Edge `json:"edges"`
}

// StoreSummary persists a generated summary string.
func (s *PostgresStore) StoreSummary(ctx context.Context, id string, summary string) error {
	query := `
		UPDATE docengine.documents SET summary = $2, updated_at = NOW()
		WHERE id = $1::uuid
	`
	result, err := s.db.ExecContext(ctx, query, id, summary)
	if err != nil {
		return fmt.Errorf("failed to store summary (id=%s): %w", id, err)
	}
	return requireRowsAffected(result, id)
}

// Delete removes a document, scoped to requesterUserID when non-empty.
// Reports false (no error) when nothing matched.
func (s *PostgresStore) Delete(ctx context.Context, id string, requesterUserID string) (bool, error) {
	query := `DELETE FROM docengine.documents WHERE id = $1::uuid AND ($2 = '' OR user_id = $2)`
	result, err := s.db.ExecContext(ctx, query, id, requesterUserID)
	if err != nil {
		return false, fmt.Errorf("failed to delete document (id=%s): %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result (id=%s): %w", id, err)
	}
	return affected > 0, nil
}

// List returns a filtered, paginated page of documents.
func (s *PostgresStore) List(ctx context.Context, filters Filters) (ListResult, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	countQuery := `
		SELECT COUNT(*) FROM docengine.documents
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
	`
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, filters.UserID, string(filters.Status)).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("failed to count documents: %w", err)
	}

	query := `
		SELECT id, user_id, filename, byte_size, url, status,
		       summary, error_message, metadata, created_at, updated_at
		FROM docengine.documents
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.db.QueryContext(ctx, query, filters.UserID, string(filters.Status), limit, filters.Offset)
	if err != nil {
		return ListResult{}, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var items []*document.Document
	for rows.Next() {
		var (
			docID, userID, filename, status string
			byteSize                        int64
			url                             sql.NullString
			summary, errorMessage           sql.NullString
			metadataJSON                    []byte
			createdAt, updatedAt            time.Time
		)
		if err := rows.Scan(&docID, &userID, &filename, &byteSize, &url, &status,
			&summary, &errorMessage, &metadataJSON, &createdAt, &updatedAt); err != nil {
			return ListResult{}, fmt.Errorf("failed to scan document row: %w", err)
		}
		doc := &document.Document{
			ID: docID, Filename: filename, ByteSize: byteSize, URL: url.String,
			Status: document.Status(status), Summary: summary.String, ErrorMessage: errorMessage.String,
			CreatedAt: createdAt, UpdatedAt: updatedAt,
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &doc.Metadata)
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}
		doc.Metadata["userId"] = userID
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("failed to iterate document rows: %w", err)
	}

	return ListResult{
		Items:   items,
		Total:   total,
		HasMore: filters.Offset+len(items) < total,
	}, nil
}

// Stats summarizes document counts and sizes, optionally scoped to userID.
func (s *PostgresStore) Stats(ctx context.Context, userID string) (Stats, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(SUM(byte_size), 0)
		FROM docengine.documents
		WHERE $1 = '' OR user_id = $1
		GROUP BY status
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByStatus: make(map[document.Status]int)}
	for rows.Next() {
		var status string
		var count int
		var size int64
		if err := rows.Scan(&status, &count, &size); err != nil {
			return Stats{}, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.ByStatus[document.Status(status)] = count
		stats.Total += count
		stats.TotalSize += size
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to iterate stats rows: %w", err)
	}

	recentQuery := `
		SELECT COUNT(*) FROM docengine.documents
		WHERE ($1 = '' OR user_id = $1) AND created_at > NOW() - INTERVAL '24 hours'
	`
	if err := s.db.QueryRowContext(ctx, recentQuery, userID).Scan(&stats.RecentUploads); err != nil {
		return Stats{}, fmt.Errorf("failed to count recent uploads: %w", err)
	}

	return stats, nil
}

func requireRowsAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected (id=%s): %w", id, err)
	}
	if affected == 0 {
		return newNotFound(id)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ DocumentStore = (*PostgresStore)(nil)
