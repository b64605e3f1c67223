/**
 * Embedding Service.
 *
 * Fills the EMBEDDING pipeline stage: batches text-bearing graph nodes
 * through an embedding provider and writes the resulting vectors to a
 * vector index, keyed by node id. Non-fatal: a failure here never aborts
 * the document pipeline, it only skips this stage.
 */

package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusdoc/docengine/internal/graph"
	"github.com/nexusdoc/docengine/internal/logging"
)

// Record is a single written embedding, mirrored from the engine's
// EmbeddingRecord type.
type Record struct {
	NodeID     string
	DocumentID string
	Vector     []float32
	Model      string
	Dimensions int
	CreatedAt  time.Time
}

// Point is what the vector index persists for one embedding.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
}

// Index is the minimal vector-store contract the Embedding Service
// requires; a gRPC-backed Qdrant implementation satisfies it in production.
type Index interface {
	Upsert(ctx context.Context, point Point) error
}

// Provider generates embeddings for a batch of texts, one vector per input
// in the same order.
type Provider interface {
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service coordinates the embedding stage.
type Service struct {
	provider  Provider
	index     Index
	model     string
	batchSize int
	logger    *logging.Logger
}

// embeddableTypes are the node types whose content is worth embedding;
// structural container nodes (document, metadata/page) carry no prose.
var embeddableTypes = []graph.NodeType{
	graph.NodeParagraph,
	graph.NodeSection,
	graph.NodeHeading,
	graph.NodeTable,
	graph.NodeList,
	graph.NodeCode,
}

// NewService wires a Provider and Index together. batchSize <= 0 defaults
// to 100, matching the provider's own API limit.
func NewService(provider Provider, index Index, model string, batchSize int, logger *logging.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{provider: provider, index: index, model: model, batchSize: batchSize, logger: logger}
}

// EmbedDocument embeds every eligible text node in g and upserts the
// resulting vectors into the index. Returns the records written so far plus
// the provider error that stopped the run, if any; a failed upsert is logged
// and skipped rather than returned. Callers in the orchestrator treat any
// error here as non-fatal to the overall pipeline.
func (s *Service) EmbedDocument(ctx context.Context, documentID string, g *graph.DocumentGraph) ([]Record, error) {
	nodes := g.NodesByType(embeddableTypes...)
	if len(nodes) == 0 {
		return nil, nil
	}

	var records []Record
	for start := 0; start < len(nodes); start += s.batchSize {
		end := start + s.batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		batch := nodes[start:end]

		texts := make([]string, len(batch))
		for i, n := range batch {
			texts[i] = n.Content
		}

		vectors, err := s.provider.GenerateBatch(ctx, texts)
		if err != nil {
			return records, fmt.Errorf("failed to generate embeddings for batch starting at %d: %w", start, err)
		}

		for i, n := range batch {
			vec := vectors[i]
			record := Record{
				NodeID:     n.ID,
				DocumentID: documentID,
				Vector:     vec,
				Model:      s.model,
				Dimensions: len(vec),
				CreatedAt:  time.Now(),
			}
			if err := s.index.Upsert(ctx, Point{
				ID:     n.ID,
				Vector: vec,
				Metadata: map[string]interface{}{
					"documentId": documentID,
					"nodeType":   string(n.Type),
					"model":      s.model,
				},
			}); err != nil {
				if s.logger != nil {
					s.logger.Warn("failed to upsert embedding", "nodeID", n.ID, "error", err)
				}
				continue
			}
			records = append(records, record)
		}
	}

	return records, nil
}
