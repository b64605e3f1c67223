/**
 * Qdrant-backed vector index.
 *
 * Adapted from the teacher's Qdrant gRPC client: same connection and
 * collection-bootstrap shape, generalized to a configurable vector width
 * instead of a VoyageAI-specific 1024 constant, and narrowed to the single
 * Upsert operation the Embedding Service's write path needs (retrieval and
 * search are out of scope for this engine).
 */

package embedding

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantIndex implements Index against a Qdrant collection.
type QdrantIndex struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	conn        *grpc.ClientConn
	collection  string
	dimensions  int
}

// NewQdrantIndex dials address and ensures the named collection exists
// with the given vector width and cosine distance.
func NewQdrantIndex(address, collection string, dimensions int) (*QdrantIndex, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if dimensions <= 0 {
		dimensions = 1024
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	idx := &QdrantIndex{
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		conn:        conn,
		collection:  collection,
		dimensions:  dimensions,
	}

	if err := idx.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return idx, nil
}

func (idx *QdrantIndex) ensureCollection(ctx context.Context) error {
	listResp, err := idx.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == idx.collection {
			return nil
		}
	}

	_, err = idx.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(idx.dimensions),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Upsert stores or updates one vector point.
func (idx *QdrantIndex) Upsert(ctx context.Context, point Point) error {
	if len(point.Vector) != idx.dimensions {
		return fmt.Errorf("invalid vector dimensions: expected %d, got %d", idx.dimensions, len(point.Vector))
	}
	if point.ID == "" {
		return fmt.Errorf("point id is required")
	}

	pointStruct := buildPointStruct(point)

	_, err := idx.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Points:         []*qdrant.PointStruct{pointStruct},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}
	return nil
}

// buildPointStruct converts an engine Point into the wire shape Qdrant
// expects. Qdrant point ids must be a uint64 or an actual UUID; the
// engine's own node ids (e.g. "table-1-0") are neither, so a fresh UUID is
// minted for the wire id and the node id is carried through the payload
// instead, the same way documentId/nodeType already are.
func buildPointStruct(point Point) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, len(point.Metadata)+1)
	for k, v := range point.Metadata {
		payload[k] = toQdrantValue(v)
	}
	payload["nodeId"] = toQdrantValue(point.ID)

	return &qdrant.PointStruct{
		Id: &qdrant.PointId{
			PointIdOptions: &qdrant.PointId_Uuid{Uuid: uuid.New().String()},
		},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: point.Vector},
			},
		},
		Payload: payload,
	}
}

// Close releases the underlying gRPC connection.
func (idx *QdrantIndex) Close() error {
	if idx.conn != nil {
		return idx.conn.Close()
	}
	return nil
}

func toQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}
