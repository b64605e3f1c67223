package embedding

import (
	"context"
	"fmt"
	"testing"

	"github.com/nexusdoc/docengine/internal/graph"
)

type fakeProvider struct {
	calls     int
	failFirst bool
}

func (f *fakeProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failFirst && f.calls == 1 {
		return nil, fmt.Errorf("simulated provider failure")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 0.5}
	}
	return out, nil
}

type fakeIndex struct {
	upserts []Point
}

func (f *fakeIndex) Upsert(ctx context.Context, point Point) error {
	f.upserts = append(f.upserts, point)
	return nil
}

func buildSampleGraph(t *testing.T) *graph.DocumentGraph {
	t.Helper()
	g := graph.New()
	if err := g.AddNode(&graph.Node{ID: "doc", Type: graph.NodeDocument}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode(&graph.Node{ID: "p1", Type: graph.NodeParagraph, Content: "alpha"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode(&graph.Node{ID: "p2", Type: graph.NodeParagraph, Content: "beta"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(&graph.Edge{Source: "doc", Target: "p1", Type: graph.EdgeContains, Weight: 1}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(&graph.Edge{Source: "doc", Target: "p2", Type: graph.EdgeContains, Weight: 1}); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestEmbedDocumentWritesOneRecordPerEligibleNode(t *testing.T) {
	provider := &fakeProvider{}
	index := &fakeIndex{}
	svc := NewService(provider, index, "test-model", 10, nil)

	records, err := svc.EmbedDocument(context.Background(), "doc-1", buildSampleGraph(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if len(index.upserts) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(index.upserts))
	}
}

func TestEmbedDocumentSkipsDocumentRootNode(t *testing.T) {
	provider := &fakeProvider{}
	index := &fakeIndex{}
	svc := NewService(provider, index, "test-model", 10, nil)

	_, err := svc.EmbedDocument(context.Background(), "doc-1", buildSampleGraph(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range index.upserts {
		if p.ID == "doc" {
			t.Fatal("document root node should never be embedded")
		}
	}
}

func TestEmbedDocumentPropagatesProviderError(t *testing.T) {
	provider := &fakeProvider{failFirst: true}
	index := &fakeIndex{}
	svc := NewService(provider, index, "test-model", 10, nil)

	_, err := svc.EmbedDocument(context.Background(), "doc-1", buildSampleGraph(t))
	if err == nil {
		t.Fatal("expected error to propagate from provider failure")
	}
}
