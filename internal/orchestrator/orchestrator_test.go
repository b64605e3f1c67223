package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexusdoc/docengine/internal/document"
	"github.com/nexusdoc/docengine/internal/evaluate"
	"github.com/nexusdoc/docengine/internal/graph"
	"github.com/nexusdoc/docengine/internal/llm"
	"github.com/nexusdoc/docengine/internal/progress"
	"github.com/nexusdoc/docengine/internal/store"
	"github.com/nexusdoc/docengine/internal/summarize"
)

func newTestStore(t *testing.T, doc *document.Document) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	if err := s.Create(context.Background(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestProcessFailsAndMarksStatusOnUnreadableFile(t *testing.T) {
	doc := document.New("doc-1", "report.pdf", 10, "file://report.pdf")
	s := newTestStore(t, doc)
	bus := progress.NewBus(4, time.Minute, time.Minute)
	orch := New(s, nil, nil, nil, nil, bus, nil, Config{})

	ch, unsubscribe, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()
	<-ch // connection_established

	job := Job{DocumentID: "doc-1", FilePath: filepath.Join(t.TempDir(), "missing.pdf"), Filename: "report.pdf"}
	if err := orch.Process(context.Background(), job); err == nil {
		t.Fatal("expected an error for an unreadable file")
	}

	got, _ := s.Get(context.Background(), "doc-1", "")
	if got.Status != document.StatusFailed {
		t.Fatalf("expected status failed, got %v", got.Status)
	}

	ev := <-ch
	if ev.Type != progress.EventError {
		t.Fatalf("expected an error event, got %v", ev.Type)
	}
}

func TestProcessFailsOnInvalidPDFBytes(t *testing.T) {
	doc := document.New("doc-1", "report.pdf", 10, "file://report.pdf")
	s := newTestStore(t, doc)
	orch := New(s, nil, nil, nil, nil, nil, nil, Config{})

	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-pdf.pdf")
	if err := os.WriteFile(path, []byte("this is definitely not a PDF"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := Job{DocumentID: "doc-1", FilePath: path, Filename: "report.pdf"}
	if err := orch.Process(context.Background(), job); err == nil {
		t.Fatal("expected a parsing error for invalid PDF bytes")
	}

	got, _ := s.Get(context.Background(), "doc-1", "")
	if got.Status != document.StatusFailed {
		t.Fatalf("expected status failed, got %v", got.Status)
	}
}

type fakeGenerator struct {
	resp *llm.Response
	err  error
}

func (f *fakeGenerator) GenerateText(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func sampleGraphForOrchestrator(t *testing.T) *graph.DocumentGraph {
	t.Helper()
	g := graph.New()
	if err := g.AddNode(&graph.Node{ID: "doc", Type: graph.NodeDocument, Label: "Report"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode(&graph.Node{ID: "p-1", Type: graph.NodeParagraph, Content: "Revenue grew this quarter."}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(&graph.Edge{Source: "doc", Target: "p-1", Type: graph.EdgeContains, Weight: 1}); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestRequestSummaryPublishesSummaryCompleteOnSuccess(t *testing.T) {
	doc := document.New("doc-1", "report.pdf", 10, "file://report.pdf")
	doc.Graph = sampleGraphForOrchestrator(t)
	s := newTestStore(t, doc)

	gen := &fakeGenerator{resp: &llm.Response{Content: "short summary", Model: "m", Provider: "remote-a"}}
	judge := &fakeGenerator{resp: &llm.Response{Content: "0.9"}}
	summarizer := summarize.NewService(gen, nil)
	evaluator := evaluate.NewService(judge, nil)
	bus := progress.NewBus(4, time.Minute, time.Minute)
	orch := New(s, nil, nil, summarizer, evaluator, bus, nil, Config{})

	ch, unsubscribe, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()
	<-ch // connection_established

	err = orch.RequestSummary(context.Background(), "doc-1", summarize.Options{Type: "executive", MaxLength: 100}, evaluate.DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.Get(context.Background(), "doc-1", "")
	if got.Summary != "short summary" {
		t.Fatalf("expected persisted summary, got %q", got.Summary)
	}

	var sawComplete bool
	for i := 0; i < 10; i++ {
		ev := <-ch
		if ev.Type == progress.EventSummaryComplete {
			sawComplete = true
			break
		}
	}
	if !sawComplete {
		t.Fatal("expected a summary_complete event")
	}
}

func TestRequestSummaryAbortsOnSummarizationFailure(t *testing.T) {
	doc := document.New("doc-1", "report.pdf", 10, "file://report.pdf")
	doc.Graph = sampleGraphForOrchestrator(t)
	s := newTestStore(t, doc)

	gen := &fakeGenerator{err: errDeliberate}
	summarizer := summarize.NewService(gen, nil)
	evaluator := evaluate.NewService(nil, nil)
	bus := progress.NewBus(4, time.Minute, time.Minute)
	orch := New(s, nil, nil, summarizer, evaluator, bus, nil, Config{})

	ch, unsubscribe, err := bus.Subscribe("doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer unsubscribe()
	<-ch // connection_established

	err = orch.RequestSummary(context.Background(), "doc-1", summarize.Options{Type: "executive", MaxLength: 100}, evaluate.DefaultThresholds())
	if err == nil {
		t.Fatal("expected an error from a failing generator")
	}

	ev := <-ch
	for ev.Type == progress.EventProgress {
		ev = <-ch
	}
	if ev.Type != progress.EventError {
		t.Fatalf("expected an error event, got %v", ev.Type)
	}

	got, _ := s.Get(context.Background(), "doc-1", "")
	if got.Summary != "" {
		t.Fatalf("expected no summary persisted on failure, got %q", got.Summary)
	}
}

func TestRequestSummaryFailsWithoutAGraph(t *testing.T) {
	doc := document.New("doc-1", "report.pdf", 10, "file://report.pdf")
	s := newTestStore(t, doc)
	orch := New(s, nil, nil, summarize.NewService(&fakeGenerator{}, nil), evaluate.NewService(nil, nil), nil, nil, Config{})

	if err := orch.RequestSummary(context.Background(), "doc-1", summarize.Options{Type: "executive", MaxLength: 100}, evaluate.DefaultThresholds()); err == nil {
		t.Fatal("expected an error when the document has no graph")
	}
}

func TestReconstructTextJoinsReadableNodeContent(t *testing.T) {
	g := sampleGraphForOrchestrator(t)
	text := reconstructText(g)
	if text != "Revenue grew this quarter." {
		t.Fatalf("expected reconstructed text to contain the paragraph content, got %q", text)
	}
}

var errDeliberate = fakeErr("deliberate failure")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
