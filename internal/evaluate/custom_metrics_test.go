package evaluate

import (
	"testing"

	"github.com/nexusdoc/docengine/internal/graph"
)

func buildGraphForMetrics(t *testing.T) *graph.DocumentGraph {
	t.Helper()
	g := graph.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(g.AddNode(&graph.Node{ID: "doc", Type: graph.NodeDocument, Label: "Report"}))
	must(g.AddNode(&graph.Node{ID: "h-1", Type: graph.NodeHeading, Content: "Quarterly revenue growth analysis"}))
	must(g.AddNode(&graph.Node{ID: "p-1", Type: graph.NodeParagraph, Content: "Revenue growth accelerated significantly across every major product line this quarter."}))
	must(g.AddNode(&graph.Node{ID: "tbl-1", Type: graph.NodeTable, Content: "Table 1 revenue breakdown", Metadata: map[string]interface{}{"tableNumber": 1}}))
	must(g.AddEdge(&graph.Edge{Source: "doc", Target: "h-1", Type: graph.EdgeContains, Weight: 1}))
	must(g.AddEdge(&graph.Edge{Source: "doc", Target: "p-1", Type: graph.EdgeContains, Weight: 1}))
	must(g.AddEdge(&graph.Edge{Source: "doc", Target: "tbl-1", Type: graph.EdgeContains, Weight: 1}))
	return g
}

func TestGroundingScoreCountsCitedStatements(t *testing.T) {
	summary := "Revenue grew this quarter [Node:12]! Costs also rose unexpectedly"
	score := groundingScore(summary)
	if score != 0.5 {
		t.Fatalf("expected 0.5 (1 of 2 statements cited), got %v", score)
	}
}

func TestGroundingScoreCountsUnparenthesizedSectionReferences(t *testing.T) {
	summary := "The result is notable (see Table 1). Section 2 defines the method"
	score := groundingScore(summary)
	if score != 1.0 {
		t.Fatalf("expected 1.0 (both statements cited, one via a bare 'Section N' mention), got %v", score)
	}
}

func TestGroundingScoreDefaultsToOneWithNoStatements(t *testing.T) {
	if got := groundingScore(""); got != 1.0 {
		t.Fatalf("expected 1.0 for empty summary, got %v", got)
	}
}

func TestCoverageScoreRewardsOverlappingSummary(t *testing.T) {
	g := buildGraphForMetrics(t)
	summary := "Quarterly revenue growth accelerated across product lines."
	score := coverageScore(summary, g)
	if score <= 0 {
		t.Fatalf("expected positive coverage score, got %v", score)
	}
}

func TestCoverageScoreIsOneWhenNoImportantNodes(t *testing.T) {
	g := graph.New()
	if err := g.AddNode(&graph.Node{ID: "doc", Type: graph.NodeDocument}); err != nil {
		t.Fatal(err)
	}
	if got := coverageScore("anything", g); got != 1.0 {
		t.Fatalf("expected 1.0 when there are no important nodes, got %v", got)
	}
}

func TestTableAccuracyMatchesReferencedTableNumber(t *testing.T) {
	g := buildGraphForMetrics(t)
	score := tableAccuracy("As shown in Table 1, revenue grew.", g)
	if score != 1.0 {
		t.Fatalf("expected 1.0 for a correctly referenced table, got %v", score)
	}
}

func TestTableAccuracyPenalizesUnknownTable(t *testing.T) {
	g := buildGraphForMetrics(t)
	score := tableAccuracy("As shown in Table 9, revenue grew.", g)
	if score != 0.0 {
		t.Fatalf("expected 0.0 for an unreferenced table number, got %v", score)
	}
}

func TestTableAccuracyDefaultsToOneWithNoReferences(t *testing.T) {
	g := buildGraphForMetrics(t)
	if got := tableAccuracy("No references here.", g); got != 1.0 {
		t.Fatalf("expected 1.0 with no table/figure references, got %v", got)
	}
}

func TestReferenceAccuracyValidatesFormat(t *testing.T) {
	if got := referenceAccuracy("See Section 2.1 for details."); got != 1.0 {
		t.Fatalf("expected 1.0 for well-formed Section reference, got %v", got)
	}
}

func TestReferenceAccuracyDefaultsToOneWithNoReferences(t *testing.T) {
	if got := referenceAccuracy("No section references at all."); got != 1.0 {
		t.Fatalf("expected 1.0 with no references, got %v", got)
	}
}

func TestGraphUtilizationIsOneForEmptyEdgeSet(t *testing.T) {
	g := graph.New()
	if err := g.AddNode(&graph.Node{ID: "doc", Type: graph.NodeDocument}); err != nil {
		t.Fatal(err)
	}
	if got := graphUtilization("anything", g); got != 1.0 {
		t.Fatalf("expected 1.0 for an empty edge set, got %v", got)
	}
}
