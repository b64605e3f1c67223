package prompt

import (
	"strings"
	"testing"

	"github.com/nexusdoc/docengine/internal/graph"
)

func buildSampleGraph(t *testing.T) *graph.DocumentGraph {
	t.Helper()
	g := graph.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	must(g.AddNode(&graph.Node{ID: "doc", Type: graph.NodeDocument, Label: "Report"}))
	must(g.AddNode(&graph.Node{ID: "sec-1", Type: graph.NodeSection, Label: "Introduction", Content: "Introduction"}))
	must(g.AddNode(&graph.Node{ID: "p-1", Type: graph.NodeParagraph, Content: "This is the key finding of the report.", Position: graph.Position{Page: 1, Start: 0, End: 10}}))
	must(g.AddNode(&graph.Node{ID: "p-2", Type: graph.NodeParagraph, Content: "An orphan paragraph with no section ancestor.", Position: graph.Position{Page: 2, Start: 0, End: 10}}))
	must(g.AddNode(&graph.Node{ID: "tbl-1", Type: graph.NodeTable, Content: "Table data"}))

	must(g.AddEdge(&graph.Edge{Source: "doc", Target: "sec-1", Type: graph.EdgeContains, Weight: 1}))
	must(g.AddEdge(&graph.Edge{Source: "sec-1", Target: "p-1", Type: graph.EdgeContains, Weight: 1}))
	must(g.AddEdge(&graph.Edge{Source: "doc", Target: "p-2", Type: graph.EdgeContains, Weight: 1}))
	must(g.AddEdge(&graph.Edge{Source: "doc", Target: "tbl-1", Type: graph.EdgeContains, Weight: 1}))

	return g
}

func TestBuildExecutiveSelectsKeyParagraphsAndSections(t *testing.T) {
	g := buildSampleGraph(t)
	tpl := Build(TypeExecutive, g, Options{MaxLength: 100})

	if !strings.Contains(tpl.Context, "Introduction") {
		t.Fatalf("expected section heading in context, got %q", tpl.Context)
	}
	if !strings.Contains(tpl.Context, "key finding") {
		t.Fatalf("expected key paragraph in context, got %q", tpl.Context)
	}
	if strings.Contains(tpl.Context, "orphan paragraph") {
		t.Fatalf("non-key orphan paragraph should not appear in executive context, got %q", tpl.Context)
	}
}

func TestBuildGroupsOrphansUnderAdditionalContent(t *testing.T) {
	g := buildSampleGraph(t)
	tpl := Build(TypeDetailed, g, Options{MaxLength: 100})

	if !strings.Contains(tpl.Context, "Additional Content") {
		t.Fatalf("expected an Additional Content block for the orphan paragraph, got %q", tpl.Context)
	}
	if !strings.Contains(tpl.Context, "orphan paragraph") {
		t.Fatalf("expected orphan paragraph content present, got %q", tpl.Context)
	}
}

func TestBuildNarrativeSortsByPageThenPosition(t *testing.T) {
	g := buildSampleGraph(t)
	tpl := Build(TypeNarrative, g, Options{MaxLength: 100})

	keyIdx := strings.Index(tpl.Context, "key finding")
	orphanIdx := strings.Index(tpl.Context, "orphan paragraph")
	if keyIdx == -1 || orphanIdx == -1 {
		t.Fatalf("expected both paragraphs present in narrative context: %q", tpl.Context)
	}
	if keyIdx > orphanIdx {
		t.Fatalf("expected page-1 paragraph before page-2 paragraph in narrative order")
	}
}

func TestBuildInstructionsIncludeFocusAndExcludeTerms(t *testing.T) {
	g := buildSampleGraph(t)
	tpl := Build(TypeDetailed, g, Options{MaxLength: 250, FocusTerms: []string{"revenue"}, ExcludeTerms: []string{"legal"}})

	joined := strings.Join(tpl.Instructions, " ")
	if !strings.Contains(joined, "revenue") {
		t.Fatalf("expected focus term in instructions, got %q", joined)
	}
	if !strings.Contains(joined, "legal") {
		t.Fatalf("expected exclude term in instructions, got %q", joined)
	}
}

func TestBuildDefaultsMaxLengthAndStyle(t *testing.T) {
	g := buildSampleGraph(t)
	tpl := Build(TypeDetailed, g, Options{})

	if !strings.Contains(tpl.UserPrompt, "300 words") {
		t.Fatalf("expected default max length of 300 words, got %q", tpl.UserPrompt)
	}
}

func TestEstimateTokensRoundsUp(t *testing.T) {
	if got := EstimateTokens("abc"); got != 1 {
		t.Fatalf("expected ceil(3/4)=1, got %d", got)
	}
	if got := EstimateTokens(strings.Repeat("a", 9)); got != 3 {
		t.Fatalf("expected ceil(9/4)=3, got %d", got)
	}
}
