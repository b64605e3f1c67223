package evaluate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nexusdoc/docengine/internal/graph"
)

var groundingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[Node:\d+\]`),
	regexp.MustCompile(`\[p\.\d+\]`),
	regexp.MustCompile(`(?i)\(see (Table|Figure|Section) \d+\)`),
	regexp.MustCompile(`(?i)\bSection \d+(\.\d+)*\b`),
}

var sentenceSplitter = regexp.MustCompile(`[.!?]+`)

func summaryStatements(summary string) []string {
	var statements []string
	for _, s := range sentenceSplitter.Split(summary, -1) {
		trimmed := strings.TrimSpace(s)
		if len(trimmed) > 10 {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

// groundingScore: fraction of statements containing at least one grounding
// citation pattern.
func groundingScore(summary string) float64 {
	statements := summaryStatements(summary)
	if len(statements) == 0 {
		return 1.0
	}
	matched := 0
	for _, stmt := range statements {
		for _, p := range groundingPatterns {
			if p.MatchString(stmt) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(statements))
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) > 3 {
			set[tok] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

const jaccardCoverageThreshold = 0.2

// importantNodes returns heading/table/image nodes plus paragraphs longer
// than 200 characters - the set coverageScore and graphUtilization are
// computed over.
func importantNodes(g *graph.DocumentGraph) []*graph.Node {
	var out []*graph.Node
	out = append(out, g.NodesByType(graph.NodeHeading, graph.NodeTable, graph.NodeImage)...)
	for _, n := range g.NodesByType(graph.NodeParagraph) {
		if len(n.Content) > 200 {
			out = append(out, n)
		}
	}
	return out
}

func isCovered(n *graph.Node, summaryTokens map[string]bool) bool {
	return jaccard(tokenSet(n.Content), summaryTokens) > jaccardCoverageThreshold
}

// coverageScore: fraction of important nodes with substantial word-overlap
// with the summary.
func coverageScore(summary string, g *graph.DocumentGraph) float64 {
	important := importantNodes(g)
	if len(important) == 0 {
		return 1.0
	}
	summaryTokens := tokenSet(summary)
	covered := 0
	for _, n := range important {
		if isCovered(n, summaryTokens) {
			covered++
		}
	}
	return float64(covered) / float64(len(important))
}

// graphUtilization: fraction of edges whose both endpoints are covered.
func graphUtilization(summary string, g *graph.DocumentGraph) float64 {
	edges := g.Edges()
	if len(edges) == 0 {
		return 1.0
	}
	summaryTokens := tokenSet(summary)
	coveredCache := make(map[string]bool)
	covered := func(id string) bool {
		if v, ok := coveredCache[id]; ok {
			return v
		}
		n := g.Node(id)
		v := n != nil && isCovered(n, summaryTokens)
		coveredCache[id] = v
		return v
	}

	matched := 0
	for _, e := range edges {
		if covered(e.Source) && covered(e.Target) {
			matched++
		}
	}
	return float64(matched) / float64(len(edges))
}

var tableFigureRefPattern = regexp.MustCompile(`(?i)(Table|Figure) (\d+)`)

// tableAccuracy: for each "Table N"/"Figure N" reference in the summary,
// score 1 if a table/image node's content or metadata tableNumber contains
// N.
func tableAccuracy(summary string, g *graph.DocumentGraph) float64 {
	matches := tableFigureRefPattern.FindAllStringSubmatch(summary, -1)
	if len(matches) == 0 {
		return 1.0
	}

	tablesAndImages := g.NodesByType(graph.NodeTable, graph.NodeImage)
	correct := 0
	for _, m := range matches {
		n := m[2]
		found := false
		for _, node := range tablesAndImages {
			if strings.Contains(node.Content, n) {
				found = true
				break
			}
			if tn, ok := node.Metadata["tableNumber"]; ok {
				if matchesTableNumber(tn, n) {
					found = true
					break
				}
			}
		}
		if found {
			correct++
		}
	}
	return float64(correct) / float64(len(matches))
}

func matchesTableNumber(tableNumber interface{}, n string) bool {
	switch v := tableNumber.(type) {
	case string:
		return v == n
	case int:
		return strconv.Itoa(v) == n
	case float64:
		return strconv.Itoa(int(v)) == n
	default:
		return false
	}
}

var sectionRefFormat = regexp.MustCompile(`^Section \d+(\.\d+)*$`)
var pageRefFormat = regexp.MustCompile(`^(page|p\.) \d+$`)
var referenceCandidatePattern = regexp.MustCompile(`(?i)(Section \d+(\.\d+)*|page \d+|p\. \d+)`)

// referenceAccuracy: validates the format of Section/page/p. references in
// the summary; does not cross-check against the graph.
func referenceAccuracy(summary string) float64 {
	matches := referenceCandidatePattern.FindAllString(summary, -1)
	if len(matches) == 0 {
		return 1.0
	}
	valid := 0
	for _, m := range matches {
		if sectionRefFormat.MatchString(m) || pageRefFormat.MatchString(strings.ToLower(m)) {
			valid++
		}
	}
	return float64(valid) / float64(len(matches))
}
