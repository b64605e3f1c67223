/**
 * Prompt Template Service.
 *
 * A pure function from (summary type, graph, options) to a PromptTemplate.
 * No I/O, no provider calls - this package only assembles text.
 */

package prompt

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/nexusdoc/docengine/internal/graph"
)

// SummaryType selects which node subset and system-prompt framing to use.
type SummaryType string

const (
	TypeExecutive    SummaryType = "executive"
	TypeDetailed     SummaryType = "detailed"
	TypeChapter      SummaryType = "chapter"
	TypeBulletPoints SummaryType = "bullet-points"
	TypeNarrative    SummaryType = "narrative"
	TypeTechnical    SummaryType = "technical"
)

// Style tunes the system prompt's register.
type Style string

const (
	StyleFormal    Style = "formal"
	StyleCasual    Style = "casual"
	StyleTechnical Style = "technical"
)

// Options configures prompt construction.
type Options struct {
	MaxLength    int // target summary length in words
	FocusTerms   []string
	ExcludeTerms []string
	Style        Style
}

// PromptTemplate is the output of Build: everything a caller needs to issue
// one LLM generateText call.
type PromptTemplate struct {
	SystemPrompt string
	UserPrompt   string
	Context      string
	Instructions []string
}

var keyTerms = []string{
	"summary", "conclusion", "introduction", "overview", "key", "important",
	"main", "primary", "significant", "recommendation", "finding", "result",
	"outcome",
}

// EstimateTokens estimates a token count as ceil(len(text)/4).
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4.0))
}

func isKeyParagraph(content string) bool {
	if len(content) > 200 {
		return true
	}
	lower := strings.ToLower(content)
	for _, term := range keyTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// selectNodes returns, in graph order, the nodes this summary type draws
// from.
func selectNodes(t SummaryType, g *graph.DocumentGraph) []*graph.Node {
	switch t {
	case TypeExecutive:
		var out []*graph.Node
		for _, n := range g.NodesByType(graph.NodeSection) {
			out = append(out, n)
		}
		for _, n := range g.NodesByType(graph.NodeParagraph) {
			if isKeyParagraph(n.Content) {
				out = append(out, n)
			}
		}
		return out
	case TypeDetailed:
		return g.NodesByType(graph.NodeSection, graph.NodeParagraph, graph.NodeTable, graph.NodeList)
	case TypeChapter:
		return g.NodesByType(graph.NodeSection, graph.NodeParagraph)
	case TypeBulletPoints:
		return g.NodesByType(graph.NodeSection, graph.NodeParagraph, graph.NodeList)
	case TypeNarrative:
		nodes := g.NodesByType(graph.NodeSection, graph.NodeParagraph)
		sorted := make([]*graph.Node, len(nodes))
		copy(sorted, nodes)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Position.Page != sorted[j].Position.Page {
				return sorted[i].Position.Page < sorted[j].Position.Page
			}
			return sorted[i].Position.Start < sorted[j].Position.Start
		})
		return sorted
	case TypeTechnical:
		return g.NodesByType(graph.NodeSection, graph.NodeParagraph, graph.NodeTable, graph.NodeCode, graph.NodeList)
	default:
		return g.NodesByType(graph.NodeSection, graph.NodeParagraph)
	}
}

// assembleContext groups paragraphs under their parent section; orphans
// (no section ancestor) collect under a trailing "Additional Content"
// block.
func assembleContext(nodes []*graph.Node, g *graph.DocumentGraph) string {
	type section struct {
		heading string
		body    []string
	}
	order := make([]string, 0)
	bySection := make(map[string]*section)
	var orphans []string

	sectionFor := func(n *graph.Node) *graph.Node {
		if n.Type == graph.NodeSection {
			return n
		}
		return g.FindParentOfType(n.ID, graph.NodeSection)
	}

	for _, n := range nodes {
		if n.Type == graph.NodeSection {
			if _, ok := bySection[n.ID]; !ok {
				bySection[n.ID] = &section{heading: n.Label}
				order = append(order, n.ID)
			}
			continue
		}
		parent := sectionFor(n)
		if parent == nil {
			orphans = append(orphans, n.Content)
			continue
		}
		s, ok := bySection[parent.ID]
		if !ok {
			s = &section{heading: parent.Label}
			bySection[parent.ID] = s
			order = append(order, parent.ID)
		}
		s.body = append(s.body, n.Content)
	}

	var b strings.Builder
	for _, id := range order {
		s := bySection[id]
		if s.heading != "" {
			b.WriteString("## " + s.heading + "\n")
		}
		for _, line := range s.body {
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	if len(orphans) > 0 {
		b.WriteString("## Additional Content\n")
		for _, line := range orphans {
			b.WriteString(line + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func systemPromptFor(t SummaryType, style Style) string {
	register := map[Style]string{
		StyleFormal:    "Write in a formal, precise register suitable for an executive audience.",
		StyleCasual:    "Write in a conversational, approachable register.",
		StyleTechnical: "Write in a precise technical register, preserving domain terminology.",
	}[style]
	if register == "" {
		register = "Write in a clear, neutral register."
	}

	framing := map[SummaryType]string{
		TypeExecutive:    "You produce executive summaries that foreground conclusions, recommendations, and key findings.",
		TypeDetailed:     "You produce detailed summaries that preserve section structure, tables, and lists.",
		TypeChapter:      "You produce chapter-by-chapter summaries, one paragraph per section.",
		TypeBulletPoints: "You produce bullet-point summaries: one concise bullet per idea.",
		TypeNarrative:    "You produce narrative summaries that follow the document's original reading order.",
		TypeTechnical:    "You produce technical summaries that preserve code, tables, and precise terminology.",
	}[t]

	return fmt.Sprintf("You are a document summarization assistant. %s %s", framing, register)
}

func instructionsFor(t SummaryType, opts Options) []string {
	instructions := []string{
		fmt.Sprintf("Target length: approximately %d words.", opts.MaxLength),
	}
	if len(opts.FocusTerms) > 0 {
		instructions = append(instructions, "Emphasize: "+strings.Join(opts.FocusTerms, ", ")+".")
	}
	if len(opts.ExcludeTerms) > 0 {
		instructions = append(instructions, "Do not mention: "+strings.Join(opts.ExcludeTerms, ", ")+".")
	}
	switch t {
	case TypeBulletPoints:
		instructions = append(instructions, "Format the response as a bulleted list.")
	case TypeChapter:
		instructions = append(instructions, "Produce one labeled paragraph per section.")
	}
	return instructions
}

// Build constructs a PromptTemplate for the given summary type against the
// given graph. It performs no I/O and is safe to call concurrently.
func Build(t SummaryType, g *graph.DocumentGraph, opts Options) PromptTemplate {
	if opts.MaxLength <= 0 {
		opts.MaxLength = 300
	}
	if opts.Style == "" {
		opts.Style = StyleFormal
	}

	nodes := selectNodes(t, g)
	context := assembleContext(nodes, g)
	instructions := instructionsFor(t, opts)

	userPrompt := fmt.Sprintf(
		"Summarize the following document content in approximately %d words.\n\n%s\n\nContext:\n%s",
		opts.MaxLength, strings.Join(instructions, " "), context,
	)

	return PromptTemplate{
		SystemPrompt: systemPromptFor(t, opts.Style),
		UserPrompt:   userPrompt,
		Context:      context,
		Instructions: instructions,
	}
}
