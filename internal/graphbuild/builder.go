/**
 * Graph Builder.
 *
 * Single-pass assembly of a DocumentGraph from parser and image-extractor
 * output. Heading detection and reference resolution are heuristic, in the
 * same "best-effort, vision absent" spirit as the teacher's heuristic layout
 * fallback path: no vision model is consulted here, only text shape.
 */

package graphbuild

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nexusdoc/docengine/internal/graph"
	"github.com/nexusdoc/docengine/internal/imageextract"
	"github.com/nexusdoc/docengine/internal/pdfparse"
)

// ProvidedTable is a table detected upstream (by the spec's table-extraction
// collaborator, out of scope here) and handed to the builder pre-formed.
type ProvidedTable struct {
	Page    int
	Rows    int
	Columns int
	RawText string
}

// Input bundles everything the builder consumes in its single pass.
type Input struct {
	Filename string
	Parsed   *pdfparse.ParsedDocument
	Images   []imageextract.ExtractedImage
	Tables   []ProvidedTable
}

var headingWords = regexp.MustCompile(`^[A-Z0-9][A-Za-z0-9 ,:'&/-]{0,79}$`)
var sentenceTerminator = regexp.MustCompile(`[.!?]\s*$`)

func looksLikeHeading(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || len(trimmed) > 80 {
		return false
	}
	if sentenceTerminator.MatchString(trimmed) {
		return false
	}
	if !headingWords.MatchString(trimmed) {
		return false
	}
	isAllCaps := strings.ToUpper(trimmed) == trimmed
	isTitleCase := isRoughlyTitleCase(trimmed)
	return isAllCaps || isTitleCase
}

func isRoughlyTitleCase(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 {
		return false
	}
	capitalized := 0
	for _, w := range words {
		r := []rune(w)
		if len(r) > 0 && strings.ToUpper(string(r[0])) == string(r[0]) {
			capitalized++
		}
	}
	return float64(capitalized)/float64(len(words)) >= 0.6
}

var (
	sectionRefPattern  = regexp.MustCompile(`(?i)\bsection\s+(\d+(?:\.\d+)*)\b`)
	figureRefPattern   = regexp.MustCompile(`(?i)\bfigure\s+(\d+)\b`)
	tableRefPattern    = regexp.MustCompile(`(?i)\btable\s+(\d+)\b`)
	pageRefPattern     = regexp.MustCompile(`(?i)\bpage\s+(\d+)\b`)
	citationPattern    = regexp.MustCompile(`\[(\d+)\]`)
	crossRefPattern    = regexp.MustCompile(`(?i)\bsee\s+(above|below)\b`)

	// tableLeadingNumberPattern pulls a literal table number out of a
	// table's own leading content (e.g. "Table 2: Revenue by quarter"),
	// used as a fallback when a table node has no unique metadata index.
	tableLeadingNumberPattern = regexp.MustCompile(`(?i)^\s*table\s+(\d+)\b`)
)

// DetectedReference is a candidate cross-reference found in a text node,
// prior to target resolution.
type DetectedReference struct {
	Type       string
	Literal    string
	Target     string
	Confidence float64
}

func detectReferences(content string) []DetectedReference {
	var refs []DetectedReference
	for _, m := range sectionRefPattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, DetectedReference{Type: "section", Literal: m[0], Target: m[1], Confidence: 0.8})
	}
	for _, m := range figureRefPattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, DetectedReference{Type: "figure", Literal: m[0], Target: m[1], Confidence: 0.85})
	}
	for _, m := range tableRefPattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, DetectedReference{Type: "table", Literal: m[0], Target: m[1], Confidence: 0.85})
	}
	for _, m := range pageRefPattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, DetectedReference{Type: "page", Literal: m[0], Target: m[1], Confidence: 0.6})
	}
	for _, m := range citationPattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, DetectedReference{Type: "citation", Literal: m[0], Target: m[1], Confidence: 0.7})
	}
	for _, m := range crossRefPattern.FindAllStringSubmatch(content, -1) {
		refs = append(refs, DetectedReference{Type: "cross_reference", Literal: m[0], Target: m[1], Confidence: 0.4})
	}
	return refs
}

// Build assembles a DocumentGraph in the order the component design
// specifies, returning a graph that already satisfies ValidateInvariants.
func Build(in Input) (*graph.DocumentGraph, error) {
	g := graph.New()

	docID := "doc"
	title := in.Parsed.Metadata.Title
	if title == "" {
		title = in.Filename
	}
	if err := g.AddNode(&graph.Node{ID: docID, Type: graph.NodeDocument, Label: title, Content: in.Filename}); err != nil {
		return nil, fmt.Errorf("failed to create document root: %w", err)
	}

	tablesByPage := make(map[int][]ProvidedTable)
	for _, t := range in.Tables {
		tablesByPage[t.Page] = append(tablesByPage[t.Page], t)
	}
	imagesByPage := make(map[int][]imageextract.ExtractedImage)
	for _, img := range in.Images {
		imagesByPage[img.Page] = append(imagesByPage[img.Page], img)
	}

	var textNodeIDs []string // nodes eligible to carry outgoing references, in document order
	tableCounter := 0        // document-wide ordinal, mirroring how the "figure" case orders images

	for _, page := range in.Parsed.Pages {
		pageID := fmt.Sprintf("page-%d", page.Number)
		if err := g.AddNode(&graph.Node{
			ID:       pageID,
			Type:     graph.NodeMetadata,
			Label:    fmt.Sprintf("Page %d", page.Number),
			Position: graph.Position{Page: page.Number},
		}); err != nil {
			return nil, err
		}
		if err := g.AddEdge(&graph.Edge{Source: docID, Target: pageID, Type: graph.EdgeContains, Weight: 1.0}); err != nil {
			return nil, err
		}

		var previousTextNodeID string
		currentContainerID := pageID
		for i, para := range page.Paragraphs {
			label := para.Content
			if len(label) > 60 {
				label = label[:60]
			}

			nodeID := para.ID
			if nodeID == "" {
				nodeID = fmt.Sprintf("p%d-%d", page.Number, i)
			}

			if looksLikeHeading(para.Content) {
				// Heading-shaped text becomes a section boundary: it is a
				// child of the page, and every following paragraph on this
				// page is contained by it until the next section boundary.
				if err := g.AddNode(&graph.Node{
					ID:       nodeID,
					Type:     graph.NodeSection,
					Label:    label,
					Content:  para.Content,
					Position: graph.Position{Page: page.Number, Start: para.Start, End: para.End},
					Metadata: map[string]interface{}{"confidence": para.Confidence},
				}); err != nil {
					return nil, err
				}
				if err := g.AddEdge(&graph.Edge{Source: pageID, Target: nodeID, Type: graph.EdgeContains, Weight: 1.0}); err != nil {
					return nil, err
				}
				if previousTextNodeID != "" {
					if err := g.AddEdge(&graph.Edge{Source: previousTextNodeID, Target: nodeID, Type: graph.EdgeFollows, Weight: 1.0}); err != nil {
						return nil, err
					}
				}
				previousTextNodeID = nodeID
				currentContainerID = nodeID
				textNodeIDs = append(textNodeIDs, nodeID)
				continue
			}

			if err := g.AddNode(&graph.Node{
				ID:       nodeID,
				Type:     graph.NodeParagraph,
				Label:    label,
				Content:  para.Content,
				Position: graph.Position{Page: page.Number, Start: para.Start, End: para.End},
				Metadata: map[string]interface{}{"confidence": para.Confidence},
			}); err != nil {
				return nil, err
			}
			if err := g.AddEdge(&graph.Edge{Source: currentContainerID, Target: nodeID, Type: graph.EdgeContains, Weight: 1.0}); err != nil {
				return nil, err
			}
			if previousTextNodeID != "" {
				if err := g.AddEdge(&graph.Edge{Source: previousTextNodeID, Target: nodeID, Type: graph.EdgeFollows, Weight: 1.0}); err != nil {
					return nil, err
				}
			}
			previousTextNodeID = nodeID
			textNodeIDs = append(textNodeIDs, nodeID)
		}

		for ti, t := range tablesByPage[page.Number] {
			tableID := fmt.Sprintf("table-%d-%d", page.Number, ti)
			tableCounter++
			if err := g.AddNode(&graph.Node{
				ID:      tableID,
				Type:    graph.NodeTable,
				Label:   fmt.Sprintf("Table: %dx%d", t.Rows, t.Columns),
				Content: t.RawText,
				Position: graph.Position{Page: page.Number},
				Metadata: map[string]interface{}{"rows": t.Rows, "columns": t.Columns, "index": tableCounter},
			}); err != nil {
				return nil, err
			}
			if err := g.AddEdge(&graph.Edge{Source: pageID, Target: tableID, Type: graph.EdgeContains, Weight: 1.0}); err != nil {
				return nil, err
			}
		}

		for ii, img := range imagesByPage[page.Number] {
			imageID := fmt.Sprintf("image-%d-%d", page.Number, ii)
			stem := strings.TrimSuffix(img.StorageID, "."+string(img.Format))
			meta := map[string]interface{}{
				"format":           img.Format,
				"width":            img.Width,
				"height":           img.Height,
				"extractionMethod": img.ExtractionMethod,
			}
			if img.OCRText != "" {
				meta["ocrText"] = img.OCRText
			}
			if err := g.AddNode(&graph.Node{
				ID:      imageID,
				Type:    graph.NodeImage,
				Label:   fmt.Sprintf("Image: %s", stem),
				Content: img.StorageID,
				Position: graph.Position{Page: page.Number},
				Metadata: meta,
			}); err != nil {
				return nil, err
			}
			if err := g.AddEdge(&graph.Edge{Source: pageID, Target: imageID, Type: graph.EdgeContains, Weight: 1.0}); err != nil {
				return nil, err
			}
		}
	}

	// Reference detection runs only after every page, table, and image node
	// exists, so a same-page "Table 1" reference can resolve against a table
	// created later in document order.
	seenRefTargets := make(map[string]bool)
	for _, nodeID := range textNodeIDs {
		node := g.Node(nodeID)
		if node == nil {
			continue
		}
		for _, ref := range detectReferences(node.Content) {
			key := fmt.Sprintf("%s->%s:%s", nodeID, ref.Type, ref.Target)
			if seenRefTargets[key] {
				continue
			}
			targetID := resolveReferenceTarget(g, ref)
			if targetID == "" {
				continue
			}
			if err := g.AddEdge(&graph.Edge{
				Source: nodeID,
				Target: targetID,
				Type:   graph.EdgeReferences,
				Weight: ref.Confidence,
				Metadata: map[string]interface{}{
					"literal": ref.Literal,
					"refType": ref.Type,
				},
			}); err == nil {
				seenRefTargets[key] = true
			}
		}
	}

	if err := attachStats(g); err != nil {
		return nil, err
	}

	if err := g.ValidateInvariants(); err != nil {
		return nil, fmt.Errorf("built graph failed invariant validation: %w", err)
	}

	return g, nil
}

// resolveReferenceTarget maps a detected reference to a concrete node id,
// returning "" when no unique target exists (the caller drops the edge).
func resolveReferenceTarget(g *graph.DocumentGraph, ref DetectedReference) string {
	switch ref.Type {
	case "table":
		n, err := strconv.Atoi(ref.Target)
		if err != nil {
			return ""
		}
		var match *graph.Node
		for _, node := range g.NodesByType(graph.NodeTable) {
			idx, hasIndex := node.Metadata["index"].(int)
			numberedInContent := false
			if m := tableLeadingNumberPattern.FindStringSubmatch(node.Content); m != nil {
				if ln, err := strconv.Atoi(m[1]); err == nil && ln == n {
					numberedInContent = true
				}
			}
			if (hasIndex && idx == n) || numberedInContent {
				if match != nil && match.ID != node.ID {
					return ""
				}
				match = node
			}
		}
		if match != nil {
			return match.ID
		}
	case "figure":
		n, err := strconv.Atoi(ref.Target)
		if err != nil {
			return ""
		}
		images := g.NodesByType(graph.NodeImage)
		if n >= 1 && n <= len(images) {
			return images[n-1].ID
		}
	case "section":
		match := ""
		for _, node := range g.NodesByType(graph.NodeHeading, graph.NodeSection) {
			if strings.Contains(node.Label, ref.Target) {
				if match != "" {
					return ""
				}
				match = node.ID
			}
		}
		return match
	}
	return ""
}

func attachStats(g *graph.DocumentGraph) error {
	root := g.RootDocumentNode()
	if root == nil {
		return fmt.Errorf("cannot attach stats: no document root")
	}
	stats := g.Stats()
	if root.Metadata == nil {
		root.Metadata = map[string]interface{}{}
	}
	root.Metadata["totalNodes"] = stats.TotalNodes
	root.Metadata["totalEdges"] = stats.TotalEdges
	root.Metadata["averageDegree"] = stats.AverageDegree
	root.Metadata["maxDegree"] = stats.MaxDegree
	root.Metadata["status"] = "complete"
	return nil
}
