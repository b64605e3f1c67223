/**
 * PDF Parser.
 *
 * Binary-validating text extractor that yields pages and paragraphs with
 * positional metadata. The parsing library gives per-page plain text; pages
 * are rejoined with a form-feed separator so the page-splitting heuristic
 * below can exercise its form-feed branch rather than only ever falling
 * back to the paragraph-group approximation.
 */

package pdfparse

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/nexusdoc/docengine/internal/errs"
)

// Metadata holds document-level information stripped of control characters.
type Metadata struct {
	Title    string
	Author   string
	Subject  string
	Creator  string
	Producer string
	Created  *time.Time
	Modified *time.Time
}

// Paragraph is a detected block of body text on a page.
type Paragraph struct {
	ID         string
	Page       int
	Start      int
	End        int
	Content    string
	Confidence float64
}

// Page is one page of extracted text plus its detected paragraphs.
type Page struct {
	Number     int
	Content    string
	Paragraphs []Paragraph
}

// ParsedDocument is the output of parsing a PDF byte buffer.
type ParsedDocument struct {
	Metadata Metadata
	Pages    []Page
	FullText string
	NumPages int
}

const minPDFSize = 100

var (
	xrefKeyword       = []byte("xref")
	xrefStreamTypeTag = []byte("/XRef")
	eofMarker         = []byte("%%EOF")
	pdfHeader         = []byte("%PDF-")
	encryptMarker     = []byte("/Encrypt")
)

// classifyFailure maps a raw parser error into a stable taxonomy tag.
func classifyFailure(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "encrypt"):
		return "encrypted_pdf"
	case strings.Contains(msg, "xref"):
		return "xref_corruption"
	case strings.Contains(msg, "eof") || strings.Contains(msg, "unexpected end"):
		return "missing_eof"
	case strings.Contains(msg, "truncat"):
		return "truncated_file"
	case strings.Contains(msg, "format") || strings.Contains(msg, "header"):
		return "invalid_format"
	default:
		return "unknown"
	}
}

// validateBinary performs the structural checks described in the component
// design before the parsing library is ever invoked.
func validateBinary(data []byte) error {
	if len(data) < minPDFSize {
		return errs.New(errs.InvalidPDF, "too_small: file smaller than minimum PDF size", nil)
	}
	if !bytes.HasPrefix(data, pdfHeader) {
		return errs.New(errs.InvalidPDF, "invalid_format: missing %PDF- header", nil)
	}
	if !bytes.Contains(data, eofMarker) {
		return errs.New(errs.InvalidPDF, "missing_eof: no end-of-file marker found", nil)
	}
	if !bytes.Contains(data, xrefKeyword) && !bytes.Contains(data, xrefStreamTypeTag) {
		return errs.New(errs.InvalidPDF, "xref_corruption: no cross-reference keyword or stream tag found", nil)
	}
	if bytes.Contains(data, encryptMarker) {
		return errs.NewUnsupportedEncryptedPDF()
	}
	return nil
}

// Parse validates and extracts text, pages, and paragraphs from a PDF byte
// buffer. filename is not read.
func Parse(data []byte, filename string) (*ParsedDocument, error) {
	if err := validateBinary(data); err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		tag := classifyFailure(err)
		if tag == "encrypted_pdf" {
			return nil, errs.NewUnsupportedEncryptedPDF()
		}
		return nil, errs.NewInvalidPDF(tag, err)
	}

	numPages := reader.NumPage()

	var pageTexts []string
	for i := 1; i <= numPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pageTexts = append(pageTexts, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			pageTexts = append(pageTexts, "")
			continue
		}
		pageTexts = append(pageTexts, text)
	}

	fullText := strings.Join(pageTexts, "\f")

	info := extractMetadata(reader)

	pages := splitIntoPages(fullText, numPages)

	return &ParsedDocument{
		Metadata: info,
		Pages:    pages,
		FullText: fullText,
		NumPages: numPages,
	}, nil
}

// splitIntoPages applies the page-splitting heuristic: prefer form-feed
// boundaries when present and plausible, otherwise distribute paragraphs
// evenly across the expected page count.
func splitIntoPages(fullText string, expectedPages int) []Page {
	if expectedPages <= 0 {
		expectedPages = 1
	}

	formFeedParts := strings.Split(fullText, "\f")
	var rawPages []string
	if strings.Count(fullText, "\f") > 0 && len(formFeedParts) <= expectedPages {
		rawPages = formFeedParts
	} else {
		paragraphs := splitParagraphBlocks(strings.ReplaceAll(fullText, "\f", "\n\n"))
		groupSize := int(math.Ceil(float64(len(paragraphs)) / float64(expectedPages)))
		if groupSize < 1 {
			groupSize = 1
		}
		for i := 0; i < len(paragraphs); i += groupSize {
			end := i + groupSize
			if end > len(paragraphs) {
				end = len(paragraphs)
			}
			rawPages = append(rawPages, strings.Join(paragraphs[i:end], "\n\n"))
		}
		for len(rawPages) < expectedPages {
			rawPages = append(rawPages, "")
		}
	}

	pages := make([]Page, 0, len(rawPages))
	for i, content := range rawPages {
		pageNum := i + 1
		paragraphs := detectParagraphs(content, pageNum)
		if len(paragraphs) == 0 && strings.TrimSpace(content) != "" {
			paragraphs = []Paragraph{fallbackParagraph(content, pageNum, 0)}
		} else if len(paragraphs) == 0 {
			paragraphs = []Paragraph{fallbackParagraph(content, pageNum, 0)}
		}
		pages = append(pages, Page{
			Number:     pageNum,
			Content:    content,
			Paragraphs: paragraphs,
		})
	}
	return pages
}

func fallbackParagraph(content string, page, index int) Paragraph {
	return Paragraph{
		ID:         fmt.Sprintf("p%d-%d", page, index),
		Page:       page,
		Start:      0,
		End:        len(content),
		Content:    content,
		Confidence: 0.5,
	}
}

var blankLineSplit = regexp.MustCompile(`\n\s*\n+`)

func splitParagraphBlocks(text string) []string {
	blocks := blankLineSplit.Split(text, -1)
	var out []string
	for _, b := range blocks {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

var sentenceTerminators = regexp.MustCompile(`[.!?]`)

// detectParagraphs splits page text on blank lines and scores each block.
func detectParagraphs(pageText string, page int) []Paragraph {
	var paragraphs []Paragraph
	offset := 0
	blocks := blankLineSplit.Split(pageText, -1)
	for i, block := range blocks {
		trimmed := strings.TrimSpace(block)
		start := strings.Index(pageText[offset:], block)
		if start >= 0 {
			start += offset
		} else {
			start = offset
		}
		end := start + len(block)
		offset = end

		if trimmed == "" {
			continue
		}

		confidence := 0.5
		if len(sentenceTerminators.FindAllString(trimmed, -1)) >= 2 {
			confidence += 0.2
		}
		if len(trimmed) >= 50 && len(trimmed) <= 1000 {
			confidence += 0.2
		}
		if len(trimmed) < 20 {
			confidence -= 0.3
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		paragraphs = append(paragraphs, Paragraph{
			ID:         fmt.Sprintf("p%d-%d", page, i),
			Page:       page,
			Start:      start,
			End:        end,
			Content:    trimmed,
			Confidence: confidence,
		})
	}
	return paragraphs
}

func cleanControlChars(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// pdfDatePattern matches PDF date strings: D:YYYYMMDDHHMMSS[+-]HH'mm'
var pdfDatePattern = regexp.MustCompile(`^D:(\d{4})(\d{2})?(\d{2})?(\d{2})?(\d{2})?(\d{2})?([+-]\d{2}'\d{2})?`)

func parsePDFDate(raw string) *time.Time {
	m := pdfDatePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	get := func(idx int, def string) string {
		if idx < len(m) && m[idx] != "" {
			return m[idx]
		}
		return def
	}
	year := get(1, "")
	if year == "" {
		return nil
	}
	month := get(2, "01")
	day := get(3, "01")
	hour := get(4, "00")
	minute := get(5, "00")
	second := get(6, "00")

	layout := "20060102150405"
	value := year + month + day + hour + minute + second
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

func extractMetadata(reader *pdf.Reader) Metadata {
	trailer := reader.Trailer()
	info := trailer.Key("Info")

	meta := Metadata{}
	if info.IsNull() {
		return meta
	}

	readField := func(key string) string {
		v := info.Key(key)
		if v.IsNull() {
			return ""
		}
		return cleanControlChars(v.RawString())
	}

	meta.Title = readField("Title")
	meta.Author = readField("Author")
	meta.Subject = readField("Subject")
	meta.Creator = readField("Creator")
	meta.Producer = readField("Producer")

	if raw := readField("CreationDate"); raw != "" {
		meta.Created = parsePDFDate(raw)
	}
	if raw := readField("ModDate"); raw != "" {
		meta.Modified = parsePDFDate(raw)
	}

	return meta
}

// EstimatePageCount classifies a file by size in KB when the caller has no
// authoritative page count (used by the Image Extractor).
func EstimatePageCount(byteSize int64) int {
	kb := float64(byteSize) / 1024.0
	var count int
	switch {
	case kb < 500:
		count = int(math.Ceil(kb / 50))
	case kb < 5000:
		count = int(math.Ceil(kb / 150))
	default:
		count = int(math.Ceil(kb / 300))
	}
	if count < 1 {
		count = 1
	}
	if count > 500 {
		count = 500
	}
	return count
}
