/**
 * Summarization Service.
 *
 * Drives a prompt built from a graph through the LLM Manager, persists the
 * resulting text on the Document, and reports the full cost/token
 * accounting the caller needs for billing and progress reporting.
 */

package summarize

import (
	"context"
	"fmt"

	"github.com/nexusdoc/docengine/internal/document"
	"github.com/nexusdoc/docengine/internal/errs"
	"github.com/nexusdoc/docengine/internal/graph"
	"github.com/nexusdoc/docengine/internal/llm"
	"github.com/nexusdoc/docengine/internal/logging"
	"github.com/nexusdoc/docengine/internal/prompt"
)

const (
	minMaxLength = 50
	maxMaxLength = 5000
)

// Options configures one summarization call.
type Options struct {
	Type         prompt.SummaryType
	MaxLength    int
	FocusTerms   []string
	ExcludeTerms []string
	Style        prompt.Style
	Model        string // optional explicit model override
	Provider     string // optional; advisory, validated but not yet threaded through Manager selection
}

func (o Options) validate() error {
	if o.MaxLength == 0 {
		o.MaxLength = 300
	}
	if o.MaxLength < minMaxLength || o.MaxLength > maxMaxLength {
		return errs.NewInvalidOption("maxLength", o.MaxLength)
	}
	switch o.Type {
	case prompt.TypeExecutive, prompt.TypeDetailed, prompt.TypeChapter,
		prompt.TypeBulletPoints, prompt.TypeNarrative, prompt.TypeTechnical:
	default:
		return errs.NewInvalidOption("type", string(o.Type))
	}
	if o.Style != "" {
		switch o.Style {
		case prompt.StyleFormal, prompt.StyleCasual, prompt.StyleTechnical:
		default:
			return errs.NewInvalidOption("style", string(o.Style))
		}
	}
	if o.Provider != "" {
		switch o.Provider {
		case string(llm.ProviderRemoteA), string(llm.ProviderRemoteB):
		default:
			return errs.NewInvalidOption("provider", o.Provider)
		}
	}
	return nil
}

// Generator is the subset of llm.Manager the summarizer depends on.
type Generator interface {
	GenerateText(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Result is what Summarize returns on success.
type Result struct {
	Summary        string
	Type           prompt.SummaryType
	Model          string
	Provider       string
	Tokens         llm.TokenUsage
	Cost           float64
	ProcessingTime float64
	GraphStats     graph.Stats
}

// Service ties the prompt builder to an LLM generator.
type Service struct {
	generator Generator
	logger    *logging.Logger
}

func NewService(generator Generator, logger *logging.Logger) *Service {
	return &Service{generator: generator, logger: logger}
}

// Summarize validates opts, builds a prompt from doc's graph, requests text
// from the generator, and persists the resulting summary onto doc.
func (s *Service) Summarize(ctx context.Context, doc *document.Document, opts Options) (*Result, error) {
	if opts.MaxLength == 0 {
		opts.MaxLength = 300
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if doc.Graph == nil {
		return nil, fmt.Errorf("document %s has no graph to summarize", doc.ID)
	}

	tpl := prompt.Build(opts.Type, doc.Graph, prompt.Options{
		MaxLength:    opts.MaxLength,
		FocusTerms:   opts.FocusTerms,
		ExcludeTerms: opts.ExcludeTerms,
		Style:        opts.Style,
	})

	req := llm.Request{
		Messages: []llm.Message{
			llm.TextMessage(llm.RoleSystem, tpl.SystemPrompt),
			llm.TextMessage(llm.RoleUser, tpl.UserPrompt),
		},
		MaxTokens:     opts.MaxLength * 2,
		Temperature:   0.3,
		ModelOverride: opts.Model,
	}

	resp, err := s.generator.GenerateText(ctx, req)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("summarization call failed", "documentId", doc.ID, "type", string(opts.Type), "error", err)
		}
		return nil, err
	}

	doc.Summary = resp.Content

	return &Result{
		Summary:        resp.Content,
		Type:           opts.Type,
		Model:          resp.Model,
		Provider:       resp.Provider,
		Tokens:         resp.Tokens,
		Cost:           resp.Cost,
		ProcessingTime: resp.ProcessingTime,
		GraphStats:     doc.Graph.Stats(),
	}, nil
}

// SummarizeMultiple processes each requested type sequentially (to avoid
// parallel quota contention) and aborts on the first failure: no partial
// success is returned.
func (s *Service) SummarizeMultiple(ctx context.Context, doc *document.Document, types []prompt.SummaryType, base Options) ([]*Result, error) {
	results := make([]*Result, 0, len(types))
	for _, t := range types {
		opts := base
		opts.Type = t
		result, err := s.Summarize(ctx, doc, opts)
		if err != nil {
			return nil, fmt.Errorf("summarizeMultiple aborted on type %q: %w", t, err)
		}
		results = append(results, result)
	}
	return results, nil
}
