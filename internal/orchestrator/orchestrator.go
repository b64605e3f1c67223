/**
 * Document Orchestrator.
 *
 * Drives one uploaded document through PARSING -> IMAGE_EXTRACTION (non-fatal)
 * -> GRAPH_BUILD -> EMBEDDING (non-fatal) -> persist, then, on explicit
 * request, SUMMARIZATION -> EVALUATION. Transport-agnostic: the only entry
 * points are Process and RequestSummary, each taking a context.Context and
 * returning a plain error, the same shape the teacher's queue consumer
 * expects from processor.DocumentProcessorInterface.
 */

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nexusdoc/docengine/internal/document"
	"github.com/nexusdoc/docengine/internal/embedding"
	"github.com/nexusdoc/docengine/internal/errs"
	"github.com/nexusdoc/docengine/internal/evaluate"
	"github.com/nexusdoc/docengine/internal/graph"
	"github.com/nexusdoc/docengine/internal/graphbuild"
	"github.com/nexusdoc/docengine/internal/imageextract"
	"github.com/nexusdoc/docengine/internal/logging"
	"github.com/nexusdoc/docengine/internal/pdfparse"
	"github.com/nexusdoc/docengine/internal/progress"
	"github.com/nexusdoc/docengine/internal/store"
	"github.com/nexusdoc/docengine/internal/summarize"
)

// Job describes one ingest task submitted to the orchestrator.
type Job struct {
	DocumentID string
	FilePath   string
	Filename   string
}

const defaultOverallTimeout = 10 * time.Minute

// Config tunes the orchestrator's stage behavior. Zero values select the
// documented defaults.
type Config struct {
	OverallTimeout  time.Duration
	ImageExtraction imageextract.Options
}

func (c Config) withDefaults() Config {
	if c.OverallTimeout == 0 {
		c.OverallTimeout = defaultOverallTimeout
	}
	return c
}

// Orchestrator wires every stage collaborator behind the two entry points a
// caller needs: Process (ingest) and RequestSummary (on-demand).
type Orchestrator struct {
	store      store.DocumentStore
	images     *imageextract.Extractor
	embeddings *embedding.Service
	summarizer *summarize.Service
	evaluator  *evaluate.Service
	bus        *progress.Bus
	logger     *logging.Logger
	config     Config
}

// New constructs an Orchestrator. images and embeddings may be nil, in
// which case those stages are skipped (treated the same as a stage that
// ran and failed: non-fatal, continue with an empty result).
func New(
	documentStore store.DocumentStore,
	images *imageextract.Extractor,
	embeddings *embedding.Service,
	summarizer *summarize.Service,
	evaluator *evaluate.Service,
	bus *progress.Bus,
	logger *logging.Logger,
	config Config,
) *Orchestrator {
	return &Orchestrator{
		store:      documentStore,
		images:     images,
		embeddings: embeddings,
		summarizer: summarizer,
		evaluator:  evaluator,
		bus:        bus,
		logger:     logger,
		config:     config.withDefaults(),
	}
}

func (o *Orchestrator) publish(documentID string, stage progress.Stage, stageProgress float64, message string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(documentID, progress.Event{
		Type:    progress.EventProgress,
		Stage:   stage,
		Percent: progress.StagePercent(stage, stageProgress),
		Message: message,
	})
}

func (o *Orchestrator) fail(ctx context.Context, documentID string, stage progress.Stage, message string, cause error) error {
	if o.logger != nil {
		o.logger.Error(message, "documentId", documentID, "stage", string(stage), "error", cause)
	}
	if err := o.store.UpdateStatus(ctx, documentID, document.StatusFailed, cause.Error()); err != nil && o.logger != nil {
		o.logger.Warn("failed to persist failed status", "documentId", documentID, "error", err)
	}
	if o.bus != nil {
		o.bus.Publish(documentID, progress.Event{
			Type:    progress.EventError,
			Stage:   stage,
			Message: message,
			Code:    errorCode(cause),
		})
	}
	return fmt.Errorf("%s: %w", message, cause)
}

func errorCode(err error) string {
	if ee, ok := err.(*errs.EngineError); ok {
		return string(ee.Code)
	}
	return ""
}

// Process runs the ingest pipeline for one uploaded document: PARSING,
// IMAGE_EXTRACTION (non-fatal), GRAPH_BUILD, EMBEDDING (non-fatal), and
// finally persisting the built graph. It does not summarize or evaluate;
// callers request that separately via RequestSummary once ingest succeeds.
func (o *Orchestrator) Process(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, o.config.OverallTimeout)
	defer cancel()

	if err := o.store.UpdateStatus(ctx, job.DocumentID, document.StatusProcessing, ""); err != nil && o.logger != nil {
		o.logger.Warn("failed to mark document processing", "documentId", job.DocumentID, "error", err)
	}

	data, err := os.ReadFile(job.FilePath)
	if err != nil {
		return o.fail(ctx, job.DocumentID, progress.StageParsing, "failed to read uploaded file", err)
	}

	o.publish(job.DocumentID, progress.StageParsing, 0, "parsing document")
	parsed, err := pdfparse.Parse(data, job.Filename)
	if err != nil {
		return o.fail(ctx, job.DocumentID, progress.StageParsing, "parsing failed", err)
	}
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, job.DocumentID, progress.StageParsing, "cancelled during parsing", errs.NewCancelled(job.DocumentID))
	}
	o.publish(job.DocumentID, progress.StageParsing, 1, "parsing complete")

	o.publish(job.DocumentID, progress.StageImageExtraction, 0, "extracting images")
	var images []imageextract.ExtractedImage
	if o.images != nil {
		extracted, err := o.images.Extract(ctx, job.FilePath, o.config.ImageExtraction)
		if err != nil && o.logger != nil {
			o.logger.Warn("image extraction reported an error, continuing with the images extracted so far", "documentId", job.DocumentID, "error", err)
		}
		images = extracted
	}
	o.publish(job.DocumentID, progress.StageImageExtraction, 1, "image extraction complete")

	o.publish(job.DocumentID, progress.StageGraphBuild, 0, "building graph")
	g, err := graphbuild.Build(graphbuild.Input{
		Filename: job.Filename,
		Parsed:   parsed,
		Images:   images,
	})
	if err != nil {
		return o.fail(ctx, job.DocumentID, progress.StageGraphBuild, "graph build failed", err)
	}
	o.publish(job.DocumentID, progress.StageGraphBuild, 1, "graph build complete")

	o.publish(job.DocumentID, progress.StageEmbedding, 0, "generating embeddings")
	if o.embeddings != nil {
		if _, err := o.embeddings.EmbedDocument(ctx, job.DocumentID, g); err != nil {
			if o.logger != nil {
				o.logger.Warn("embedding stage failed, continuing with zero embeddings", "documentId", job.DocumentID, "error", err)
			}
		}
	}
	o.publish(job.DocumentID, progress.StageEmbedding, 1, "embedding complete")

	if err := o.store.StoreGraph(ctx, job.DocumentID, g); err != nil {
		return o.fail(ctx, job.DocumentID, progress.StageGraphBuild, "failed to persist graph", err)
	}
	if err := o.store.UpdateStatus(ctx, job.DocumentID, document.StatusCompleted, ""); err != nil && o.logger != nil {
		o.logger.Warn("failed to mark document completed", "documentId", job.DocumentID, "error", err)
	}

	o.publish(job.DocumentID, progress.StageComplete, 1, "ingest complete")
	return nil
}

// reconstructText rebuilds a flat text view of a graph's readable content,
// in insertion order, for use as the evaluator's "original" source text.
func reconstructText(g *graph.DocumentGraph) string {
	var parts []string
	for _, n := range g.Nodes() {
		switch n.Type {
		case graph.NodeHeading, graph.NodeParagraph, graph.NodeTable, graph.NodeList, graph.NodeCode:
			if n.Content != "" {
				parts = append(parts, n.Content)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// RequestSummary runs SUMMARIZATION followed by EVALUATION for a document
// whose graph has already been built and persisted. A summarization
// failure emits an error event and aborts before evaluation runs; an
// evaluation failure is swallowed by the evaluator itself (§4.9) and still
// yields a summary_complete event, with evaluation set to a zeroed "manual
// review required" result rather than absent.
func (o *Orchestrator) RequestSummary(ctx context.Context, documentID string, opts summarize.Options, thresholds evaluate.Thresholds) error {
	ctx, cancel := context.WithTimeout(ctx, o.config.OverallTimeout)
	defer cancel()

	doc, err := o.store.Get(ctx, documentID, "")
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	if doc.Graph == nil {
		return fmt.Errorf("document %s has no graph to summarize", documentID)
	}

	o.publish(documentID, progress.StageSummarization, 0, "summarizing")
	result, err := o.summarizer.Summarize(ctx, doc, opts)
	if err != nil {
		if o.bus != nil {
			o.bus.Publish(documentID, progress.Event{
				Type:    progress.EventError,
				Stage:   progress.StageSummarization,
				Message: err.Error(),
				Code:    errorCode(err),
			})
		}
		return fmt.Errorf("summarization failed for %s: %w", documentID, err)
	}
	o.publish(documentID, progress.StageSummarization, 1, "summarization complete")

	if err := o.store.StoreSummary(ctx, documentID, doc.Summary); err != nil && o.logger != nil {
		o.logger.Warn("failed to persist summary", "documentId", documentID, "error", err)
	}

	o.publish(documentID, progress.StageEvaluation, 0, "evaluating")
	evalResult := o.evaluator.Evaluate(ctx, documentID, reconstructText(doc.Graph), doc.Summary, doc.Graph, thresholds)
	o.publish(documentID, progress.StageEvaluation, 1, "evaluation complete")

	if o.bus != nil {
		o.bus.Publish(documentID, progress.Event{
			Type:              progress.EventSummaryComplete,
			SummaryPayload:    result,
			EvaluationPayload: evalResult,
		})
	}
	return nil
}
