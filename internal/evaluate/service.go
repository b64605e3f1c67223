/**
 * Evaluation Service.
 *
 * Runs RAGAS-family LLM-judge metrics and custom structural metrics in
 * parallel over (originalText, summary, graph), combines them into a
 * weighted overall score, and never propagates an internal failure: a
 * broken evaluation degrades to a zeroed "manual review required" result
 * instead of failing the caller's pipeline.
 */

package evaluate

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nexusdoc/docengine/internal/graph"
	"github.com/nexusdoc/docengine/internal/llm"
	"github.com/nexusdoc/docengine/internal/logging"
)

// Weights are fixed and sum to 1.00.
const (
	weightFaithfulness    = 0.25
	weightAnswerRelevancy = 0.15
	weightContextRecall   = 0.15
	weightContextPrecision = 0.15
	weightGrounding       = 0.15
	weightCoverage        = 0.10
	weightGraphUtilization = 0.03
	weightTableAccuracy   = 0.01
	weightReferenceAccuracy = 0.01
)

// Thresholds gate the pass/fail determination.
type Thresholds struct {
	Overall      float64
	Faithfulness float64
	Grounding    float64
	Coverage     float64
}

// DefaultThresholds matches the component design's stated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Overall: 0.7, Faithfulness: 0.8, Grounding: 0.8, Coverage: 0.6}
}

// RagasScores holds the four LLM-judge metrics.
type RagasScores struct {
	Faithfulness     float64
	AnswerRelevancy  float64
	ContextRecall    float64
	ContextPrecision float64
}

// CustomScores holds the five structural metrics.
type CustomScores struct {
	GroundingScore    float64
	CoverageScore     float64
	GraphUtilization  float64
	TableAccuracy     float64
	ReferenceAccuracy float64
}

// Result is the full output of one evaluation run.
type Result struct {
	DocumentID      string
	Timestamp       time.Time
	OverallScore    float64
	Ragas           RagasScores
	Custom          CustomScores
	Thresholds      Thresholds
	Passed          bool
	Recommendations []string
}

// Judge is the subset of llm.Manager the evaluator needs for RAGAS metrics.
type Judge interface {
	GenerateText(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Service runs the full metric suite.
type Service struct {
	judge  Judge
	logger *logging.Logger
}

func NewService(judge Judge, logger *logging.Logger) *Service {
	return &Service{judge: judge, logger: logger}
}

// Evaluate runs every metric in parallel and assembles the weighted score.
// It never returns an error: an internal failure degrades to a zeroed
// result with a "manual review required" recommendation.
func (s *Service) Evaluate(ctx context.Context, documentID, originalText, summary string, g *graph.DocumentGraph, thresholds Thresholds) *Result {
	result := s.evaluateSafely(ctx, documentID, originalText, summary, g, thresholds)
	return result
}

func (s *Service) evaluateSafely(ctx context.Context, documentID, originalText, summary string, g *graph.DocumentGraph, thresholds Thresholds) (out *Result) {
	defer func() {
		if r := recover(); r != nil {
			if s.logger != nil {
				s.logger.Error("evaluation subsystem panicked, returning failed evaluation", "documentId", documentID, "panic", r)
			}
			out = failedResult(documentID, thresholds)
		}
	}()

	var wg sync.WaitGroup
	var ragas RagasScores
	var custom CustomScores

	wg.Add(9)
	go func() { defer wg.Done(); ragas.Faithfulness = s.judgeFaithfulness(ctx, originalText, summary) }()
	go func() { defer wg.Done(); ragas.AnswerRelevancy = s.judgeAnswerRelevancy(ctx, originalText, summary) }()
	go func() { defer wg.Done(); ragas.ContextRecall = s.judgeContextRecall(ctx, originalText, summary) }()
	go func() { defer wg.Done(); ragas.ContextPrecision = s.judgeContextPrecision(ctx, originalText, summary) }()
	go func() { defer wg.Done(); custom.GroundingScore = groundingScore(summary) }()
	go func() { defer wg.Done(); custom.CoverageScore = coverageScore(summary, g) }()
	go func() { defer wg.Done(); custom.GraphUtilization = graphUtilization(summary, g) }()
	go func() { defer wg.Done(); custom.TableAccuracy = tableAccuracy(summary, g) }()
	go func() { defer wg.Done(); custom.ReferenceAccuracy = referenceAccuracy(summary) }()
	wg.Wait()

	overall := weightFaithfulness*ragas.Faithfulness +
		weightAnswerRelevancy*ragas.AnswerRelevancy +
		weightContextRecall*ragas.ContextRecall +
		weightContextPrecision*ragas.ContextPrecision +
		weightGrounding*custom.GroundingScore +
		weightCoverage*custom.CoverageScore +
		weightGraphUtilization*custom.GraphUtilization +
		weightTableAccuracy*custom.TableAccuracy +
		weightReferenceAccuracy*custom.ReferenceAccuracy
	overall = clamp01(overall)

	passed := overall >= thresholds.Overall &&
		ragas.Faithfulness >= thresholds.Faithfulness &&
		custom.GroundingScore >= thresholds.Grounding &&
		custom.CoverageScore >= thresholds.Coverage

	return &Result{
		DocumentID:   documentID,
		Timestamp:    time.Now(),
		OverallScore: overall,
		Ragas:        ragas,
		Custom:       custom,
		Thresholds:   thresholds,
		Passed:       passed,
	}
}

func failedResult(documentID string, thresholds Thresholds) *Result {
	return &Result{
		DocumentID:      documentID,
		Timestamp:       time.Now(),
		OverallScore:    0,
		Thresholds:      thresholds,
		Passed:          false,
		Recommendations: []string{"manual review required"},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// judgeScore issues one low-temperature, short-output judge call and parses
// a bare float out of the response. On any failure (no judge configured,
// call error, unparseable output) it returns the neutral default 0.5.
func (s *Service) judgeScore(ctx context.Context, systemPrompt, userPrompt string) float64 {
	if s.judge == nil {
		return 0.5
	}
	resp, err := s.judge.GenerateText(ctx, llm.Request{
		Messages: []llm.Message{
			llm.TextMessage(llm.RoleSystem, systemPrompt),
			llm.TextMessage(llm.RoleUser, userPrompt),
		},
		Temperature: 0.1,
		MaxTokens:   50,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("evaluation judge call failed, defaulting to neutral score", "error", err)
		}
		return 0.5
	}
	score, ok := parseJudgeScore(resp.Content)
	if !ok {
		if s.logger != nil {
			s.logger.Warn("evaluation judge returned unparseable score, defaulting to neutral", "content", resp.Content)
		}
		return 0.5
	}
	return score
}

var floatPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

func parseJudgeScore(content string) (float64, bool) {
	match := floatPattern.FindString(strings.TrimSpace(content))
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return clamp01(v), true
}

const contextRecallWindow = 8000

func (s *Service) judgeFaithfulness(ctx context.Context, originalText, summary string) float64 {
	return s.judgeScore(ctx,
		"You are a strict fact-checker. Respond with a single number between 0 and 1.",
		"What fraction of the statements in the SUMMARY are directly supported by the SOURCE? Respond with only a number.\n\nSOURCE:\n"+originalText+"\n\nSUMMARY:\n"+summary)
}

func (s *Service) judgeAnswerRelevancy(ctx context.Context, originalText, summary string) float64 {
	return s.judgeScore(ctx,
		"You are evaluating how useful a summary would be for answering likely questions about the source. Respond with a single number between 0 and 1.",
		"How relevant and useful is this SUMMARY for answering likely questions about the SOURCE? Respond with only a number.\n\nSOURCE:\n"+originalText+"\n\nSUMMARY:\n"+summary)
}

func (s *Service) judgeContextRecall(ctx context.Context, originalText, summary string) float64 {
	truncated := originalText
	if len(truncated) > contextRecallWindow {
		truncated = truncated[:contextRecallWindow]
	}
	return s.judgeScore(ctx,
		"You are evaluating how much of the source's important content is covered by a summary. Respond with a single number between 0 and 1.",
		"What fraction of the important content in SOURCE is covered by SUMMARY? Respond with only a number.\n\nSOURCE:\n"+truncated+"\n\nSUMMARY:\n"+summary)
}

func (s *Service) judgeContextPrecision(ctx context.Context, originalText, summary string) float64 {
	return s.judgeScore(ctx,
		"You are evaluating whether every claim in a summary is backed by its source. Respond with a single number between 0 and 1.",
		"What fraction of claims in SUMMARY have direct support in SOURCE? Respond with only a number.\n\nSOURCE:\n"+originalText+"\n\nSUMMARY:\n"+summary)
}
