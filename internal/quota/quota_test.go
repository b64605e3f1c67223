package quota

import (
	"testing"
	"time"

	"github.com/nexusdoc/docengine/internal/errs"
)

func testLimits() map[string]Limits {
	return map[string]Limits{
		"cheap-fast-model":    {RPM: 100, TPM: 100000, RPD: 1000},
		"exp-fast-model":      {RPM: 100, TPM: 100000, RPD: 1000},
		"standard-fast-model": {RPM: 100, TPM: 100000, RPD: 1000},
		"premium-model":       {RPM: 100, TPM: 100000, RPD: 1000},
		"exp-premium-model":   {RPM: 100, TPM: 100000, RPD: 1000},
	}
}

func TestRecordUsageIncrementsCounters(t *testing.T) {
	m := New(testLimits(), time.UTC)
	m.RecordUsage("standard-fast-model", 250)
	m.RecordUsage("standard-fast-model", 100)

	snaps := m.Snapshot()
	var found *Snapshot
	for i := range snaps {
		if snaps[i].Model == "standard-fast-model" {
			found = &snaps[i]
		}
	}
	if found == nil {
		t.Fatal("expected a snapshot for standard-fast-model")
	}
	if found.RequestsToday != 2 || found.TokensUsedToday != 350 {
		t.Fatalf("expected requests=2 tokens=350, got requests=%d tokens=%d", found.RequestsToday, found.TokensUsedToday)
	}
}

func TestSelectModelWalksRecommendationOrder(t *testing.T) {
	m := New(testLimits(), time.UTC)
	model, err := m.SelectModel(PurposeBulkProcessing, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "cheap-fast-model" {
		t.Fatalf("expected cheap-fast-model first in bulk-processing order, got %s", model)
	}
}

func TestSelectModelSkipsExhaustedModelsInOrder(t *testing.T) {
	limits := testLimits()
	limits["cheap-fast-model"] = Limits{RPM: 100, TPM: 100000, RPD: 1}
	m := New(limits, time.UTC)

	m.RecordUsage("cheap-fast-model", 10)

	model, err := m.SelectModel(PurposeBulkProcessing, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "exp-fast-model" {
		t.Fatalf("expected fallback to exp-fast-model once cheap-fast-model's RPD is exhausted, got %s", model)
	}
}

func TestSelectModelFailsWithQuotaExhaustedWhenAllModelsExhausted(t *testing.T) {
	limits := map[string]Limits{"standard-fast-model": {RPM: 100, TPM: 100000, RPD: 1}}
	m := New(limits, time.UTC)
	m.RecordUsage("standard-fast-model", 10)

	_, err := m.SelectModel(PurposeStandardAnalysis, 100)
	if err == nil {
		t.Fatal("expected QuotaExhausted error")
	}
	ee, ok := err.(*errs.EngineError)
	if !ok || ee.Code != errs.QuotaExhausted {
		t.Fatalf("expected QuotaExhausted, got %v", err)
	}
	if _, ok := ee.Details["nextResetTime"]; !ok {
		t.Fatal("expected nextResetTime in error details")
	}
}

func TestCheckAndResetIfNeededZeroesCountersOnDayRollover(t *testing.T) {
	m := New(testLimits(), time.UTC)
	m.RecordUsage("standard-fast-model", 500)

	fixed := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	m.dayKey = m.dayKeyFor(fixed)

	m.RecordUsage("standard-fast-model", 10)
	snaps := m.Snapshot()
	for _, s := range snaps {
		if s.Model == "standard-fast-model" && s.RequestsToday != 2 {
			t.Fatalf("expected 2 requests before rollover, got %d", s.RequestsToday)
		}
	}

	next := fixed.AddDate(0, 0, 1).Add(time.Hour)
	m.now = func() time.Time { return next }

	m.RecordUsage("standard-fast-model", 1)
	for _, s := range m.Snapshot() {
		if s.Model == "standard-fast-model" && s.RequestsToday != 1 {
			t.Fatalf("expected counters reset after day rollover, got requests=%d", s.RequestsToday)
		}
	}
}

func TestHasAvailableQuotaReportsFalseForUnknownModel(t *testing.T) {
	m := New(testLimits(), time.UTC)
	if m.HasAvailableQuota("nonexistent-model", 100) {
		t.Fatal("expected false for an unconfigured model")
	}
}

func TestInferPurposeCritical(t *testing.T) {
	if got := InferPurpose("This is a critical task"); got != PurposeCriticalTask {
		t.Fatalf("expected critical-task, got %s", got)
	}
}

func TestInferPurposeSummaryBySize(t *testing.T) {
	small := "please summarize this"
	if got := InferPurpose(small); got != PurposeQuickSummary {
		t.Fatalf("expected quick-summary for short summarize request, got %s", got)
	}

	long := make([]byte, 10001)
	for i := range long {
		long[i] = 'a'
	}
	if got := InferPurpose("summarize: " + string(long)); got != PurposeBulkProcessing {
		t.Fatalf("expected bulk-processing for long summarize request, got %s", got)
	}
}

func TestInferPurposeDetailedAnalysis(t *testing.T) {
	if got := InferPurpose("please provide a detailed analysis of this document"); got != PurposeDetailedAnalysis {
		t.Fatalf("expected detailed-analysis, got %s", got)
	}
}

func TestInferPurposeFallsBackToSizeBuckets(t *testing.T) {
	if got := InferPurpose("hello there"); got != PurposeQuickSummary {
		t.Fatalf("expected quick-summary fallback for short text, got %s", got)
	}

	long := make([]byte, 20001)
	for i := range long {
		long[i] = 'b'
	}
	if got := InferPurpose(string(long)); got != PurposeDetailedAnalysis {
		t.Fatalf("expected detailed-analysis fallback for very long text, got %s", got)
	}
}
