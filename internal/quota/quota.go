/**
 * Quota Manager: per-model daily request/token counters, purpose-based
 * model selection, clock-driven reset.
 *
 * All read-modify-write sequences hold a single mutex, following the
 * process-wide shared-mutable-object discipline the engine requires of its
 * singletons (see the Provider Manager and Progress Bus for the same
 * pattern). A golang.org/x/time/rate.Limiter per model adds a per-minute
 * smoothing guard on top of the daily counters, grounded on the adaptive
 * rate limiter in goa-ai's model/middleware package - the same library,
 * the same "wrap a daily/explicit budget with a token-bucket smoothing
 * layer" idea, simplified here to a fixed (non-adaptive) per-model limit
 * since this engine's quotas are externally configured, not learned from
 * provider backoff signals.
 */

package quota

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nexusdoc/docengine/internal/errs"
)

// Purpose labels the intent behind an LLM call.
type Purpose string

const (
	PurposeBulkProcessing   Purpose = "bulk-processing"
	PurposeQuickSummary     Purpose = "quick-summary"
	PurposeStandardAnalysis Purpose = "standard-analysis"
	PurposeDetailedAnalysis Purpose = "detailed-analysis"
	PurposeVisionAnalysis   Purpose = "vision-analysis"
	PurposeCriticalTask     Purpose = "critical-task"
)

// Limits are the configured per-model caps.
type Limits struct {
	RPM int // requests per minute, feeds the smoothing limiter
	TPM int // tokens per minute, advisory only
	RPD int // requests per day, the enforceable cap
}

// usage is the mutable per-model daily counter state.
type usage struct {
	tokensUsedToday int
	requestsToday   int
}

// recommendations is the fixed purpose -> ordered model list table.
var recommendations = map[Purpose][]string{
	PurposeBulkProcessing:   {"cheap-fast-model", "exp-fast-model", "standard-fast-model"},
	PurposeQuickSummary:     {"exp-fast-model", "standard-fast-model", "cheap-fast-model"},
	PurposeStandardAnalysis: {"standard-fast-model", "exp-fast-model", "premium-model"},
	PurposeDetailedAnalysis: {"premium-model", "exp-premium-model", "standard-fast-model"},
	PurposeVisionAnalysis:   {"standard-fast-model", "premium-model", "exp-fast-model"},
	PurposeCriticalTask:     {"premium-model", "exp-premium-model", "standard-fast-model"},
}

// Manager tracks one ModelQuota per known model under a single mutex.
type Manager struct {
	mu       sync.Mutex
	location *time.Location
	limits   map[string]Limits
	usage    map[string]*usage
	limiters map[string]*rate.Limiter
	dayKey   string
	now      func() time.Time
}

// New constructs a Manager with the given per-model limits, in the given
// timezone (used for the daily reset boundary). A nil location defaults to
// UTC.
func New(limits map[string]Limits, location *time.Location) *Manager {
	if location == nil {
		location = time.UTC
	}
	m := &Manager{
		location: location,
		limits:   limits,
		usage:    make(map[string]*usage, len(limits)),
		limiters: make(map[string]*rate.Limiter, len(limits)),
		now:      time.Now,
	}
	for model, l := range limits {
		m.usage[model] = &usage{}
		rpm := l.RPM
		if rpm <= 0 {
			rpm = 1
		}
		m.limiters[model] = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	}
	m.dayKey = m.dayKeyFor(m.now())
	return m
}

func (m *Manager) dayKeyFor(t time.Time) string {
	return t.In(m.location).Format("2006-01-02")
}

// checkAndResetIfNeeded zeroes all counters when the configured-timezone
// day has rolled over since the last call. Must be called with mu held.
func (m *Manager) checkAndResetIfNeeded() {
	key := m.dayKeyFor(m.now())
	if key == m.dayKey {
		return
	}
	for _, u := range m.usage {
		u.tokensUsedToday = 0
		u.requestsToday = 0
	}
	m.dayKey = key
}

func (m *Manager) nextResetTime() time.Time {
	now := m.now().In(m.location)
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.location).AddDate(0, 0, 1)
	return nextMidnight
}

// HasAvailableQuota reports whether a model can accept one more call of
// roughly estimatedTokens size. estimatedTokens is accepted for interface
// symmetry with the cross-model token-budget check described in the
// design and is not checked. Two caps apply here: the per-model RPD
// counter and the per-model rate limiter (a passing limiter check consumes
// one token).
func (m *Manager) HasAvailableQuota(model string, estimatedTokens int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasAvailableQuotaLocked(model)
}

func (m *Manager) hasAvailableQuotaLocked(model string) bool {
	m.checkAndResetIfNeeded()

	limits, ok := m.limits[model]
	if !ok {
		return false
	}
	u := m.usage[model]
	if limits.RPD > 0 && u.requestsToday >= limits.RPD {
		return false
	}
	if limiter, ok := m.limiters[model]; ok && !limiter.Allow() {
		return false
	}
	return true
}

// SelectModel walks the recommendation list for purpose, returning the
// first model with available quota. If none in the list qualify, it falls
// back to scanning every known model. If still none qualify, it fails with
// a QuotaExhausted error carrying nextResetTime.
func (m *Manager) SelectModel(purpose Purpose, estimatedTokens int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkAndResetIfNeeded()

	for _, model := range recommendations[purpose] {
		if _, known := m.limits[model]; known && m.hasAvailableQuotaLocked(model) {
			return model, nil
		}
	}

	for model := range m.limits {
		if m.hasAvailableQuotaLocked(model) {
			return model, nil
		}
	}

	return "", errs.NewQuotaExhausted(m.nextResetTime())
}

// RecordUsage increments the per-model daily counters. It implements
// llm.UsageRecorder so a Manager can be passed directly to an llm.Manager.
func (m *Manager) RecordUsage(model string, tokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkAndResetIfNeeded()

	u, ok := m.usage[model]
	if !ok {
		u = &usage{}
		m.usage[model] = u
	}
	u.tokensUsedToday += tokens
	u.requestsToday++
}

// Snapshot is a read-only view of one model's current daily usage, used by
// tests and diagnostics.
type Snapshot struct {
	Model           string
	RequestsToday   int
	TokensUsedToday int
	RPD             int
}

// Snapshot returns the current usage for every known model.
func (m *Manager) Snapshot() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkAndResetIfNeeded()

	out := make([]Snapshot, 0, len(m.usage))
	for model, u := range m.usage {
		out = append(out, Snapshot{
			Model:           model,
			RequestsToday:   u.requestsToday,
			TokensUsedToday: u.tokensUsedToday,
			RPD:             m.limits[model].RPD,
		})
	}
	return out
}
