/**
 * Manager: provider auto-selection and exactly-once fallback retry.
 */

package llm

import (
	"context"

	"github.com/nexusdoc/docengine/internal/errs"
	"github.com/nexusdoc/docengine/internal/logging"
)

// PreferredProvider selects which provider the Manager prefers.
type PreferredProvider string

const (
	ProviderAuto    PreferredProvider = "auto"
	ProviderRemoteA PreferredProvider = "remote-a"
	ProviderRemoteB PreferredProvider = "remote-b"
)

// UsageRecorder is notified of every successful call so a quota tracker
// can update its counters. Defined here, not in internal/quota, so this
// package has no dependency on the quota package.
type UsageRecorder interface {
	RecordUsage(model string, tokens int)
}

// Manager holds an ordered set of providers and the fallback policy.
type Manager struct {
	providers       []Provider // preference order: remote-a, remote-b
	preferred       PreferredProvider
	fallbackEnabled bool
	usage           UsageRecorder
	logger          *logging.Logger
}

// NewManager wires providers in preference order (remote-A before
// remote-B, matching the component design's stated default).
func NewManager(remoteA, remoteB Provider, preferred PreferredProvider, fallbackEnabled bool, usage UsageRecorder, logger *logging.Logger) *Manager {
	return &Manager{
		providers:       []Provider{remoteA, remoteB},
		preferred:       preferred,
		fallbackEnabled: fallbackEnabled,
		usage:           usage,
		logger:          logger,
	}
}

func (m *Manager) firstAvailable() Provider {
	for _, p := range m.providers {
		if p.Available() {
			return p
		}
	}
	return nil
}

func (m *Manager) byName(name PreferredProvider) Provider {
	for _, p := range m.providers {
		if p.Name() == string(name) {
			return p
		}
	}
	return nil
}

// selectProvider implements the selection policy: auto picks the first
// available provider in preference order; an explicit choice is honored if
// available, else falls back to the first available provider when
// fallback is enabled, else fails.
func (m *Manager) selectProvider() (Provider, error) {
	if m.preferred == ProviderAuto || m.preferred == "" {
		p := m.firstAvailable()
		if p == nil {
			return nil, errs.NewNoProvidersAvailable()
		}
		return p, nil
	}

	if p := m.byName(m.preferred); p != nil && p.Available() {
		return p, nil
	}

	if m.fallbackEnabled {
		if p := m.firstAvailable(); p != nil {
			return p, nil
		}
	}

	return nil, errs.NewNoProvidersAvailable()
}

func (m *Manager) nextAvailableExcluding(exclude Provider) Provider {
	for _, p := range m.providers {
		if p == exclude {
			continue
		}
		if p.Available() {
			return p
		}
	}
	return nil
}

// GenerateText selects a provider, calls GenerateText, and retries exactly
// once against the next available provider on failure when fallback is
// enabled and the caller did not explicitly request auto selection.
func (m *Manager) GenerateText(ctx context.Context, req Request) (*Response, error) {
	return m.dispatch(ctx, req, Provider.GenerateText)
}

// AnalyzeImage is the vision-request counterpart of GenerateText.
func (m *Manager) AnalyzeImage(ctx context.Context, req Request) (*Response, error) {
	return m.dispatch(ctx, req, Provider.AnalyzeImage)
}

func (m *Manager) dispatch(ctx context.Context, req Request, call func(Provider, context.Context, Request) (*Response, error)) (*Response, error) {
	provider, err := m.selectProvider()
	if err != nil {
		return nil, err
	}

	resp, err := call(provider, ctx, req)
	if err == nil {
		m.recordUsage(resp)
		return resp, nil
	}

	if !m.fallbackEnabled || m.preferred == ProviderAuto || !errs.IsRetryable(err) {
		return nil, err
	}

	fallback := m.nextAvailableExcluding(provider)
	if fallback == nil {
		return nil, err
	}

	if m.logger != nil {
		m.logger.Warn("retrying llm call against fallback provider",
			"failedProvider", provider.Name(), "fallbackProvider", fallback.Name(), "error", err)
	}

	resp, fallbackErr := call(fallback, ctx, req)
	if fallbackErr != nil {
		return nil, fallbackErr
	}
	m.recordUsage(resp)
	return resp, nil
}

func (m *Manager) recordUsage(resp *Response) {
	if m.usage != nil && resp != nil {
		m.usage.RecordUsage(resp.Model, resp.Tokens.TotalTokens)
	}
}
