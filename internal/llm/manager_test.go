package llm

import (
	"context"
	"testing"

	"github.com/nexusdoc/docengine/internal/errs"
)

type fakeProvider struct {
	name      string
	available bool
	err       error
	calls     int
}

func (p *fakeProvider) Name() string              { return p.name }
func (p *fakeProvider) Available() bool           { return p.available }
func (p *fakeProvider) SupportedModels() []string { return []string{"test-model"} }

func (p *fakeProvider) GenerateText(ctx context.Context, req Request) (*Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &Response{Content: "ok", Model: "test-model", Provider: p.name}, nil
}

func (p *fakeProvider) AnalyzeImage(ctx context.Context, req Request) (*Response, error) {
	return p.GenerateText(ctx, req)
}

func (p *fakeProvider) HealthCheck(ctx context.Context) bool { return p.available }

type fakeUsageRecorder struct {
	model  string
	tokens int
}

func (r *fakeUsageRecorder) RecordUsage(model string, tokens int) {
	r.model = model
	r.tokens = tokens
}

func TestManagerAutoSelectsFirstAvailableInPreferenceOrder(t *testing.T) {
	a := &fakeProvider{name: "remote-a", available: false}
	b := &fakeProvider{name: "remote-b", available: true}
	m := NewManager(a, b, ProviderAuto, false, nil, nil)

	resp, err := m.GenerateText(context.Background(), Request{Messages: []Message{TextMessage(RoleUser, "hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "remote-b" {
		t.Fatalf("expected remote-b, got %s", resp.Provider)
	}
}

func TestManagerExplicitProviderFailsWithoutFallback(t *testing.T) {
	a := &fakeProvider{name: "remote-a", available: false}
	b := &fakeProvider{name: "remote-b", available: true}
	m := NewManager(a, b, ProviderRemoteA, false, nil, nil)

	_, err := m.GenerateText(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error when explicit provider is unavailable and fallback is disabled")
	}
	ee, ok := err.(*errs.EngineError)
	if !ok || ee.Code != errs.NoProvidersAvailable {
		t.Fatalf("expected NoProvidersAvailable, got %v", err)
	}
}

func TestManagerExplicitProviderFallsBackWhenEnabled(t *testing.T) {
	a := &fakeProvider{name: "remote-a", available: false}
	b := &fakeProvider{name: "remote-b", available: true}
	m := NewManager(a, b, ProviderRemoteA, true, nil, nil)

	resp, err := m.GenerateText(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "remote-b" {
		t.Fatalf("expected fallback to remote-b, got %s", resp.Provider)
	}
}

func TestManagerRetriesExactlyOnceAgainstNextProviderOnError(t *testing.T) {
	a := &fakeProvider{name: "remote-a", available: true, err: errs.New(errs.ProviderUnavailable, "down", nil)}
	b := &fakeProvider{name: "remote-b", available: true}
	m := NewManager(a, b, ProviderRemoteA, true, nil, nil)

	resp, err := m.GenerateText(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "remote-b" {
		t.Fatalf("expected fallback response from remote-b, got %s", resp.Provider)
	}
	if a.calls != 1 {
		t.Fatalf("expected exactly one call to remote-a, got %d", a.calls)
	}
	if b.calls != 1 {
		t.Fatalf("expected exactly one call to remote-b, got %d", b.calls)
	}
}

func TestManagerDoesNotRetryWhenErrorIsNotRetryable(t *testing.T) {
	a := &fakeProvider{name: "remote-a", available: true, err: errs.New(errs.QuotaExhausted, "exhausted", nil)}
	b := &fakeProvider{name: "remote-b", available: true}
	m := NewManager(a, b, ProviderRemoteA, true, nil, nil)

	_, err := m.GenerateText(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if b.calls != 0 {
		t.Fatalf("expected no fallback call for a non-retryable error, got %d calls", b.calls)
	}
}

func TestManagerDoesNotRetryInAutoMode(t *testing.T) {
	a := &fakeProvider{name: "remote-a", available: true, err: errs.New(errs.ProviderUnavailable, "down", nil)}
	b := &fakeProvider{name: "remote-b", available: true}
	m := NewManager(a, b, ProviderAuto, true, nil, nil)

	_, err := m.GenerateText(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if b.calls != 0 {
		t.Fatalf("auto mode should not retry across providers, got %d calls on b", b.calls)
	}
}

func TestManagerRecordsUsageOnSuccess(t *testing.T) {
	a := &fakeProvider{name: "remote-a", available: true}
	b := &fakeProvider{name: "remote-b", available: true}
	usage := &fakeUsageRecorder{}
	m := NewManager(a, b, ProviderRemoteA, false, usage, nil)

	if _, err := m.GenerateText(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage.model != "test-model" {
		t.Fatalf("expected usage recorded for test-model, got %q", usage.model)
	}
}

func TestManagerFailsWhenNoProviderConfigured(t *testing.T) {
	a := &fakeProvider{name: "remote-a", available: false}
	b := &fakeProvider{name: "remote-b", available: false}
	m := NewManager(a, b, ProviderAuto, false, nil, nil)

	_, err := m.GenerateText(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error when no providers are configured")
	}
	ee, ok := err.(*errs.EngineError)
	if !ok || ee.Code != errs.NoProvidersAvailable {
		t.Fatalf("expected NoProvidersAvailable, got %v", err)
	}
}
