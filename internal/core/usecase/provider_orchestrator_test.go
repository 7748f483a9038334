package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/ports"
)

var orchestratorRequest = domain.ProviderRequest{Image: []byte{'x'}, MIMEType: "image/png"}

func TestOrchestratorReturnsFirstSuccess(t *testing.T) {
	first := &providerFake{name: "gemini", responses: map[byte]string{'x': `{"findings":[]}`}}
	second := &providerFake{name: "openai", responses: map[byte]string{'x': `{}`}}
	o := NewProviderOrchestrator([]ports.VisionProvider{first, second}, ProviderOrchestratorOptions{})

	resp, err := o.Analyze(context.Background(), orchestratorRequest, nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if resp.Provider != "gemini" || resp.Raw != `{"findings":[]}` || len(resp.Attempts) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if second.callCount() != 0 {
		t.Fatalf("later providers must not be called after a success")
	}
}

func TestOrchestratorTreatsEmptyBodyAsFailure(t *testing.T) {
	empty := &providerFake{name: "gemini", responses: map[byte]string{'x': "   "}}
	backup := &providerFake{name: "ollama", responses: map[byte]string{'x': `{"findings":[]}`}}
	o := NewProviderOrchestrator([]ports.VisionProvider{empty, backup}, ProviderOrchestratorOptions{})

	resp, err := o.Analyze(context.Background(), orchestratorRequest, nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if resp.Provider != "ollama" || len(resp.Attempts) != 2 || resp.Attempts[0].Succeeded() {
		t.Fatalf("unexpected attempts %+v", resp.Attempts)
	}
}

func TestOrchestratorTimeoutTriggersFallback(t *testing.T) {
	slow := &providerFake{name: "gemini", delay: time.Second, responses: map[byte]string{'x': `{}`}}
	fast := &providerFake{name: "openai", responses: map[byte]string{'x': `{"findings":[]}`}}
	o := NewProviderOrchestrator([]ports.VisionProvider{slow, fast}, ProviderOrchestratorOptions{Timeout: 20 * time.Millisecond})

	resp, err := o.Analyze(context.Background(), orchestratorRequest, nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if resp.Provider != "openai" {
		t.Fatalf("expected fallback after timeout, got %q", resp.Provider)
	}
	if !errors.Is(resp.Attempts[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error on first attempt, got %v", resp.Attempts[0].Err)
	}
}

func TestOrchestratorPriorityAndUnknownNames(t *testing.T) {
	gemini := &providerFake{name: "gemini", responses: map[byte]string{'x': "gemini"}}
	openai := &providerFake{name: "openai", responses: map[byte]string{'x': "openai"}}
	o := NewProviderOrchestrator([]ports.VisionProvider{gemini, openai}, ProviderOrchestratorOptions{Priority: []string{"openai", "gemini"}})

	resp, err := o.Analyze(context.Background(), orchestratorRequest, nil)
	if err != nil || resp.Provider != "openai" {
		t.Fatalf("configured priority not applied: %+v %v", resp, err)
	}

	resp, err = o.Analyze(context.Background(), orchestratorRequest, []string{"claude", "GEMINI"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if resp.Provider != "GEMINI" || len(resp.Attempts) != 2 || resp.Attempts[0].Provider != "claude" || resp.Attempts[0].Err == nil {
		t.Fatalf("unknown provider must be a failed attempt: %+v", resp.Attempts)
	}
}

func TestOrchestratorExhaustion(t *testing.T) {
	errQuota := errors.New("quota exceeded")
	o := NewProviderOrchestrator([]ports.VisionProvider{
		&providerFake{name: "gemini", err: errors.New("503")},
		&providerFake{name: "openai", err: errQuota},
	}, ProviderOrchestratorOptions{})

	resp, err := o.Analyze(context.Background(), orchestratorRequest, nil)
	var exhausted *domain.ProviderExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ProviderExhaustedError, got %v", err)
	}
	if !errors.Is(err, domain.ErrProvider) || !errors.Is(err, errQuota) {
		t.Fatalf("exhausted error must match ErrProvider and the last cause: %v", err)
	}
	if len(exhausted.Attempts) != 2 || resp.Raw != "" {
		t.Fatalf("no partial result allowed: %+v %+v", exhausted.Attempts, resp)
	}
}

func TestOrchestratorStopsWhenContextDone(t *testing.T) {
	p := &providerFake{name: "gemini", responses: map[byte]string{'x': "{}"}}
	o := NewProviderOrchestrator([]ports.VisionProvider{p}, ProviderOrchestratorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Analyze(ctx, orchestratorRequest, nil)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected exhausted error carrying cancellation, got %v", err)
	}
	if p.callCount() != 0 {
		t.Fatalf("provider must not be called with a done context")
	}
}
