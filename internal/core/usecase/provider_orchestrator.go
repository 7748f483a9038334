package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/ports"
)

const DefaultProviderTimeout = 45 * time.Second

var errEmptyProviderResponse = errors.New("empty provider response")

// ProviderOrchestrator tries vision providers in priority order and returns
// the first non-empty answer.
type ProviderOrchestrator struct {
	providers []ports.VisionProvider
	priority  []string
	timeout   time.Duration
	metrics   ports.PipelineMetrics
}

type ProviderOrchestratorOptions struct {
	// Priority names providers in call order. Empty keeps registration order.
	Priority []string
	Timeout  time.Duration
	Metrics  ports.PipelineMetrics
}

func NewProviderOrchestrator(providers []ports.VisionProvider, opts ProviderOrchestratorOptions) *ProviderOrchestrator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ProviderOrchestrator{
		providers: providers,
		priority:  opts.Priority,
		timeout:   timeout,
		metrics:   metrics,
	}
}

// Analyze calls providers one at a time in priority order, falling back to the
// configured order when priority is empty. Each failure is recorded and the
// next provider is tried; when all fail a *domain.ProviderExhaustedError is
// returned.
func (o *ProviderOrchestrator) Analyze(ctx context.Context, req domain.ProviderRequest, priority []string) (domain.ProviderResponse, error) {
	attempts := make([]domain.ProviderAttempt, 0, len(o.providers))
	var last error

	for _, name := range o.order(priority) {
		if err := ctx.Err(); err != nil {
			last = err
			break
		}

		provider := o.lookup(name)
		if provider == nil {
			err := fmt.Errorf("provider %q is not configured", name)
			attempts = append(attempts, domain.ProviderAttempt{Provider: name, Err: err})
			last = err
			continue
		}

		start := time.Now()
		raw, err := o.call(ctx, provider, req)
		attempt := domain.ProviderAttempt{Provider: name, Err: err, Duration: time.Since(start)}
		attempts = append(attempts, attempt)
		o.metrics.ObserveProviderAttempt(name, err, attempt.Duration)

		if err == nil {
			slog.Info("provider_attempt", "provider", name, "status", "ok", "duration_ms", attempt.Duration.Milliseconds())
			return domain.ProviderResponse{Raw: raw, Provider: name, Attempts: attempts}, nil
		}
		slog.Warn("provider_attempt", "provider", name, "status", "error", "duration_ms", attempt.Duration.Milliseconds(), "error", err)
		last = err
	}

	return domain.ProviderResponse{Attempts: attempts}, &domain.ProviderExhaustedError{Attempts: attempts, Last: last}
}

func (o *ProviderOrchestrator) call(ctx context.Context, provider ports.VisionProvider, req domain.ProviderRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := provider.Generate(callCtx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", domain.WrapError(domain.ErrProvider, provider.Name(), errEmptyProviderResponse)
	}
	return raw, nil
}

func (o *ProviderOrchestrator) order(priority []string) []string {
	if len(priority) > 0 {
		return priority
	}
	if len(o.priority) > 0 {
		return o.priority
	}
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return names
}

func (o *ProviderOrchestrator) lookup(name string) ports.VisionProvider {
	for _, p := range o.providers {
		if strings.EqualFold(p.Name(), name) {
			return p
		}
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveProviderAttempt(string, error, time.Duration) {}
func (noopMetrics) ObserveImage(domain.ImageStatus, string, time.Duration) {}
func (noopMetrics) ObserveRejectedFindings(int) {}
func (noopMetrics) ExamStarted() {}
func (noopMetrics) ExamFinished(domain.ExamStatus, time.Duration) {}
