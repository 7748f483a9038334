package llmhttp

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/resilience"
)

// ClassifyError decides whether a provider call may be retried and whether it
// counts against the provider's circuit breaker.
func ClassifyError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if IsRetryableStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// WrapProviderError tags err as a provider failure, and as temporary when a
// later attempt could succeed.
func WrapProviderError(operation string, err error, classify resilience.ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if classify == nil {
		classify = ClassifyError
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		if class := classify(err); class.Retryable || resilience.IsCircuitOpen(err) {
			err = domain.WrapError(domain.ErrTemporary, operation, err)
		}
	}
	if domain.IsKind(err, domain.ErrProvider) {
		return err
	}
	return domain.WrapError(domain.ErrProvider, operation, err)
}

func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Execute runs fn through executor when one is configured.
func Execute(ctx context.Context, executor *resilience.Executor, operation string, fn func(context.Context) (string, error), classify resilience.ErrorClassifier) (string, error) {
	if classify == nil {
		classify = ClassifyError
	}
	if executor == nil {
		return fn(ctx)
	}
	return resilience.Call(ctx, executor, operation, fn, classify)
}
